package actuator_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-ioc/framework/actuator"
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type repo struct{ dsn string }

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c := container.New(
		container.WithProperties(config.NewMapSource("props", map[string]string{
			"db.host":     "localhost",
			"db.url":      "postgres://${db.host}/app",
			"db.password": "hunter2",
			"db.admin":    "postgres://admin:${db.password}@db/app",
			"db.replica":  "${db.admin}?replica=1",
			"db.broken":   "${db.missing}",
		})),
		container.WithProfiles("dev"),
	)
	require.NoError(t, c.Singleton("repo", func(args container.Args) (any, error) {
		return &repo{dsn: args.String("dsn")}, nil
	}, container.As("Repo"), container.WithAliases("repository"), container.Inject(container.Value("dsn", "${db.url}"))))
	require.NoError(t, c.Singleton("svc", func(container.Args) (any, error) { return struct{}{}, nil },
		container.Inject(container.Need("repo", "Repo"))))
	return c
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return rr.Code, body
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	c := newContainer(t)
	r := actuator.New(c)

	code, body := get(t, r.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DOWN", body["data"].(map[string]any)["status"])

	require.NoError(t, c.Start())
	code, body = get(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "UP", data["status"])
	assert.Equal(t, "ready", data["phase"])

	c.Close()
	code, _ = get(t, r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

// ── Components & bindings ────────────────────────────────────────────────────

func TestComponents(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Start())
	defer c.Close()
	r := actuator.New(c)

	code, body := get(t, r, "/components")
	require.Equal(t, http.StatusOK, code)
	list := body["data"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "repo", list[0].(map[string]any)["id"])
	assert.Equal(t, "ready", list[0].(map[string]any)["state"])

	code, body = get(t, r, "/components/repository")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "repo", body["data"].(map[string]any)["id"])

	code, body = get(t, r, "/components/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["message"], "nope")
}

func TestBindings(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Start())
	defer c.Close()

	code, body := get(t, actuator.New(c), "/bindings")
	require.Equal(t, http.StatusOK, code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	b := list[0].(map[string]any)
	assert.Equal(t, "svc", b["declaration"])
	assert.Equal(t, "repo", b["target"])
	assert.Equal(t, "unique-type", b["rule"])
}

// ── Env ──────────────────────────────────────────────────────────────────────

func TestEnv(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Start())
	defer c.Close()
	r := actuator.New(c)

	code, body := get(t, r, "/env")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"dev"}, body["data"].(map[string]any)["profiles"])

	_, body = get(t, r, "/env/db.url")
	assert.Equal(t, "postgres://localhost/app", body["data"].(map[string]any)["value"])

	_, body = get(t, r, "/env/db.password")
	assert.Equal(t, "******", body["data"].(map[string]any)["value"])

	_, body = get(t, r, "/env/db.broken")
	assert.Equal(t, "${db.missing}", body["data"].(map[string]any)["value"])

	code, _ = get(t, r, "/env/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEnv_MasksValuesThatReferenceSecrets(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Start())
	defer c.Close()
	r := actuator.New(c)

	for _, key := range []string{"db.admin", "db.replica"} {
		key := key
		t.Run(key, func(t *testing.T) {
			code, body := get(t, r, "/env/"+key)
			require.Equal(t, http.StatusOK, code)
			value := body["data"].(map[string]any)["value"]
			assert.Equal(t, "******", value)
			assert.NotContains(t, value, "hunter2")
		})
	}
}
