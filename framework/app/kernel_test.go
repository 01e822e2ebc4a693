package app_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-ioc/framework/app"
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

type greeter struct{ text string }

type greeterProvider struct {
	container.BaseProvider
	booted bool
}

func (p *greeterProvider) Register(c *container.Container) error {
	return c.Singleton("greeter", func(args container.Args) (any, error) {
		return &greeter{text: args.String("text")}, nil
	}, container.Inject(container.Value("text", `#{ strings.ToUpper(ioc.Prop("kernel.name")) }-${kernel.region}`)))
}

func (p *greeterProvider) Boot(*container.Container) error {
	p.booted = true
	return nil
}

type failingProvider struct{ container.BaseProvider }

func (p *failingProvider) Register(*container.Container) error { return nil }
func (p *failingProvider) Boot(*container.Container) error     { return errors.New("boom") }

// ── Configuration ────────────────────────────────────────────────────────────

func TestNew_ProfileFilesOverrideBase(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"application.yaml": "app:\n  profiles:\n    active: dev, eu\nkernel:\n  name: base\n  region: none\n",
		"application-dev.yaml": "kernel:\n  name: dev\n",
		"application-eu.yaml":  "kernel:\n  region: eu\n",
		".env":                 "KERNEL_TOKEN=abc\n",
	})
	p := &greeterProvider{}

	a, err := app.New(
		app.WithConfigDir(dir),
		app.WithEnvFiles(filepath.Join(dir, ".env")),
		app.WithLogOutput(&bytes.Buffer{}),
		app.WithProviders(p),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "eu"}, a.Profiles())
	assert.Equal(t, "abc", a.Properties().Get("kernel.token", ""))

	require.NoError(t, a.Start())
	defer a.Close()
	assert.True(t, p.booted)

	g, err := container.Resolve[*greeter](a.Container)
	require.NoError(t, err)
	assert.Equal(t, "DEV-eu", g.text)
}

func TestNew_ExplicitProfilesAndSources(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"application.yaml":      "kernel:\n  name: base\n  region: none\n",
		"application-prod.yaml": "kernel:\n  region: us\n",
	})
	a, err := app.New(
		app.WithConfigDir(dir),
		app.WithProfiles("prod"),
		app.WithSources(config.NewMapSource("flags", map[string]string{"kernel.name": "cli"})),
		app.WithLogOutput(&bytes.Buffer{}),
		app.WithProviders(&greeterProvider{}),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Close()

	g, err := container.Resolve[*greeter](a.Container)
	require.NoError(t, err)
	assert.Equal(t, "CLI-us", g.text)
}

func TestNew_MissingExplicitEnvFile(t *testing.T) {
	_, err := app.New(app.WithEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
	assert.Error(t, err)
}

func TestNew_BadYAML(t *testing.T) {
	dir := writeFiles(t, map[string]string{"application.yaml": "kernel: [unclosed\n"})
	_, err := app.New(app.WithConfigDir(dir))
	assert.Error(t, err)
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestStart_BootFailureClosesContainer(t *testing.T) {
	a, err := app.New(app.WithConfigDir(t.TempDir()), app.WithLogOutput(&bytes.Buffer{}), app.WithProviders(&failingProvider{}))
	require.NoError(t, err)

	err = a.Start()
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, container.PhaseClosed, a.Phase())
}

func TestHandler_ServesActuator(t *testing.T) {
	a, err := app.New(app.WithConfigDir(t.TempDir()), app.WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Close()

	h, err := a.Handler()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/components/config", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
