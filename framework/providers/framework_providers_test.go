package providers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-ioc/framework/actuator"
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/logging"
	"github.com/km-arc/go-ioc/framework/providers"
)

func boot(t *testing.T, c *container.Container, ps ...container.ServiceProvider) *container.ProviderRegistry {
	t.Helper()
	reg := container.NewProviderRegistry(c)
	for _, p := range ps {
		require.NoError(t, reg.Register(p))
	}
	require.NoError(t, c.Start())
	require.NoError(t, reg.Boot())
	t.Cleanup(func() { c.Close() })
	return reg
}

func TestConfigServiceProvider(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("APP_NAME=billing\n"), 0o600))

	c := container.New()
	boot(t, c, &providers.ConfigServiceProvider{EnvFiles: []string{env}})

	r, err := container.Resolve[*config.Resolver](c)
	require.NoError(t, err)
	assert.Same(t, c.Properties(), r)
	assert.Equal(t, "billing", r.Get("app.name", ""))

	alias, err := c.Get("configuration")
	require.NoError(t, err)
	assert.Same(t, r, alias)
}

func TestConfigServiceProvider_MissingEnvFile(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	err := reg.Register(&providers.ConfigServiceProvider{EnvFiles: []string{filepath.Join(t.TempDir(), "nope.env")}})
	assert.Error(t, err)
}

func TestLoggingServiceProvider(t *testing.T) {
	var buf bytes.Buffer
	c := container.New(container.WithProperties(config.NewMapSource("props", map[string]string{
		"logging.driver": "zap",
		"logging.format": "json",
	})))
	boot(t, c, &providers.LoggingServiceProvider{Output: &buf})

	log, err := container.Resolve[logging.Logger](c)
	require.NoError(t, err)
	assert.IsType(t, &logging.ZapAdapter{}, log)

	log.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestLoggingServiceProvider_Defaults(t *testing.T) {
	c := container.New()
	boot(t, c, &providers.LoggingServiceProvider{Output: &bytes.Buffer{}})

	log, err := container.Resolve[logging.Logger](c)
	require.NoError(t, err)
	assert.IsType(t, &logging.SlogAdapter{}, log)
}

func TestLoggingServiceProvider_BadLevelFailsStart(t *testing.T) {
	c := container.New(container.WithProperties(config.NewMapSource("props", map[string]string{"logging.level": "loud"})))
	reg := container.NewProviderRegistry(c)
	require.NoError(t, reg.Register(&providers.LoggingServiceProvider{}))

	err := c.Start()
	var cf *container.CreationFailureError
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "logger", cf.Declaration)
}

func TestActuatorServiceProvider_IsDeferred(t *testing.T) {
	c := container.New()
	boot(t, c, &providers.ActuatorServiceProvider{})

	info, ok := c.Component("actuator")
	require.True(t, ok)
	assert.True(t, info.Lazy)
	assert.Equal(t, container.Uninitialized, info.State)

	r, err := container.Resolve[*actuator.Router](c)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoggingServiceProvider_PrebuiltLogger(t *testing.T) {
	c := container.New()
	boot(t, c, &providers.LoggingServiceProvider{Logger: logging.NoOp{}})

	log, err := container.Resolve[logging.Logger](c)
	require.NoError(t, err)
	assert.Equal(t, logging.NoOp{}, log)
}
