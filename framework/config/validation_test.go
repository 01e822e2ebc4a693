package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-ioc/framework/config"
)

func TestValidate_Passes(t *testing.T) {
	r := config.NewResolver(mapSource("props",
		"server.port", "8080",
		"mail.from", "ops@example.com",
		"app.env", "production",
		"cache.ttl", "5m",
		"app.url", "https://example.com",
	))

	err := r.Validate(config.Rules{
		"server.port": "required|integer|gte:1|lte:65535",
		"mail.from":   "required|email",
		"app.env":     "in:local,staging,production",
		"cache.ttl":   "duration",
		"app.url":     "url",
		"app.key":     "sometimes|min:32",
	})
	assert.NoError(t, err)
}

func TestValidate_CollectsFailures(t *testing.T) {
	r := config.NewResolver(mapSource("props",
		"server.port", "99999",
		"mail.from", "not-an-address",
		"app.name", "a b",
	))

	err := r.Validate(config.Rules{
		"server.port": "required|integer|lte:65535",
		"mail.from":   "email",
		"app.name":    "alpha_dash",
		"db.password": "required",
	})

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"app.name", "db.password", "mail.from", "server.port"}, verr.Keys())
	assert.Equal(t, "db.password is required", verr.First("db.password"))
	assert.Equal(t, "server.port must be less than or equal to 65535", verr.First("server.port"))
	assert.Contains(t, err.Error(), "mail.from must be a valid email address")
}

func TestValidate_StopsAtFirstFailurePerKey(t *testing.T) {
	r := config.NewResolver(mapSource("props"))

	err := r.Validate(config.Rules{"worker.count": "required|integer|gt:0"})

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Bag["worker.count"], 1)
}
