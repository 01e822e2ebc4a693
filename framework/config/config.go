// Package config resolves externally supplied configuration for the
// container: ordered property sources, ${key:default} placeholders,
// #{...} expressions delegated to an Evaluator, and rule-based validation.
//
//	r := config.Load(".env")
//	r.Add(yamlSource)
//	port := r.GetInt("server.port", 8080)
//	dsn, err := r.ResolvePlaceholders("postgres://${db.host:localhost}/${db.name}")
package config

import (
	"github.com/joho/godotenv"
)

// Load reads .env files into the process environment (if present) and
// returns a Resolver over the environment. Keys already set in the
// environment are not overwritten by the files.
// Call once at bootstrap: props := config.Load()
func Load(envFiles ...string) *Resolver {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return NewResolver(NewEnvSource())
}
