package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source is an ordered provider of configuration key/value pairs.
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

// Enumerable is implemented by sources that can list their keys.
type Enumerable interface {
	Keys() []string
}

// ── Override ──────────────────────────────────────────────────────────────────

type overrideSource struct {
	Source
}

// Override marks src so that it takes precedence over every non-override
// source regardless of registration order.
//
//	r.Add(config.Override(config.NewMapSource("cli", flags)))
func Override(src Source) Source {
	return overrideSource{Source: src}
}

func (o overrideSource) Keys() []string {
	if e, ok := o.Source.(Enumerable); ok {
		return e.Keys()
	}
	return nil
}

// ── MapSource ─────────────────────────────────────────────────────────────────

// MapSource is an in-memory source.
type MapSource struct {
	name   string
	values map[string]string
}

// NewMapSource copies values into a new source.
func NewMapSource(name string, values map[string]string) *MapSource {
	m := &MapSource{name: name, values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MapSource) Name() string { return m.name }

func (m *MapSource) Lookup(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MapSource) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ── Environment ───────────────────────────────────────────────────────────────

// EnvSource reads the process environment. A key is tried verbatim first,
// then in its relaxed form: "server.port" → "SERVER_PORT".
type EnvSource struct{}

// NewEnvSource returns a source backed by os.LookupEnv.
func NewEnvSource() EnvSource { return EnvSource{} }

func (EnvSource) Name() string { return "env" }

func (EnvSource) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return os.LookupEnv(EnvKey(key))
}

func (EnvSource) Keys() []string {
	environ := os.Environ()
	keys := make([]string, 0, len(environ))
	for _, kv := range environ {
		if k, _, ok := strings.Cut(kv, "="); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// EnvKey converts a dotted property key into its environment variable form.
func EnvKey(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "[", "_", "]", "")
	return strings.ToUpper(r.Replace(key))
}

// DotenvSource holds the contents of one or more .env files without touching
// the process environment. Lookups are relaxed the same way as EnvSource.
type DotenvSource struct {
	*MapSource
}

// NewDotenvSource parses files with godotenv. Later files do not override
// keys defined by earlier ones.
func NewDotenvSource(files ...string) (*DotenvSource, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	values, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("config: read dotenv %v: %w", files, err)
	}
	return &DotenvSource{MapSource: NewMapSource("dotenv:"+strings.Join(files, ","), values)}, nil
}

func (d *DotenvSource) Lookup(key string) (string, bool) {
	if v, ok := d.MapSource.Lookup(key); ok {
		return v, true
	}
	return d.MapSource.Lookup(EnvKey(key))
}

// ── YAML ──────────────────────────────────────────────────────────────────────

// NewYAMLSource parses a YAML document and flattens it into dotted keys:
//
//	server:
//	  port: 8080        → server.port = "8080"
//	  hosts: [a, b]     → server.hosts[0] = "a", server.hosts[1] = "b"
func NewYAMLSource(name string, data []byte) (*MapSource, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse yaml %s: %w", name, err)
	}
	values := make(map[string]string)
	flatten("", doc, values)
	return NewMapSource(name, values), nil
}

// LoadYAMLFile reads path and returns it as a source named "yaml:<path>".
func LoadYAMLFile(path string) (*MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return NewYAMLSource("yaml:"+path, data)
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(join(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range v {
			flatten(join(prefix, fmt.Sprint(k)), child, out)
		}
	case []any:
		for i, child := range v {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
