package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Resolver resolves keys and placeholders against an ordered list of
// sources. The first registered source wins unless a later one was wrapped
// with Override; overrides are consulted newest first, ahead of everything
// else.
//
// A Resolver is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	sources   []Source
	overrides []Source
	evaluator Evaluator
}

// NewResolver creates a resolver consulting sources in the given order.
func NewResolver(sources ...Source) *Resolver {
	r := &Resolver{}
	for _, s := range sources {
		r.Add(s)
	}
	return r
}

// Add registers src with the lowest precedence so far, or ahead of all
// regular sources when src was wrapped with Override.
func (r *Resolver) Add(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := src.(overrideSource); ok {
		r.overrides = append([]Source{src}, r.overrides...)
		return
	}
	r.sources = append(r.sources, src)
}

// SetEvaluator installs the evaluator used for #{...} expressions.
func (r *Resolver) SetEvaluator(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluator = e
}

func (r *Resolver) ordered() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.overrides)+len(r.sources))
	out = append(out, r.overrides...)
	return append(out, r.sources...)
}

// Sources returns source names in precedence order.
func (r *Resolver) Sources() []string {
	srcs := r.ordered()
	names := make([]string, len(srcs))
	for i, s := range srcs {
		names[i] = s.Name()
	}
	return names
}

// Resolve walks the sources in precedence order and returns the first hit.
func (r *Resolver) Resolve(key string) (string, bool) {
	for _, s := range r.ordered() {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Keys returns the sorted union of keys of all enumerable sources.
func (r *Resolver) Keys() []string {
	seen := make(map[string]struct{})
	for _, s := range r.ordered() {
		if e, ok := s.(Enumerable); ok {
			for _, k := range e.Keys() {
				seen[k] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ── Typed getters ─────────────────────────────────────────────────────────────

// Get returns the resolved value of key with placeholders expanded, or
// fallback when the key is missing or does not resolve.
func (r *Resolver) Get(key, fallback string) string {
	v, ok := r.Resolve(key)
	if !ok || v == "" {
		return fallback
	}
	out, err := r.ResolvePlaceholders(v)
	if err != nil {
		return fallback
	}
	return out
}

// GetInt returns key as an int, or fallback.
func (r *Resolver) GetInt(key string, fallback int) int {
	v := r.Get(key, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// GetBool returns key as a bool, or fallback.
func (r *Resolver) GetBool(key string, fallback bool) bool {
	v := r.Get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// ── Placeholders ──────────────────────────────────────────────────────────────

// ResolvePlaceholders expands every ${key} and ${key:default} in text.
// Values and defaults may themselves contain placeholders. A missing key
// with no default is a *PropertyResolutionError; a key with a default never
// errors.
func (r *Resolver) ResolvePlaceholders(text string) (string, error) {
	return r.expand(text, &expansion{visiting: make(map[string]bool)})
}

// Trace expands text like ResolvePlaceholders and also returns every key
// whose value was used, nested references included, in lookup order.
func (r *Resolver) Trace(text string) (string, []string, error) {
	x := &expansion{visiting: make(map[string]bool)}
	out, err := r.expand(text, x)
	return out, x.used, err
}

type expansion struct {
	visiting map[string]bool
	used     []string
}

func (r *Resolver) expand(text string, x *expansion) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}
	var b strings.Builder
	i := 0
	for i < len(text) {
		start := strings.Index(text[i:], "${")
		if start < 0 {
			b.WriteString(text[i:])
			break
		}
		start += i
		b.WriteString(text[i:start])

		end := closingBrace(text, start+2)
		if end < 0 {
			return "", &PropertyResolutionError{Key: text[start:], Cause: ErrMalformedPlaceholder}
		}
		val, err := r.placeholder(text[start+2:end], x)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		i = end + 1
	}
	return b.String(), nil
}

func (r *Resolver) placeholder(body string, x *expansion) (string, error) {
	rawKey, fallback, hasDefault := splitDefault(body)

	key, err := r.expand(rawKey, x)
	if err != nil {
		return "", err
	}
	if x.visiting[key] {
		return "", &PropertyResolutionError{Key: key, Cause: ErrCircularPlaceholder}
	}

	if v, ok := r.Resolve(key); ok {
		x.used = append(x.used, key)
		x.visiting[key] = true
		defer delete(x.visiting, key)
		return r.expand(v, x)
	}
	if hasDefault {
		return r.expand(fallback, x)
	}
	return "", &PropertyResolutionError{Key: key, Cause: ErrUnresolvable}
}

// splitDefault splits "key:default" at the first colon outside nested
// placeholders.
func splitDefault(body string) (key, fallback string, ok bool) {
	depth := 0
	for i := 0; i < len(body); i++ {
		switch {
		case strings.HasPrefix(body[i:], "${"), strings.HasPrefix(body[i:], "#{"):
			depth++
			i++
		case body[i] == '}':
			depth--
		case body[i] == ':' && depth == 0:
			return body[:i], body[i+1:], true
		}
	}
	return body, "", false
}

// closingBrace returns the index of the brace closing an opening at from-1.
func closingBrace(text string, from int) int {
	depth := 1
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ── Expressions ───────────────────────────────────────────────────────────────

// ResolveValue expands placeholders and then evaluates #{...} expressions.
// When the whole text is a single expression the evaluator's value is
// returned as is; embedded expressions are formatted into the string.
func (r *Resolver) ResolveValue(text string, beans BeanResolver) (any, error) {
	resolved, err := r.ResolvePlaceholders(text)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(resolved, "#{") {
		return resolved, nil
	}

	trimmed := strings.TrimSpace(resolved)
	if strings.HasPrefix(trimmed, "#{") && closingBrace(trimmed, 2) == len(trimmed)-1 {
		return r.evaluate(trimmed[2:len(trimmed)-1], beans)
	}

	var b strings.Builder
	i := 0
	for i < len(resolved) {
		start := strings.Index(resolved[i:], "#{")
		if start < 0 {
			b.WriteString(resolved[i:])
			break
		}
		start += i
		b.WriteString(resolved[i:start])
		end := closingBrace(resolved, start+2)
		if end < 0 {
			return nil, &PropertyResolutionError{Key: resolved[start:], Cause: ErrMalformedPlaceholder}
		}
		v, err := r.evaluate(resolved[start+2:end], beans)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(&b, v)
		i = end + 1
	}
	return b.String(), nil
}

func (r *Resolver) evaluate(expression string, beans BeanResolver) (any, error) {
	r.mu.RLock()
	ev := r.evaluator
	r.mu.RUnlock()
	if ev == nil {
		return nil, &PropertyResolutionError{Key: "#{" + expression + "}", Cause: ErrNoEvaluator}
	}
	if beans == nil {
		beans = func(name string) (any, error) {
			return nil, fmt.Errorf("no bean resolver for %q", name)
		}
	}
	v, err := ev.Evaluate(strings.TrimSpace(expression), EvalContext{Properties: r, Beans: beans})
	if err != nil {
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) {
			return nil, err
		}
		return nil, &EvaluationError{Expression: expression, Cause: err}
	}
	return v, nil
}
