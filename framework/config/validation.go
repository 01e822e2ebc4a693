package config

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ── Types ────────────────────────────────────────────────────────────────────

// Rules maps a property key to a pipe-separated rule string.
//
//	config.Rules{"server.port": "required|integer|gte:1|lte:65535", "mail.from": "email"}
type Rules map[string]string

// ValidationError collects failed rules per property key.
type ValidationError struct {
	Bag map[string][]string
}

func (e *ValidationError) add(key, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[key] = append(e.Bag[key], msg)
}

// Keys returns the failing keys, sorted.
func (e *ValidationError) Keys() []string {
	keys := make([]string, 0, len(e.Bag))
	for k := range e.Bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// First returns the first message for key.
func (e *ValidationError) First(key string) string {
	if msgs := e.Bag[key]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Bag))
	for _, k := range e.Keys() {
		parts = append(parts, strings.Join(e.Bag[k], "; "))
	}
	return "invalid properties: " + strings.Join(parts, "; ")
}

// Validate resolves every key in rules (placeholders expanded) and checks
// it. It returns nil or a *ValidationError.
func (r *Resolver) Validate(rules Rules) error {
	verr := &ValidationError{}
	for key, ruleStr := range rules {
		value := r.Get(key, "")
		for _, rule := range strings.Split(ruleStr, "|") {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			name, param, _ := strings.Cut(rule, ":")
			if !applyRule(verr, key, value, name, param) {
				break // stop on first failure for this key
			}
		}
	}
	if len(verr.Bag) == 0 {
		return nil
	}
	return verr
}

var (
	alphaRe     = regexp.MustCompile(`^[a-zA-Z]+$`)
	alphaNumRe  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	alphaDashRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	urlRe       = regexp.MustCompile(`^https?://`)
)

// applyRule returns true if the rule passes.
func applyRule(e *ValidationError, key, value, rule, param string) bool {
	switch rule {
	case "required":
		if strings.TrimSpace(value) == "" {
			e.add(key, fmt.Sprintf("%s is required", key))
			return false
		}

	case "sometimes", "nullable":
		// Skip remaining rules if the property is absent.
		if value == "" {
			return false
		}

	case "numeric":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			e.add(key, fmt.Sprintf("%s must be a number", key))
			return false
		}

	case "integer":
		if _, err := strconv.Atoi(value); err != nil {
			e.add(key, fmt.Sprintf("%s must be an integer", key))
			return false
		}

	case "boolean":
		if _, err := strconv.ParseBool(value); err != nil {
			e.add(key, fmt.Sprintf("%s must be true or false", key))
			return false
		}

	case "duration":
		if _, err := time.ParseDuration(value); err != nil {
			e.add(key, fmt.Sprintf("%s must be a duration", key))
			return false
		}

	case "email":
		if _, err := mail.ParseAddress(value); err != nil {
			e.add(key, fmt.Sprintf("%s must be a valid email address", key))
			return false
		}

	case "url":
		if !urlRe.MatchString(value) {
			e.add(key, fmt.Sprintf("%s must be a valid URL", key))
			return false
		}

	case "min":
		n, _ := strconv.Atoi(param)
		if utf8.RuneCountInString(value) < n {
			e.add(key, fmt.Sprintf("%s must be at least %d characters", key, n))
			return false
		}

	case "max":
		n, _ := strconv.Atoi(param)
		if utf8.RuneCountInString(value) > n {
			e.add(key, fmt.Sprintf("%s may not be longer than %d characters", key, n))
			return false
		}

	case "in":
		for _, a := range strings.Split(param, ",") {
			if strings.TrimSpace(a) == value {
				return true
			}
		}
		e.add(key, fmt.Sprintf("%s must be one of [%s]", key, param))
		return false

	case "not_in":
		for _, d := range strings.Split(param, ",") {
			if strings.TrimSpace(d) == value {
				e.add(key, fmt.Sprintf("%s may not be %q", key, value))
				return false
			}
		}

	case "alpha":
		if !alphaRe.MatchString(value) {
			e.add(key, fmt.Sprintf("%s may only contain letters", key))
			return false
		}

	case "alpha_num":
		if !alphaNumRe.MatchString(value) {
			e.add(key, fmt.Sprintf("%s may only contain letters and numbers", key))
			return false
		}

	case "alpha_dash":
		if !alphaDashRe.MatchString(value) {
			e.add(key, fmt.Sprintf("%s may only contain letters, numbers, dashes and underscores", key))
			return false
		}

	case "regex":
		re, err := regexp.Compile(param)
		if err != nil || !re.MatchString(value) {
			e.add(key, fmt.Sprintf("%s format is invalid", key))
			return false
		}

	case "gt", "gte", "lt", "lte":
		f, err := strconv.ParseFloat(value, 64)
		t, _ := strconv.ParseFloat(param, 64)
		if err != nil || !compare(rule, f, t) {
			e.add(key, fmt.Sprintf("%s must be %s %s", key, comparisonWords[rule], param))
			return false
		}
	}

	return true
}

var comparisonWords = map[string]string{
	"gt":  "greater than",
	"gte": "greater than or equal to",
	"lt":  "less than",
	"lte": "less than or equal to",
}

func compare(op string, f, t float64) bool {
	switch op {
	case "gt":
		return f > t
	case "gte":
		return f >= t
	case "lt":
		return f < t
	default:
		return f <= t
	}
}
