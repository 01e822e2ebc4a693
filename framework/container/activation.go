package container

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Profile predicates are boolean expressions over profile names:
//
//	dev
//	!cloud
//	dev | test          (also "dev, test" and "dev or test")
//	prod & (eu | us)    (also "and"; & binds tighter than |)
//	not (local | test)

var errEmptyPredicate = errors.New("empty expression")

type predicate func(active map[string]bool) bool

func always(map[string]bool) bool { return true }

// activate returns the declarations whose profile predicate holds for the
// given profiles, in registration order.
func activate(decls []*Declaration, profiles []string) ([]*Declaration, error) {
	active := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		active[strings.TrimSpace(p)] = true
	}

	cache := make(map[string]predicate)
	out := make([]*Declaration, 0, len(decls))
	for _, d := range decls {
		pred, ok := cache[d.Profile]
		if !ok {
			var err error
			pred, err = parseProfile(d.Profile)
			if err != nil {
				return nil, &ActivationEvaluationError{Declaration: d.ID, Expression: d.Profile, Cause: err}
			}
			cache[d.Profile] = pred
		}
		if pred(active) {
			out = append(out, d)
		}
	}
	return out, nil
}

func parseProfile(expr string) (predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return always, nil
	}
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &profileParser{toks: toks}
	pred, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("unexpected %q at token %d", p.toks[p.pos], p.pos+1)
	}
	return pred, nil
}

// ── Lexer ─────────────────────────────────────────────────────────────────────

func tokenize(expr string) ([]string, error) {
	var toks []string
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')' || r == '!' || r == ',':
			toks = append(toks, string(r))
			i++
		case r == '&' || r == '|':
			toks = append(toks, string(r))
			i++
			if i < len(rs) && rs[i] == r {
				i++
			}
		case isProfileRune(r):
			start := i
			for i < len(rs) && isProfileRune(rs[i]) {
				i++
			}
			toks = append(toks, string(rs[start:i]))
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	if len(toks) == 0 {
		return nil, errEmptyPredicate
	}
	return toks, nil
}

func isProfileRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// ── Parser ────────────────────────────────────────────────────────────────────

type profileParser struct {
	toks []string
	pos  int
}

func (p *profileParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *profileParser) or() (predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case "|", ",", "or":
			p.pos++
		default:
			return left, nil
		}
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(a map[string]bool) bool { return l(a) || right(a) }
	}
}

func (p *profileParser) and() (predicate, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case "&", "and":
			p.pos++
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(a map[string]bool) bool { return l(a) && right(a) }
	}
}

func (p *profileParser) unary() (predicate, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, errors.New("unexpected end of expression")
	case "!", "not":
		p.pos++
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return func(a map[string]bool) bool { return !inner(a) }, nil
	case "(":
		p.pos++
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, errors.New("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case ")", "&", "|", ",", "and", "or":
		return nil, fmt.Errorf("unexpected %q", tok)
	}
	p.pos++
	return func(a map[string]bool) bool { return a[tok] }, nil
}
