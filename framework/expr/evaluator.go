// Package expr evaluates #{...} property expressions as Go expressions
// with the yaegi interpreter.
//
// Every evaluation runs in a fresh interpreter that has the standard
// library available and a synthetic package "ioc":
//
//	ioc.Prop(key string) string           // "" when missing
//	ioc.PropOr(key, fallback string) string
//	ioc.Has(key string) bool
//	ioc.Bean(name string) interface{}     // panics when the bean cannot be resolved
//
// Examples:
//
//	#{ strings.ToUpper(ioc.Prop("app.name")) }
//	#{ ioc.Has("tls.cert") }
//	#{ 60 * 60 }
package expr

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/km-arc/go-ioc/framework/config"
)

// Evaluator implements config.Evaluator.
type Evaluator struct {
	imports []string
	timeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithImports makes standard library packages available without an
// import statement. "strings", "strconv" and "fmt" are always imported.
func WithImports(pkgs ...string) Option {
	return func(e *Evaluator) { e.imports = append(e.imports, pkgs...) }
}

// WithTimeout bounds a single evaluation. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.timeout = d }
}

// New creates an evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{imports: []string{"fmt", "strconv", "strings"}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ config.Evaluator = (*Evaluator)(nil)

// Evaluate runs expression and returns its value. Failures, including
// panics inside the expression, are *config.EvaluationError.
func (e *Evaluator) Evaluate(expression string, ctx config.EvalContext) (result any, err error) {
	fail := func(cause error) (any, error) {
		return nil, &config.EvaluationError{Expression: expression, Cause: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fail(err)
	}
	if err := i.Use(symbols(ctx)); err != nil {
		return fail(err)
	}

	var src strings.Builder
	src.WriteString("import \"ioc\"\n")
	for _, pkg := range e.imports {
		fmt.Fprintf(&src, "import %q\n", pkg)
	}
	if _, err := i.Eval(src.String()); err != nil {
		return fail(fmt.Errorf("imports: %w", err))
	}

	run := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		run, cancel = context.WithTimeout(run, e.timeout)
		defer cancel()
	}
	v, err := i.EvalWithContext(run, expression)
	if err != nil {
		return fail(err)
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// symbols exposes the evaluation context as package "ioc".
func symbols(ctx config.EvalContext) interp.Exports {
	lookup := func(key string) (string, bool) {
		if ctx.Properties == nil {
			return "", false
		}
		return ctx.Properties.Resolve(key)
	}
	return interp.Exports{
		"ioc/ioc": map[string]reflect.Value{
			"Prop": reflect.ValueOf(func(key string) string {
				v, _ := lookup(key)
				return v
			}),
			"PropOr": reflect.ValueOf(func(key, fallback string) string {
				if v, ok := lookup(key); ok {
					return v
				}
				return fallback
			}),
			"Has": reflect.ValueOf(func(key string) bool {
				_, ok := lookup(key)
				return ok
			}),
			"Bean": reflect.ValueOf(func(name string) interface{} {
				if ctx.Beans == nil {
					panic(fmt.Sprintf("bean %q: no bean resolver", name))
				}
				v, err := ctx.Beans(name)
				if err != nil {
					panic(fmt.Sprintf("bean %q: %v", name, err))
				}
				return v
			}),
		},
	}
}
