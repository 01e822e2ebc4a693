package config

import "fmt"

// PropertyMap is the read-only view of resolved properties handed to an
// Evaluator. *Resolver implements it.
type PropertyMap interface {
	Resolve(key string) (string, bool)
}

// BeanResolver returns the component registered under name.
type BeanResolver func(name string) (any, error)

// EvalContext is what an expression can see.
type EvalContext struct {
	Properties PropertyMap
	Beans      BeanResolver
}

// Evaluator evaluates the body of a #{...} expression.
type Evaluator interface {
	Evaluate(expression string, ctx EvalContext) (any, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(expression string, ctx EvalContext) (any, error)

func (f EvaluatorFunc) Evaluate(expression string, ctx EvalContext) (any, error) {
	return f(expression, ctx)
}

// EvaluationError reports a failed expression.
type EvaluationError struct {
	Expression string
	Cause      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate #{%s}: %v", e.Expression, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }
