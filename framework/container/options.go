package container

import (
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/logging"
)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.log = l
		}
	}
}

// WithResolver replaces the property resolver.
func WithResolver(r *config.Resolver) Option {
	return func(c *Container) {
		if r != nil {
			c.props = r
		}
	}
}

// WithProperties appends property sources in precedence order.
func WithProperties(sources ...config.Source) Option {
	return func(c *Container) {
		for _, s := range sources {
			c.props.Add(s)
		}
	}
}

// WithProfiles appends active profiles.
func WithProfiles(profiles ...string) Option {
	return func(c *Container) { c.profiles = append(c.profiles, profiles...) }
}

// WithPropertyRules validates properties before the graph is resolved.
//
//	container.WithPropertyRules(config.Rules{"server.port": "required|integer"})
func WithPropertyRules(rules config.Rules) Option {
	return func(c *Container) {
		if c.rules == nil {
			c.rules = make(config.Rules, len(rules))
		}
		for k, v := range rules {
			c.rules[k] = v
		}
	}
}

// WithEvaluator installs the evaluator for #{...} expressions.
func WithEvaluator(e config.Evaluator) Option {
	return func(c *Container) { c.props.SetEvaluator(e) }
}
