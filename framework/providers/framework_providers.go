// Package providers holds the service providers the application kernel
// registers by default.
package providers

import (
	"io"
	"net/http"

	"github.com/km-arc/go-ioc/framework/actuator"
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/logging"
)

// Capabilities published by the framework providers.
var (
	ConfigCapability   = container.CapabilityOf[*config.Resolver]()
	LoggerCapability   = container.CapabilityOf[logging.Logger]()
	ActuatorCapability = container.CapabilityOf[*actuator.Router]()
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider adds .env files as a property source and exposes
// the container's resolver as a component.
//
// Registered components:
//   - "config" → *config.Resolver (alias "configuration")
type ConfigServiceProvider struct {
	container.BaseProvider
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) error {
	if len(p.EnvFiles) > 0 {
		src, err := config.NewDotenvSource(p.EnvFiles...)
		if err != nil {
			return err
		}
		app.Properties().Add(src)
	}
	return app.Instance("config", app.Properties(),
		container.As(ConfigCapability),
		container.WithAliases("configuration"))
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider registers the application logger.
//
// Registered components:
//   - "logger" → logging.Logger
//
// Properties:
//   - logging.driver (default: slog)  slog | zap
//   - logging.format (default: text)  text | json
//   - logging.level  (default: info)
type LoggingServiceProvider struct {
	container.BaseProvider
	Output io.Writer      // default: os.Stderr
	Logger logging.Logger // registered as is when set; properties are ignored
}

func (p *LoggingServiceProvider) Register(app *container.Container) error {
	if p.Logger != nil {
		return app.Instance("logger", p.Logger, container.As(LoggerCapability))
	}
	out := p.Output
	return app.Singleton("logger", func(args container.Args) (any, error) {
		return logging.Open(out, args.String("driver"), args.String("format"), args.String("level"))
	},
		container.As(LoggerCapability),
		container.Inject(
			container.Value("driver", "${logging.driver:slog}"),
			container.Value("format", "${logging.format:text}"),
			container.Value("level", "${logging.level:info}"),
		),
		container.OnDestroy(container.Hook{Name: "sync", Run: syncLogger}),
	)
}

func syncLogger(instance any) error {
	if s, ok := instance.(interface{ Sync() error }); ok {
		// fsync on a terminal fails with EINVAL; nothing is lost.
		_ = s.Sync()
	}
	return nil
}

// ── ActuatorServiceProvider ───────────────────────────────────────────────────

// ActuatorServiceProvider registers the actuator HTTP handler. It is
// deferred: the router is built on first lookup.
//
// Registered components:
//   - "actuator" → *actuator.Router
type ActuatorServiceProvider struct {
	container.BaseProvider
	Middleware []func(next http.Handler) http.Handler
}

func (p *ActuatorServiceProvider) Register(app *container.Container) error {
	mw := p.Middleware
	return app.Singleton("actuator", func(container.Args) (any, error) {
		return actuator.New(app, mw...), nil
	}, container.As(ActuatorCapability))
}

func (p *ActuatorServiceProvider) IsDeferred() bool   { return true }
func (p *ActuatorServiceProvider) Provides() []string { return []string{"actuator"} }
