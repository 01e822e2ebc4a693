// Package app is the application kernel: it assembles property sources,
// picks the active profiles, registers the framework providers and runs
// the container.
//
//	application, err := app.New(app.WithProviders(&UserProvider{}))
//	if err != nil { ... }
//	if err := application.Start(); err != nil { ... }
//	defer application.Close()
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-ioc/framework/actuator"
	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/expr"
	"github.com/km-arc/go-ioc/framework/logging"
	"github.com/km-arc/go-ioc/framework/providers"
)

// ProfilesKey selects the active profiles when none are passed explicitly.
const ProfilesKey = "app.profiles.active"

// Application is the top-level application container.
// It embeds the container and the provider registry so user code can call
// app.Singleton(), app.Get() and friends directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry
	log       logging.Logger
}

type settings struct {
	configDir     string
	envFiles      []string
	sources       []config.Source
	profiles      []string
	providers     []container.ServiceProvider
	logOutput     io.Writer
	containerOpts []container.Option
}

// Option configures New.
type Option func(*settings)

// WithConfigDir sets where application.yaml and application-<profile>.yaml
// are read from. Default: the working directory.
func WithConfigDir(dir string) Option { return func(s *settings) { s.configDir = dir } }

// WithEnvFiles replaces the default ".env". Listed files must exist.
func WithEnvFiles(files ...string) Option { return func(s *settings) { s.envFiles = files } }

// WithSources adds property sources that take precedence over the
// environment and every file.
func WithSources(sources ...config.Source) Option {
	return func(s *settings) { s.sources = append(s.sources, sources...) }
}

// WithProfiles activates profiles, ignoring app.profiles.active.
func WithProfiles(profiles ...string) Option {
	return func(s *settings) { s.profiles = append(s.profiles, profiles...) }
}

// WithProviders registers user providers after the framework ones.
func WithProviders(ps ...container.ServiceProvider) Option {
	return func(s *settings) { s.providers = append(s.providers, ps...) }
}

// WithLogOutput redirects the framework logger. Default: os.Stderr.
func WithLogOutput(w io.Writer) Option { return func(s *settings) { s.logOutput = w } }

// WithContainerOptions passes options through to container.New.
func WithContainerOptions(opts ...container.Option) Option {
	return func(s *settings) { s.containerOpts = append(s.containerOpts, opts...) }
}

// New loads configuration and registers providers. Nothing is created
// until Start.
//
// Property precedence, highest first: WithSources, the environment, .env
// files, application-<profile>.yaml (later profiles win), application.yaml.
func New(opts ...Option) (*Application, error) {
	s := settings{configDir: "."}
	for _, opt := range opts {
		opt(&s)
	}

	props := config.NewResolver(s.sources...)
	props.Add(config.NewEnvSource())
	if err := addDotenv(props, s.envFiles); err != nil {
		return nil, err
	}
	base, err := loadYAML(filepath.Join(s.configDir, "application.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := s.profiles
	if len(profiles) == 0 {
		profiles = activeProfiles(props, base)
	}
	for i := len(profiles) - 1; i >= 0; i-- {
		src, err := loadYAML(filepath.Join(s.configDir, "application-"+profiles[i]+".yaml"))
		if err != nil {
			return nil, err
		}
		if src != nil {
			props.Add(src)
		}
	}
	if base != nil {
		props.Add(base)
	}
	props.SetEvaluator(expr.New())

	log, err := logging.Open(s.logOutput, props.Get("logging.driver", "slog"), props.Get("logging.format", "text"), props.Get("logging.level", "info"))
	if err != nil {
		return nil, err
	}

	c := container.New(append([]container.Option{
		container.WithResolver(props),
		container.WithProfiles(profiles...),
		container.WithLogger(log),
	}, s.containerOpts...)...)

	a := &Application{Container: c, Providers: container.NewProviderRegistry(c), log: log}
	defaults := []container.ServiceProvider{
		&providers.ConfigServiceProvider{},
		&providers.LoggingServiceProvider{Logger: log},
		&providers.ActuatorServiceProvider{},
	}
	for _, p := range append(defaults, s.providers...) {
		if err := a.Providers.Register(p); err != nil {
			return nil, fmt.Errorf("app: register %T: %w", p, err)
		}
	}
	log.Debug("application configured", "profiles", profiles, "sources", props.Sources())
	return a, nil
}

func addDotenv(props *config.Resolver, files []string) error {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if explicit {
			return fmt.Errorf("app: env file %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	src, err := config.NewDotenvSource(present...)
	if err != nil {
		return err
	}
	props.Add(src)
	return nil
}

// loadYAML returns nil when path does not exist.
func loadYAML(path string) (config.Source, error) {
	src, err := config.LoadYAMLFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// activeProfiles reads app.profiles.active from the sources loaded so far
// and then from application.yaml.
func activeProfiles(props *config.Resolver, base config.Source) []string {
	raw, ok := props.Resolve(ProfilesKey)
	if !ok && base != nil {
		raw, _ = base.Lookup(ProfilesKey)
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// Start starts the container and boots every provider. A boot failure
// closes the container again.
func (a *Application) Start() error {
	if err := a.Container.Start(); err != nil {
		return err
	}
	if err := a.Providers.Boot(); err != nil {
		report := a.Container.Close()
		return errors.Join(err, report.Err())
	}
	a.log.Info("application started", "components", len(a.Components()))
	return nil
}

// Close shuts the container down and reports destruction failures.
func (a *Application) Close() error {
	return a.Container.Close().Err()
}

// Handler returns the actuator router.
func (a *Application) Handler() (http.Handler, error) {
	r, err := container.Resolve[*actuator.Router](a.Container)
	if err != nil {
		return nil, err
	}
	return r.Handler(), nil
}

// Run starts the application, serves the actuator on server.port (default
// 8080) and closes everything once ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.Phase() < container.PhaseReady {
		if err := a.Start(); err != nil {
			return err
		}
	}
	h, err := a.Handler()
	if err != nil {
		return errors.Join(err, a.Close())
	}
	srv := &http.Server{
		Addr:              ":" + a.Properties().Get("server.port", "8080"),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("actuator listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	err = g.Wait()
	return errors.Join(err, a.Close())
}
