package container

import "fmt"

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the registration of related components.
//
// Register runs before the container starts and may only declare
// components. Boot runs once the container is ready and may look them up.
//
//	type MailProvider struct{ container.BaseProvider }
//
//	func (p *MailProvider) Register(app *container.Container) error {
//	    return app.Singleton("mailer", newMailer,
//	        container.As(mailerCap),
//	        container.Inject(container.Value("host", "${mail.host}")))
//	}
type ServiceProvider interface {
	Register(app *Container) error
	Boot(app *Container) error

	// Provides lists the component ids a deferred provider registers.
	Provides() []string

	// IsDeferred marks every component in Provides as lazy: none of them
	// is created until first looked up or injected.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with no-op Boot, Provides and
// IsDeferred.
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container) error { return nil }
func (p *BaseProvider) Provides() []string      { return nil }
func (p *BaseProvider) IsDeferred() bool        { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers providers before Start and boots them after.
type ProviderRegistry struct {
	app        *Container
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register calls provider.Register. Registering a provider twice is a no-op.
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	if r.registered[provider] {
		return nil
	}
	if err := provider.Register(r.app); err != nil {
		return fmt.Errorf("register %T: %w", provider, err)
	}
	if provider.IsDeferred() {
		if err := r.markDeferred(provider); err != nil {
			return err
		}
	}
	r.registered[provider] = true
	r.providers = append(r.providers, provider)
	return nil
}

func (r *ProviderRegistry) markDeferred(provider ServiceProvider) error {
	r.app.mu.Lock()
	defer r.app.mu.Unlock()
	if r.app.Phase() != PhaseUninitialized {
		return ErrAlreadyStarted
	}
	for _, id := range provider.Provides() {
		decls := r.app.catalog.find(id)
		if len(decls) == 0 {
			return fmt.Errorf("deferred %T does not register %q", provider, id)
		}
		for _, d := range decls {
			d.Lazy = true
		}
	}
	return nil
}

// Boot calls Boot on every provider in registration order. The container
// must be ready. Calling Boot again is a no-op.
func (r *ProviderRegistry) Boot() error {
	if r.booted {
		return nil
	}
	if err := r.app.ready(); err != nil {
		return err
	}
	for _, provider := range r.providers {
		if err := provider.Boot(r.app); err != nil {
			return fmt.Errorf("boot %T: %w", provider, err)
		}
	}
	r.booted = true
	return nil
}

// Booted reports whether Boot has completed.
func (r *ProviderRegistry) Booted() bool { return r.booted }

// Providers returns the registered providers in registration order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	return append([]ServiceProvider(nil), r.providers...)
}
