// Package container is a component container: it takes explicit component
// declarations, filters them by active profile, resolves their dependency
// graph, creates them in dependency order and destroys them in reverse.
//
// Go has no runtime constructor reflection worth relying on, so every
// component is declared with a recipe and a list of named slots.
//
// # Lifecycle
//
//  1. Create: c := container.New(opts...)
//  2. Declare: c.Singleton / c.Bind / c.Instance / c.Register
//  3. Start: c.Start() filters, resolves and creates eager singletons
//  4. Use: c.Lookup / c.LookupNamed / container.Resolve[T]
//  5. Close: report := c.Close()
//
// # Declarations
//
//	storeCap := container.CapabilityOf[Store]()
//
//	// Singleton, created at Start
//	c.Singleton("pgStore", newPGStore,
//	    container.As(storeCap),
//	    container.WithQualifiers("primary"),
//	    container.Inject(container.Value("dsn", "${db.url}")),
//	    container.OnDestroy(container.Method("Close", (*PGStore).Close)))
//
//	// Prototype, built on every lookup
//	c.Bind("request", newRequest, container.As(requestCap))
//
//	// Only with the "dev" profile, and not in the cloud
//	c.Singleton("memStore", newMemStore, container.As(storeCap), container.OnProfile("dev & !cloud"))
//
// # Slots
//
// Constructor slots are resolved before the recipe runs and reach it
// through Args. Setter slots are applied right after construction and may
// close a dependency cycle. Lazy slots receive a Provider.
//
//	container.Inject(
//	    container.Need("store", storeCap).Qualified("primary"),
//	    container.Need("audit", auditCap).Maybe(),
//	    container.Need("clock", clockCap).Setter(container.SetterFunc((*Service).SetClock)),
//	    container.Need("mailer", mailerCap).Lazily(),
//	    container.Value("timeout", "${http.timeout:30s}"),
//	)
//
// When several components provide a slot's capability the qualifier is
// tried first, then the name hint, which matches ids and aliases.
//
// # Properties
//
// Value slots and defaults use ${key} and ${key:default} placeholders from
// the config package. #{...} expressions are handed to the configured
// Evaluator; see package expr.
//
// # Service Providers
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&MailProvider{})
//	c.Start()
//	registry.Boot()
package container
