package container_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
)

func setPeer(w *widget, peer *widget) { w.peer = peer }

// ── Setter injection & cycles ─────────────────────────────────────────────────

func TestSetterCycle_BothEndsWired(t *testing.T) {
	j := &journal{}
	c := container.New()
	require.NoError(t, c.Singleton("a", widgetRecipe("a", j), append(hooks("a", j),
		container.As("A"),
		container.Inject(container.Need("b", "B")),
	)...))
	require.NoError(t, c.Singleton("b", widgetRecipe("b", j), append(hooks("b", j),
		container.As("B"),
		container.Inject(container.Need("peer", "A").Setter(container.SetterFunc(setPeer))),
	)...))
	require.NoError(t, c.Start())

	a, err := c.Get("a")
	require.NoError(t, err)
	b, err := c.Get("b")
	require.NoError(t, err)
	assert.Same(t, b, a.(*widget).deps["b"])
	assert.Same(t, a, b.(*widget).peer)

	report := c.Close()
	assert.Equal(t, []string{"a", "b"}, report.Destroyed)
	assert.Equal(t, []string{"new b", "new a", "init b", "init a", "destroy a", "destroy b"}, j.list())
}

func TestSetterCycle_SelfReference(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Singleton("self", widgetRecipe("self", nil),
		container.As(widgetCap),
		container.Inject(container.NeedOf[*widget]("peer").Setter(container.SetterFunc(setPeer))),
	))
	startOK(t, c)

	w := container.MustResolve[*widget](c)
	assert.Same(t, w, w.peer)
}

func TestSetter_InitHooksSeeInjectedValues(t *testing.T) {
	var sawPeer bool
	c := container.New(container.WithProperties(config.NewMapSource("props", map[string]string{"label": "x"})))
	require.NoError(t, c.Singleton("dep", widgetRecipe("dep", nil), container.As("Dep")))
	require.NoError(t, c.Singleton("svc", widgetRecipe("svc", nil),
		container.Inject(
			container.Need("peer", "Dep").Setter(container.SetterFunc(setPeer)),
			container.Value("label", "${label}").Setter(container.SetterFunc(func(w *widget, v string) { w.name = v })),
		),
		container.OnInit(container.Method("check", func(w *widget) error {
			sawPeer = w.peer != nil && w.name == "x"
			return nil
		})),
	))
	startOK(t, c)
	assert.True(t, sawPeer)
}

func TestSetter_TypeMismatchFailsCreation(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Singleton("dep", func(container.Args) (any, error) { return "not a widget", nil }, container.As("Dep")))
	require.NoError(t, c.Singleton("svc", widgetRecipe("svc", nil),
		container.Inject(container.Need("peer", "Dep").Setter(container.SetterFunc(setPeer)))))

	err := c.Start()

	var cf *container.CreationFailureError
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "svc", cf.Declaration)
	assert.ErrorContains(t, err, "setter peer")
}

// ── Optional slots ────────────────────────────────────────────────────────────

func TestOptionalSlots(t *testing.T) {
	c := container.New(container.WithProperties(config.NewMapSource("props", map[string]string{"default.store": "none"})))
	require.NoError(t, c.Singleton("svc", func(args container.Args) (any, error) {
		assert.False(t, args.Has("store"))
		assert.Equal(t, "none", args.String("label"))
		assert.Equal(t, "svc", args.Declaration())
		return &widget{name: "svc"}, nil
	},
		container.As(widgetCap),
		container.Inject(
			container.Need("store", storeCap).Maybe(),
			container.Need("label", "Label").OrDefault("${default.store}"),
		)))
	startOK(t, c)

	_, err := container.Resolve[*widget](c)
	assert.NoError(t, err)
}

func TestArgs_TypedAccess(t *testing.T) {
	c := container.New(container.WithProperties(config.NewMapSource("props", map[string]string{
		"port": "8080", "debug": "true", "timeout": "1500ms",
	})))
	require.NoError(t, c.Singleton("pg", func(container.Args) (any, error) { return &store{"pg"}, nil }, container.As(storeCap)))
	require.NoError(t, c.Singleton("svc", func(args container.Args) (any, error) {
		port, err := args.Int("port")
		require.NoError(t, err)
		debug, err := args.Bool("debug")
		require.NoError(t, err)
		timeout, err := args.Duration("timeout")
		require.NoError(t, err)
		s, err := container.Arg[Store](args, "store")
		require.NoError(t, err)

		assert.Equal(t, 8080, port)
		assert.True(t, debug)
		assert.Equal(t, 1500*time.Millisecond, timeout)
		assert.Equal(t, "pg", s.Name())

		_, err = container.Arg[*widget](args, "store")
		assert.Error(t, err)
		_, err = container.Arg[Store](args, "missing")
		assert.Error(t, err)
		return &widget{}, nil
	}, container.Inject(
		container.Value("port", "${port}"),
		container.Value("debug", "${debug}"),
		container.Value("timeout", "${timeout}"),
		container.NeedOf[Store]("store"),
	)))
	startOK(t, c)
}

// ── Lazy slots ────────────────────────────────────────────────────────────────

func TestLazySlot_ResolvesOnCall(t *testing.T) {
	var built atomic.Int32
	c := container.New()
	require.NoError(t, c.Singleton("mailer", func(container.Args) (any, error) {
		built.Add(1)
		return &widget{name: "mailer"}, nil
	}, container.As("Mailer"), container.LazyInit()))
	require.NoError(t, c.Singleton("svc", widgetRecipe("svc", nil),
		container.As(widgetCap),
		container.Inject(container.Need("dep", "Mailer").Lazily())))
	startOK(t, c)
	assert.Zero(t, built.Load())

	svc := container.MustResolve[*widget](c)
	get, ok := svc.deps["dep"].(container.Provider)
	require.True(t, ok)

	m1, err := get()
	require.NoError(t, err)
	m2, err := get()
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.EqualValues(t, 1, built.Load())
}

func TestLazySlot_CycleThroughProviderDuringCreation(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Singleton("a", widgetRecipe("a", nil), container.As("A"), container.Inject(container.Need("b", "B"))))
	require.NoError(t, c.Singleton("b", func(args container.Args) (any, error) {
		get, err := container.Arg[container.Provider](args, "a")
		if err != nil {
			return nil, err
		}
		if _, err := get(); err != nil {
			return nil, err
		}
		return &widget{name: "b"}, nil
	}, container.As("B"), container.Inject(container.Need("a", "A").Lazily())))

	err := c.Start()

	var cyc *container.CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
}

func TestLazySlot_LazyCycleIsFineWhenCalledLater(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Singleton("a", widgetRecipe("a", nil), container.As("A"), container.Inject(container.Need("b", "B"))))
	require.NoError(t, c.Singleton("b", widgetRecipe("b", nil), container.As("B"), container.Inject(container.Need("peer", "A").Lazily())))
	startOK(t, c)

	b, err := c.Get("b")
	require.NoError(t, err)
	a, err := b.(*widget).deps["peer"].(container.Provider)()
	require.NoError(t, err)
	assert.Equal(t, "a", a.(*widget).name)
}

func TestLazySlot_PrototypeCallingItself(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Bind("p", func(args container.Args) (any, error) {
		get, _ := container.Arg[container.Provider](args, "next")
		_, err := get()
		return &widget{}, err
	}, container.As("P"), container.Inject(container.Need("next", "P").Lazily())))
	startOK(t, c)

	_, err := c.Get("p")
	var cyc *container.CyclicDependencyError
	assert.ErrorAs(t, err, &cyc)
}

func TestLazySlot_ConcurrentCycleFailsInsteadOfBlocking(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	var barrier atomic.Bool
	barrier.Store(true)

	recipe := func(peer string) container.Recipe {
		return func(args container.Args) (any, error) {
			if barrier.Load() {
				// both creations hold their own group before either asks for the other
				entered.Done()
				entered.Wait()
			}
			get, err := container.Arg[container.Provider](args, "peer")
			if err != nil {
				return nil, err
			}
			if _, err := get(); err != nil {
				return nil, err
			}
			return &widget{name: peer}, nil
		}
	}

	c := container.New()
	require.NoError(t, c.Singleton("a", recipe("b"), container.As("A"), container.LazyInit(),
		container.Inject(container.Need("peer", "B").Lazily())))
	require.NoError(t, c.Singleton("b", recipe("a"), container.As("B"), container.LazyInit(),
		container.Inject(container.Need("peer", "A").Lazily())))
	startOK(t, c)

	errs := make(chan error, 2)
	for _, id := range []string{"a", "b"} {
		id := id
		go func() {
			_, err := c.Get(id)
			errs <- err
		}()
	}

	for j := 0; j < 2; j++ {
		select {
		case err := <-errs:
			var cyc *container.CyclicDependencyError
			assert.ErrorAs(t, err, &cyc)
		case <-time.After(5 * time.Second):
			t.Fatal("lookup blocked on a concurrent creation cycle")
		}
	}
	barrier.Store(false)

	_, err := c.Get("a")
	var cyc *container.CyclicDependencyError
	assert.ErrorAs(t, err, &cyc)
}

// ── Scopes ────────────────────────────────────────────────────────────────────

func TestEndScope(t *testing.T) {
	var destroyed []string
	c := container.New()
	require.NoError(t, c.Singleton("app", widgetRecipe("app", nil)))
	require.NoError(t, c.Register(
		container.Declaration{ID: "req", Scope: container.Request, Recipe: widgetRecipe("req", nil),
			DestroyHooks: []container.Hook{{Name: "d", Run: func(any) error { destroyed = append(destroyed, "req"); return nil }}}},
		container.Declaration{ID: "tenant", Scope: "tenant", Recipe: widgetRecipe("tenant", nil)},
	))
	startOK(t, c)

	r1, err := c.Get("req")
	require.NoError(t, err)
	r2, err := c.Get("req")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	_, err = c.Get("tenant")
	require.NoError(t, err)

	report, err := c.EndScope(container.Request)
	require.NoError(t, err)
	assert.Equal(t, []string{"req"}, report.Destroyed)
	assert.Equal(t, []string{"req"}, destroyed)

	r3, err := c.Get("req")
	require.NoError(t, err)
	assert.NotSame(t, r1, r3)

	_, err = c.EndScope(container.Singleton)
	assert.Error(t, err)

	final := c.Close()
	assert.ElementsMatch(t, []string{"app", "tenant", "req"}, final.Destroyed)
}

func TestClosingDuringLazyCreationDestroysTheNewInstance(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var destroyed atomic.Bool

	c := container.New()
	require.NoError(t, c.Singleton("slow", func(container.Args) (any, error) {
		close(started)
		<-release
		return &widget{name: "slow"}, nil
	}, container.LazyInit(), container.OnDestroy(container.Hook{Name: "d", Run: func(any) error {
		destroyed.Store(true)
		return nil
	}})))
	require.NoError(t, c.Start())

	errc := make(chan error, 1)
	go func() {
		_, err := c.Get("slow")
		errc <- err
	}()

	<-started
	c.Close()
	close(release)

	assert.ErrorIs(t, <-errc, container.ErrClosedContainer)
	assert.True(t, destroyed.Load())
}

func TestCreationFailureRollsBackGroup(t *testing.T) {
	j := &journal{}
	c := container.New()
	require.NoError(t, c.Singleton("a", widgetRecipe("a", j), append(hooks("a", j),
		container.As("A"),
		container.Inject(container.Need("b", "B")),
		container.OnInit(container.Hook{Name: "explode", Run: func(any) error { return errors.New("bad") }}),
	)...))
	require.NoError(t, c.Singleton("b", widgetRecipe("b", j), append(hooks("b", j),
		container.As("B"),
		container.Inject(container.Need("peer", "A").Setter(container.SetterFunc(setPeer))),
	)...))

	err := c.Start()
	require.Error(t, err)

	// b finished initializing before a's hook failed, so it is torn down
	assert.Equal(t, []string{"new b", "new a", "init b", "init a", "destroy b"}, j.list())
}
