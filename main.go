package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/km-arc/go-ioc/framework/app"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/logging"
)

// ── Example components ───────────────────────────────────────────────────────

type Store interface{ Name() string }

type memoryStore struct{ dsn string }

func (s *memoryStore) Name() string { return "memory:" + s.dsn }
func (s *memoryStore) Close() error { return nil }

type UserService struct {
	store Store
	log   logging.Logger
}

var storeCap = container.CapabilityOf[Store]()

// AppServiceProvider registers the example components.
type AppServiceProvider struct{ container.BaseProvider }

func (p *AppServiceProvider) Register(c *container.Container) error {
	if err := c.Singleton("store", func(args container.Args) (any, error) {
		return &memoryStore{dsn: args.String("dsn")}, nil
	},
		container.As(storeCap),
		container.Inject(container.Value("dsn", "${db.dsn:mem://local}")),
	); err != nil {
		return err
	}
	return c.Singleton("users", func(args container.Args) (any, error) {
		store, err := container.Arg[Store](args, "store")
		if err != nil {
			return nil, err
		}
		log, err := container.Arg[logging.Logger](args, "log")
		if err != nil {
			return nil, err
		}
		return &UserService{store: store, log: log}, nil
	}, container.As(container.CapabilityOf[*UserService]()), container.Inject(
		container.NeedOf[Store]("store"),
		container.NeedOf[logging.Logger]("log"),
	))
}

func (p *AppServiceProvider) Boot(c *container.Container) error {
	users, err := container.ResolveNamed[*UserService](c, "users")
	if err != nil {
		return err
	}
	users.log.Info("users ready", "store", users.store.Name())
	return nil
}

func main() {
	application, err := app.New(app.WithProviders(&AppServiceProvider{}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
