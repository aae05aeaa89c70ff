package cmd

import (
	"context"

	"cashflow-reconciler/cmd/reconciler/config"
	"cashflow-reconciler/internal/locking"
	"cashflow-reconciler/internal/parsers"
	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/internal/sources"
	"cashflow-reconciler/internal/store"
	"cashflow-reconciler/pkg/logger"

	"go.uber.org/multierr"
)

// application holds the wired service and everything that must be closed
type application struct {
	store   store.Store
	service *reconciler.Service
	closers []func() error
}

func (a *application) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return err
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver != config.StorePostgres {
		return store.NewMemoryStore(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func buildLocker(ctx context.Context, cfg config.LockConfig) (locking.Locker, func() error, error) {
	if cfg.Driver != config.LockRedis {
		return locking.NewLocalLocker(), func() error { return nil }, nil
	}
	client, err := locking.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	return locking.NewRedisLocker(client, cfg.TTL), client.Close, nil
}

// buildApplication wires store, lock, sources and service from cfg
func buildApplication(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*application, error) {
	app := &application{}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	app.store = st
	app.closers = append(app.closers, st.Close)

	locker, closeLocker, err := buildLocker(ctx, cfg.Lock)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeLocker)

	srcs, err := sources.Build(cfg.Sources.Enabled, st, st)
	if err != nil {
		app.Close()
		return nil, err
	}

	parser, err := parsers.NewStatementParser(&cfg.Parser)
	if err != nil {
		app.Close()
		return nil, err
	}

	svc, err := reconciler.NewService(reconciler.Dependencies{
		Store:    st,
		Sources:  srcs,
		Locker:   locker,
		Parser:   parser,
		Matching: &cfg.Matching,
		Logger:   log,
	}, cfg.ReconcilerConfig())
	if err != nil {
		app.Close()
		return nil, err
	}
	app.service = svc

	log.WithFields(logger.Fields{
		"store":   cfg.Store.Driver,
		"lock":    cfg.Lock.Driver,
		"sources": svc.Sources(),
	}).Debug("Application wired")

	return app, nil
}
