package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/flowstack-agency/leadflow/internal/chat"
	"github.com/flowstack-agency/leadflow/internal/cost"
	"github.com/flowstack-agency/leadflow/internal/executor"
	"github.com/flowstack-agency/leadflow/internal/gateway"
	"github.com/flowstack-agency/leadflow/internal/ledger"
	"github.com/flowstack-agency/leadflow/internal/scheduler"
	"github.com/flowstack-agency/leadflow/internal/scorer"
	"github.com/flowstack-agency/leadflow/internal/store"
	"github.com/flowstack-agency/leadflow/pkg/resend"
)

// pipelineEnv holds the initialized store, clients, and pipeline stages
// shared by the serve and followups commands.
type pipelineEnv struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Scorer    *scorer.Scorer
	Executor  *executor.Executor
	Assistant *chat.Assistant
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for the given mode, opens the store,
// and wires the gateway, ledger, scheduler, scorer, executor, and chat
// assistant. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	calc := cost.NewCalculator(cfg.Pricing)

	gw, err := gateway.NewFromConfig(cfg.Model.Key, cfg.Model.BaseURL, cfg.Model.Models, calc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	led := ledger.New(st, calc)

	var schedOpts []scheduler.Option
	if cfg.Followups.SequencesFile != "" {
		overrides, err := scheduler.LoadSequences(cfg.Followups.SequencesFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load sequences file")
		}
		schedOpts = append(schedOpts, scheduler.WithOverrides(overrides))
	}
	sched := scheduler.New(st, schedOpts...)

	emails := resend.NewClient(cfg.Email.Key, resend.WithBaseURL(cfg.Email.BaseURL))

	exec := executor.New(st, gw, led, emails, executor.Config{
		From:        cfg.Email.From,
		ItemTimeout: time.Duration(cfg.Followups.ItemTimeoutSecs) * time.Second,
		ItemDelay:   time.Duration(cfg.Followups.ItemDelayMS) * time.Millisecond,
	})

	return &pipelineEnv{
		Store:     st,
		Ledger:    led,
		Scorer:    scorer.New(st, gw, led, sched),
		Executor:  exec,
		Assistant: chat.New(gw, led),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
