package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/internal/logging"
	"github.com/mesh-intelligence/lawcascade/internal/operator"
	"github.com/mesh-intelligence/lawcascade/internal/parser"
	"github.com/mesh-intelligence/lawcascade/internal/postgres"
	"github.com/mesh-intelligence/lawcascade/internal/sqlite"
	"github.com/mesh-intelligence/lawcascade/internal/telemetry"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const serviceName = "cascade"

// app is one command's view of the configured deployment.
type app struct {
	cfg     types.Config
	logger  *slog.Logger
	backend *sqlite.Backend
	pg      *postgres.Store
	coord   *cascade.Coordinator
}

// openApp loads the configuration and opens storage, collaborators and
// telemetry. The caller must call close.
func openApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	ctx := cmd.Context()
	cfg, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}
	if err := telemetry.Init(ctx, serviceName, Version); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.backend, err = sqlite.Open(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open queue: %w", err)
	}

	var laws types.LawStore = a.backend.Laws()
	if cfg.LawStore == types.LawStorePostgres {
		a.pg, err = postgres.Open(ctx, cfg.PostgresDSN, postgres.WithRetryMaxElapsed(cfg.RetryMaxElapsed))
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open law store: %w", err)
		}
		laws = a.pg
	}

	opts := []cascade.Option{
		cascade.WithConfig(cfg),
		cascade.WithLogger(logger),
		cascade.WithRunnerOptions(operator.WithMetrics(telemetry.NewOperatorMetrics(nil))),
	}
	// Without parser_url the reparse and import operators report
	// ErrNoCollaborator.
	if cfg.ParserURL != "" {
		client := parser.NewClient(cfg.ParserURL, cfg.ParserTimeout,
			parser.WithRetryMaxElapsed(cfg.RetryMaxElapsed),
			parser.WithLogger(logger))
		opts = append(opts, cascade.WithReparser(client), cascade.WithImporter(client))
	}
	a.coord = cascade.New(telemetry.WrapQueue(a.backend.Queue()), laws, opts...)
	return a, nil
}

// close releases everything openApp opened.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.pg != nil {
		errs = append(errs, a.pg.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	errs = append(errs, telemetry.Shutdown(context.WithoutCancel(ctx)))
	return errors.Join(errs...)
}

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(a *app) error) (err error) {
	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(cmd.Context()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
