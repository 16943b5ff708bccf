// Package cli implements ledgerctl, the operator command line for the posting core.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/livestatement/backend/internal/bootstrap"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// Connector opens the core the commands act on and returns its release function
type Connector func(ctx context.Context, configPath string) (*bootstrap.Core, func() error, error)

type app struct {
	connect Connector

	configPath string
	output     string
	tenant     string

	core    *bootstrap.Core
	release func() error
}

// NewRootCommand builds the ledgerctl command tree. The returned function
// releases the core a command opened and must be called once execution ends.
func NewRootCommand(connect Connector) (*cobra.Command, func() error) {
	a := &app{connect: connect}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Live Statement ledger operator CLI",
		Long: `ledgerctl operates the posting core directly against its database.

Post manual entries and reversals, run reconciliation, recompute snapshots
and review dead letters without going through the event transport.`,
		Version:       bootstrap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./config.toml)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json")
	root.PersistentFlags().StringVar(&a.tenant, "tenant", "", "tenant ID")

	root.AddCommand(
		a.ledgerCommand(),
		a.snapshotCommand(),
		a.reconcileCommand(),
		a.statementCommand(),
		a.deadLetterCommand(),
		a.reviewCommand(),
	)
	return root, a.close
}

// Execute runs ledgerctl with the default connector
func Execute() error {
	root, release := NewRootCommand(DefaultConnector)
	err := root.Execute()
	if cerr := release(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// DefaultConnector loads .env and config and opens the Postgres-backed core.
// Commands never run the extraction handler, so it is wired without a file store or extractor.
func DefaultConnector(ctx context.Context, configPath string) (*bootstrap.Core, func() error, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := bootstrap.NewLogger(config.LogConfig{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	core, err := bootstrap.NewCore(db, bootstrap.Deps{MaxRetries: cfg.Event.MaxRetries}, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return core, func() error {
		_ = log.Sync()
		return db.Close()
	}, nil
}

// open connects once per invocation
func (a *app) open(cmd *cobra.Command) (*bootstrap.Core, error) {
	if a.core != nil {
		return a.core, nil
	}
	core, release, err := a.connect(cmd.Context(), a.configPath)
	if err != nil {
		return nil, err
	}
	a.core, a.release = core, release
	return core, nil
}

func (a *app) close() error {
	if a.release == nil {
		return nil
	}
	err := a.release()
	a.core, a.release = nil, nil
	return err
}

func (a *app) tenantID() (uuid.UUID, error) {
	if a.tenant == "" {
		return uuid.Nil, errors.New("--tenant is required")
	}
	id, err := uuid.Parse(a.tenant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --tenant: %w", err)
	}
	return id, nil
}

// session resolves the tenant and opens the core
func (a *app) session(cmd *cobra.Command) (*bootstrap.Core, uuid.UUID, error) {
	tenantID, err := a.tenantID()
	if err != nil {
		return nil, uuid.Nil, err
	}
	core, err := a.open(cmd)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return core, tenantID, nil
}

func (a *app) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), a.output)
}
