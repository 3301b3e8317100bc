package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/llave-asesoria/fiscal/cmd/fiscal/cli"
	"github.com/llave-asesoria/fiscal/internal/app"
	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/clients"
	"github.com/llave-asesoria/fiscal/internal/documents"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/legacy"
	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/cache"
	"github.com/llave-asesoria/fiscal/internal/platform/db"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

// runtime holds the connections opened for a command.
type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	legacy *pgxpool.Pool
	redis  *redis.Client
	ops    *cli.OpsCLI
}

func (r *runtime) Close() {
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.legacy != nil {
		r.legacy.Close()
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func connect(ctx context.Context, jsonOutput bool) (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	catalog, err := obligations.LoadCatalog(cfg.CalendarRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load obligation rules: %w", err)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, pool: pool}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			rt.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	calendarService := calendar.NewService(calendar.NewRepository(pool), catalog, loc)
	directory := clients.NewDirectory(pool)
	reconciler := reconcile.NewReconciler(reconcile.NewStore(pool), calendarService, reconcile.Config{
		Concurrency:   cfg.ReconcileConcurrency,
		LookbackYears: cfg.ReconcileLookbackYears,
		WindowAware:   cfg.ReconcileWindowAware,
	})
	rt.ops = &cli.OpsCLI{
		Calendar:    calendarService,
		Reconciler:  reconciler,
		Filings:     filings.NewService(filings.NewRepository(pool), documents.NewStore(pool)),
		Assignments: assignments.NewService(assignments.NewRepository(pool), catalog, loc).WithClientTypes(directory),
		Directory:   directory,
		Logger:      logger,
		JSON:        jsonOutput,
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, batch lock disabled", slog.Any("error", err))
		} else {
			rt.redis = client
			rt.ops.Guard = cache.NewGuard(client, cfg.BatchLockTTL)
		}
	}

	if cfg.LegacyPGDSN != "" {
		legacyPool, err := db.New(ctx, cfg.LegacyPGDSN)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect legacy database: %w", err)
		}
		rt.legacy = legacyPool
		rt.ops.Migrator = legacy.NewMigrator(legacy.NewSource(legacyPool), legacy.NewTarget(pool), catalog, logger)
	}
	return rt, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping fiscal batch")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := newRootCmd().run(ctx)
	stop()
	os.Exit(code)
}

type rootCmd struct {
	cmd      *cobra.Command
	json     bool
	exitCode int
}

func (r *rootCmd) run(ctx context.Context) int {
	if err := r.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return r.exitCode
}

// withOps connects, runs fn and records its exit code.
func (r *rootCmd) withOps(cmd *cobra.Command, fn func(context.Context, *cli.OpsCLI) int) error {
	rt, err := connect(cmd.Context(), r.json)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fiscal:", err)
		r.exitCode = 1
		return nil
	}
	defer rt.Close()
	r.exitCode = fn(cmd.Context(), rt.ops)
	return nil
}

func newRootCmd() *rootCmd {
	r := &rootCmd{}
	r.cmd = &cobra.Command{
		Use:           "fiscal",
		Short:         "Fiscal obligation calendar and filing reconciliation",
		Long:          "Without arguments, generates the calendars of the current and next fiscal year and reconciles every client.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.BatchCommand(ctx)
			})
		},
	}
	r.cmd.PersistentFlags().BoolVar(&r.json, "json", false, "output JSON")
	r.cmd.AddCommand(r.calendarCmd(), r.reconcileCmd(), r.filingsCmd(), r.assignmentsCmd(), r.migrateLegacyCmd(), r.dbCmd())
	return r
}

func (r *rootCmd) calendarCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "calendar", Short: "Generate and inspect filing periods"}

	var gen cli.GenerateOptions
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate period definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.GenerateCommand(ctx, gen)
			})
		},
	}
	generate.Flags().StringVar(&gen.Code, "code", "", "obligation code (default: all)")
	generate.Flags().IntSliceVar(&gen.Years, "year", nil, "fiscal year (repeatable, default: current)")

	var open cli.OpenOptions
	openCmd := &cobra.Command{
		Use:   "open",
		Short: "List periods open for submission today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.OpenCommand(ctx, open)
			})
		},
	}
	openCmd.Flags().StringVar(&open.Code, "code", "", "obligation code (default: all)")
	openCmd.Flags().IntSliceVar(&open.Years, "year", nil, "fiscal year (repeatable, default: previous and current)")

	importCmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Apply submission windows from a calendar workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.ImportCommand(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(generate, openCmd, importCmd)
	return cmd
}

func (r *rootCmd) reconcileCmd() *cobra.Command {
	var opts cli.ReconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile filings against active assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.ReconcileCommand(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "reconcile a single client")
	return cmd
}

func (r *rootCmd) filingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "filings", Short: "Manage filings"}
	var opts cli.SubmitOptions
	submit := &cobra.Command{
		Use:   "submit <filing-id>",
		Short: "Mark a filing as submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.FilingID = args[0]
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.SubmitCommand(ctx, opts)
			})
		},
	}
	submit.Flags().StringVar(&opts.SubmittedAt, "at", "", "submission instant (RFC 3339 or YYYY-MM-DD, default: now)")
	submit.Flags().StringArrayVar(&opts.Refs, "ref", nil, "attachment document id (repeatable)")
	cmd.AddCommand(submit)
	return cmd
}

func (r *rootCmd) assignmentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignments", Short: "Manage client obligation assignments"}

	var add cli.AssignOptions
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Subscribe a client to an obligation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.AssignCommand(ctx, add)
			})
		},
	}
	addCmd.Flags().StringVar(&add.ClientID, "client", "", "client id")
	addCmd.Flags().StringVar(&add.Code, "code", "", "obligation code")
	addCmd.Flags().StringVar(&add.Periodicity, "periodicity", "", "MONTHLY, QUARTERLY, ANNUAL or SPECIAL")
	addCmd.Flags().StringVar(&add.From, "from", "", "first active date (YYYY-MM-DD, default: today)")
	addCmd.Flags().StringVar(&add.Until, "until", "", "last active date (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&add.Notes, "notes", "", "free text notes")
	_ = addCmd.MarkFlagRequired("client")
	_ = addCmd.MarkFlagRequired("code")
	_ = addCmd.MarkFlagRequired("periodicity")

	var client string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.AssignmentsListCommand(ctx, client)
			})
		},
	}
	listCmd.Flags().StringVar(&client, "client", "", "client id")

	deactivateCmd := &cobra.Command{
		Use:   "deactivate <assignment-id>",
		Short: "Flag an assignment inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.DeactivateCommand(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(addCmd, listCmd, deactivateCmd)
	return cmd
}

func (r *rootCmd) migrateLegacyCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate-legacy",
		Short: "Copy obligations, periods and filings from the legacy schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withOps(cmd, func(ctx context.Context, ops *cli.OpsCLI) int {
				return ops.MigrateLegacyCommand(ctx, dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the migration without writing")
	return cmd
}

func (r *rootCmd) dbCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(cmd.Context(), pool, logger)
		},
	})
	return cmd
}
