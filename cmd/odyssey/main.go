package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if err := serve(cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "migrate":
		os.Exit(runMigrate(cfg, args))
	case "jobs":
		os.Exit(runJobs(cfg, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (serve, migrate, jobs)\n", command)
		os.Exit(2)
	}
}

func serve(cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	services, err := app.OpenServices(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	var jobHandler *jobs.Handler
	if services.Redis != nil {
		opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(opts)
		client := asynq.NewClient(opts)
		defer func() {
			if err := errors.Join(inspector.Close(), client.Close()); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobs.NewClient(client), logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      accounting.NewHandler(logger, services.Ledger),
		AccountsHandler:    accounts.NewHandler(logger, services.Accounts),
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		JobHandler:         jobHandler,
		Metrics:            metrics,
		Health:             services.Health,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("driver", cfg.DBDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(cfg *app.Config, args []string) int {
	if cfg.DBDriver != app.DriverPostgres {
		fmt.Fprintf(os.Stderr, "migrate: driver %q manages its own schema\n", cfg.DBDriver)
		return 2
	}
	migrator, err := db.NewMigrator(cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	defer func() { _ = migrator.Close() }()
	return cli.MigrateCommand(migrator, args, os.Stdout, os.Stderr)
}

func runJobs(cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: jobs trigger <type> [-repair] [-retention-hours n] [chart_account_id organization_id] | jobs stats")
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	ctx := context.Background()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		repair := fs.Bool("repair", false, "rewrite mismatched balances during an integrity sweep")
		retention := fs.Int("retention-hours", 0, "idempotency key retention for cleanup")
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task type required")
			return 2
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], cli.TriggerOptions{Args: fs.Args(), Repair: *repair, RetentionHours: *retention})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		scheduled, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, task := range scheduled {
			fmt.Printf("scheduled %s id=%s next=%s\n", task.Type, task.ID, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
	return 0
}
