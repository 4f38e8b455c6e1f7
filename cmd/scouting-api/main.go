package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CCShambots/5907-scouting-api/pkg/api"
	"github.com/CCShambots/5907-scouting-api/pkg/blob"
	"github.com/CCShambots/5907-scouting-api/pkg/config"
	"github.com/CCShambots/5907-scouting-api/pkg/events"
	"github.com/CCShambots/5907-scouting-api/pkg/log"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/syncer"
	"github.com/CCShambots/5907-scouting-api/pkg/txlog"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scouting-api",
	Short: "Sync-capable document store for scouting form data",
	Long: `scouting-api is an offline-first document store for structured
scouting data. Every mutation is an immutable transaction against a
content-addressed blob store, and peers converge by pulling each
other's transaction logs.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scouting-api version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage and sync node",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		rebuild, _ := cmd.Flags().GetBool("rebuild-index")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg, rebuild)
	},
}

func init() {
	serveCmd.Flags().String("config", "settings.yaml", "Path to the settings file")
	serveCmd.Flags().Bool("rebuild-index", false, "Rebuild the forms index from the transaction log on startup")
}

func serve(cfg *config.Settings, rebuildIndex bool) error {
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	meta, err := metastore.Open(cfg.Path)
	if err != nil {
		return err
	}
	defer meta.Close()

	blobs, err := blob.NewStore(cfg.Path)
	if err != nil {
		return err
	}

	txns, err := txlog.Open(meta, cfg.Path, true)
	if err != nil {
		return err
	}
	defer txns.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mgr := manager.New(blobs, meta, txns, broker)

	if rebuildIndex {
		logger.Info().Msg("rebuilding forms index from transaction log")
		if err := mgr.RebuildFormsIndex(context.Background()); err != nil {
			return fmt.Errorf("rebuild forms index: %w", err)
		}
	}

	sync := syncer.New(syncer.Config{
		NodeID:           cfg.Sync.NodeID(),
		Parent:           cfg.Sync.Parent,
		ApprovedChildren: cfg.Sync.Children(),
	}, mgr)
	sync.Start()
	defer sync.Stop()

	metrics.Register()

	collector := manager.NewCollector(mgr)
	collector.Start()
	defer collector.Stop()

	appServer := &http.Server{
		Addr:         cfg.TLS.ApplicationBind,
		Handler:      api.NewServer(mgr, sync).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.TLS.MetricsBind,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info().Str("bind", cfg.TLS.ApplicationBind).Bool("tls", cfg.TLS.Enabled()).Msg("application listening")
		var err error
		if cfg.TLS.Enabled() {
			err = appServer.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			err = appServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		logger.Info().Str("bind", cfg.TLS.MetricsBind).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_ = metricsServer.Shutdown(shutdownCtx)
		return appServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
