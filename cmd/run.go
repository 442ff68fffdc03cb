package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chescofire/cadwatch/internal/api"
	"github.com/chescofire/cadwatch/internal/archive"
	"github.com/chescofire/cadwatch/internal/cad"
	"github.com/chescofire/cadwatch/internal/clock/system"
	"github.com/chescofire/cadwatch/internal/config"
	"github.com/chescofire/cadwatch/internal/dedup"
	collyfetcher "github.com/chescofire/cadwatch/internal/fetcher/colly"
	"github.com/chescofire/cadwatch/internal/id/uuid"
	"github.com/chescofire/cadwatch/internal/logging"
	"github.com/chescofire/cadwatch/internal/metrics"
	"github.com/chescofire/cadwatch/internal/poller"
	"github.com/chescofire/cadwatch/internal/publisher/memory"
	"github.com/chescofire/cadwatch/internal/publisher/mqtt"
	"github.com/chescofire/cadwatch/internal/state"
)

// newRunCmd creates and configures the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var (
		once   bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Starts the board poller",
		Long: `Polls the dispatch board on the configured interval, publishing new and
updated incidents to the MQTT broker until interrupted. With --once, a single
poll cycle runs and the process exits. With --dry-run, incidents are parsed,
filtered, and logged but nothing is published or persisted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoller(cmd.Context(), once, dryRun)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll a single cycle and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run without publishing to the broker or saving state")
	return cmd
}

func runPoller(parent context.Context, once, dryRun bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Source.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	parser, err := cad.NewParser(cfg.Source.URL, loc, cfg.Source.MaxIncidentAge)
	if err != nil {
		return fmt.Errorf("init parser: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		BoardURL:  cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var (
		pub     cad.Publisher
		summary cad.SummaryPublisher
		ready   = func() bool { return true }
	)
	if dryRun {
		sink := memory.New()
		pub = sink
		if cfg.MQTT.SummaryTopic != "" {
			summary = sink
		}
		logger.Info("dry run: publishes stay in memory")
	} else {
		bus := mqtt.New(mqtt.Config{
			Host:         cfg.MQTT.Host,
			Port:         cfg.MQTT.Port,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			ClientID:     cfg.MQTT.ClientID,
			Topic:        cfg.MQTT.Topic,
			SummaryTopic: cfg.MQTT.SummaryTopic,
			QoS:          byte(cfg.MQTT.QoS),
		})
		if err := bus.Connect(ctx); err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
		defer bus.Close()
		logger.Info("connected to mqtt broker",
			zap.String("host", cfg.MQTT.Host),
			zap.Int("port", cfg.MQTT.Port),
			zap.String("topic", cfg.MQTT.Topic),
		)
		pub = bus
		ready = bus.Connected
		if cfg.MQTT.SummaryTopic != "" {
			summary = bus
		}
	}

	var states state.Store = state.Noop{}
	if !dryRun {
		states, err = buildStateStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}
	defer states.Close()

	archiver, err := buildArchiver(cfg)
	if err != nil {
		return err
	}

	p := poller.New(
		fetcher,
		parser,
		dedup.NewReconciler(cfg.Dedup.Retention),
		pub,
		summary,
		states,
		archiver,
		system.New(),
		uuid.NewGenerator(),
		poller.Config{
			Interval:       cfg.PollInterval(),
			Municipalities: cfg.Poller.Municipalities,
			FetchUnits:     cfg.Source.FetchUnits,
		},
		logger.Named("poller"),
	)

	if once {
		return p.RunOnce(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		server := api.NewServer(p, ready, logger.Named("api"))
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		g.Go(func() error {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			return server.Serve(ctx, addr)
		})
	}

	g.Go(func() error {
		logger.Info("poller started",
			zap.Duration("interval", cfg.PollInterval()),
			zap.Int("municipalities", len(cfg.Poller.Municipalities)),
		)
		return p.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStateStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (state.Store, error) {
	switch cfg.State.Provider {
	case "file":
		store, err := state.NewFileStore(cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("init file state store: %w", err)
		}
		logger.Info("using file state store", zap.String("path", cfg.State.Path))
		return store, nil
	case "postgres":
		store, err := state.NewPostgresStore(ctx, state.PostgresConfig{
			DSN:   cfg.State.DSN,
			Table: cfg.State.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres state store: %w", err)
		}
		logger.Info("using postgres state store", zap.String("table", cfg.State.Table))
		return store, nil
	case "noop":
		logger.Info("state persistence disabled")
		return state.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown state provider: %s", cfg.State.Provider)
	}
}

func buildArchiver(cfg config.Config) (cad.Archiver, error) {
	if cfg.Archive.Dir == "" {
		return nil, nil
	}
	fs, err := archive.NewFS(cfg.Archive.Dir)
	if err != nil {
		return nil, fmt.Errorf("init archive dir: %w", err)
	}
	return fs, nil
}
