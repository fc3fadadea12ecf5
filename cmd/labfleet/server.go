package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labfleet/labfleet/pkg/api"
	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/command"
	"github.com/labfleet/labfleet/pkg/config"
	"github.com/labfleet/labfleet/pkg/events"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/metrics"
	"github.com/labfleet/labfleet/pkg/scheduler"
	"github.com/labfleet/labfleet/pkg/service"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")
	logger.Info().Str("version", Version).Msg("starting labfleet")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker(cfg.SubscriberQueue)
	broker.Start()
	defer broker.Stop()
	relay := events.NewRelay(broker)

	cloudAPI := cloud.NewEC2Adapter(cloud.Options{
		OpTimeout:      cfg.CloudOpTimeout,
		MetricsTimeout: cfg.CloudMetricsTimeout,
	})
	services := service.NewFactory(service.Config{
		Credentials: service.Credentials{
			Username: cfg.ServiceUsername,
			Password: cfg.ServicePassword,
		},
		Timeout:       cfg.ServiceAPITimeout,
		SkipTLSVerify: cfg.ServiceTLSSkipVerify,
	})

	mediator := command.NewMediator()
	command.NewHandlers(mediator, store, cloudAPI, services, relay, command.Settings{
		IdleWindow: cfg.IdleWindow,
	})

	sched := scheduler.New(store, mediator, scheduler.Options{
		ThrottleTTL:   cfg.WorkerRefreshThrottle,
		ShutdownGrace: cfg.ShutdownGrace,
	})
	jobs := scheduler.DefaultJobsConfig()
	jobs.MetricsInterval = cfg.WorkerMetricsPollInterval
	jobs.LabsInterval = cfg.LabsRefreshInterval
	jobs.IdleInterval = cfg.ActivityDetectionInterval
	jobs.AutoImportEnabled = cfg.AutoImportWorkersEnabled
	jobs.AutoImportInterval = cfg.AutoImportWorkersInterval
	jobs.AutoImportRegion = cfg.AutoImportWorkersRegion
	jobs.AutoImportImageName = cfg.AutoImportWorkersImageName
	scheduler.RegisterStandardJobs(sched, jobs)

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	server := api.NewServer(store, mediator, broker, sched, api.Options{
		Addr: cfg.APIAddr,
		Auth: api.StaticTokens{Token: cfg.APIAuthToken, AdminToken: cfg.APIAdminToken},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api shutdown incomplete")
	}
	sched.Stop()
	return nil
}
