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

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/actuator"
	"github.com/greenhouse/core/internal/pkg/api"
	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/internal/pkg/application/eventbus/webbridge"
	"github.com/greenhouse/core/internal/pkg/discovery"
	"github.com/greenhouse/core/internal/pkg/infrastructure/store"
	"github.com/greenhouse/core/internal/pkg/ingest"
	"github.com/greenhouse/core/internal/pkg/notifier"
	"github.com/greenhouse/core/internal/pkg/pipeline"
	"github.com/greenhouse/core/internal/pkg/platform/config"
	"github.com/greenhouse/core/internal/pkg/platform/logging"
	"github.com/greenhouse/core/internal/pkg/platform/router"
	"github.com/greenhouse/core/internal/pkg/platform/tracing"
	"github.com/greenhouse/core/internal/pkg/rules"
	"github.com/greenhouse/core/internal/pkg/transport/mqtt"
)

const serviceName string = "greenhouse-core"

// shutdownGrace is the bounded drain window named in §5.
const shutdownGrace = 5 * time.Second

func main() {
	serviceVersion := buildinfo.SourceVersion()
	ctx, logger := logging.New(context.Background(), serviceName, serviceVersion)

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Error().Err(err).Msg("could not initialize tracing, continuing without it")
	}
	defer cleanup()

	cfg := config.Load(logger)

	db, err := store.Open(store.LoadConnectorFromEnv(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open store")
	}
	dataStore := store.New(db)

	bus := eventbus.New(logger)
	bridge := webbridge.New(bus, logger,
		eventbus.TopicTelemetryUpdated,
		eventbus.TopicDeviceStateChanged,
		eventbus.TopicRuleTriggered,
		eventbus.TopicNotificationCreated,
		eventbus.TopicNotificationUpdated,
	)
	defer bridge.Shutdown()

	transport := mqtt.New(mqtt.Config{
		BrokerURL: cfg.BrokerURL,
		Username:  cfg.BrokerUsername,
		Password:  cfg.BrokerPassword,
		ClientID:  serviceName,
		RootTopic: cfg.RootTopic,
	}, func(ctx context.Context) []string {
		devices, err := dataStore.ListDevicesWithStatusTopic(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("could not list device status topics")
			return nil
		}
		topics := make([]string, 0, len(devices))
		for _, d := range devices {
			topics = append(topics, d.MQTTStatusTopic)
		}
		return topics
	}, logger)

	ingestEngine := ingest.New(ingest.Config{OfflineAfter: cfg.OfflineAfter}, dataStore, bus, logger)

	discoveryEngine := discovery.New(discovery.Config{
		RootTopic:           cfg.RootTopic,
		MinSamples:          cfg.MinSamples,
		AnalysisWindow:      cfg.AnalysisWindow,
		AutoCreateThreshold: cfg.AutoCreateThreshold,
		ApprovalThreshold:   cfg.ApprovalThreshold,
	}, dataStore, dataStore, logger)

	notify, err := notifier.New(notifier.Config{
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
		RetryCount:    cfg.NotificationRetryCount,
	}, dataStore, bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not initialize notifier")
	}

	deviceActuator := actuator.New(actuator.Config{AckTimeout: cfg.AckTimeout}, dataStore, transport, bus, notify, logger)

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("invalid timezone, using UTC")
		tz = time.UTC
	}
	rulesEngine := rules.New(rules.Config{
		EvaluationPeriod: cfg.EvaluationPeriod,
		Timezone:         tz,
	}, dataStore, dataStore, dataStore, bus, deviceActuator, notify, notify, logger)

	seedRulesAndTemplates(ctx, cfg.SeedPath, dataStore, logger)

	policiesFile, err := os.Open(cfg.PoliciesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PoliciesPath).Msg("could not open authorization policies")
	}
	roles, err := api.NewRoleChecker(ctx, policiesFile)
	policiesFile.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not compile authorization policies")
	}

	_ = api.NewQueries(dataStore, roles)
	_ = api.NewMutations(dataStore, roles, deviceActuator, rulesEngine)
	_ = api.NewSubscriptions(bus, roles)
	health := api.NewHealthChecker(dataStore, transport, rulesEngine)

	mux := router.New(serviceName)
	mux.Get("/health", health.Handler(logger))
	mux.Mount("/events", bridge.Server())

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := transport.Start(runCtx); err != nil {
		logger.Error().Err(err).Msg("mqtt initial connect failed, continuing with retries in background")
	}

	pool := pipeline.New(pipeline.Config{Workers: cfg.IngestWorkers}, dataStore, dataStore, ingestEngine, deviceActuator, deviceActuator, discoveryEngine, logger)
	go pool.Run(runCtx, transport.Inbound())
	go ingestEngine.Run(runCtx)
	go rulesEngine.Run(runCtx)

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.ServicePort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().Str("port", cfg.ServicePort).Msg("greenhouse-core started")

	<-runCtx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server did not shut down cleanly")
	}
	transport.Stop()
}

// seedRulesAndTemplates loads the initial Rules and NotificationTemplates
// named in §6, tolerating a missing seed file since it is optional.
func seedRulesAndTemplates(ctx context.Context, path string, dataStore store.Store, logger zerolog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Info().Str("path", path).Msg("no seed file found, starting with an empty rule set")
		return
	}
	defer f.Close()

	seed, err := config.LoadSeed(f)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("could not parse seed file")
		return
	}

	for _, tmpl := range seed.ToTemplates() {
		if _, err := dataStore.CreateTemplate(ctx, tmpl); err != nil {
			logger.Error().Err(err).Str("templateId", tmpl.ID).Msg("could not seed notification template")
		}
	}
	for _, rule := range seed.ToRules() {
		if _, err := dataStore.CreateRule(ctx, rule); err != nil {
			logger.Error().Err(err).Str("ruleId", rule.ID).Msg("could not seed rule")
		}
	}
}
