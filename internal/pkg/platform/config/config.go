// Package config loads the §6 configuration options the same way the
// teacher loads its own: environment variables with defaults via
// diwise/service-chassis's env package.
package config

import (
	"strconv"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/rs/zerolog"
)

// Config is the full set of options recognized by §6.
type Config struct {
	ServicePort string

	BrokerURL         string
	BrokerUsername    string
	BrokerPassword    string
	RootTopic         string
	AckTimeout        time.Duration
	OfflineAfter      time.Duration

	EvaluationPeriod time.Duration
	Timezone         string

	AutoDiscoveryEnabled bool
	AnalysisWindow       time.Duration
	MinSamples           int
	AutoCreateThreshold  int
	ApprovalThreshold    int

	IngestWorkers int

	WebhookURL             string
	WebhookSecret          string
	NotificationRetryCount int

	PoliciesPath string
	SeedPath     string
}

// Load reads every option via env.GetVariableOrDefault, the same helper the
// teacher uses throughout infrastructure/repositories and pkg/client.
func Load(logger zerolog.Logger) Config {
	return Config{
		ServicePort: env.GetVariableOrDefault(logger, "SERVICE_PORT", "8080"),

		BrokerURL:      env.GetVariableOrDefault(logger, "MQTT_BROKER_URL", "tcp://localhost:1883"),
		BrokerUsername: env.GetVariableOrDefault(logger, "MQTT_BROKER_USERNAME", ""),
		BrokerPassword: env.GetVariableOrDefault(logger, "MQTT_BROKER_PASSWORD", ""),
		RootTopic:      env.GetVariableOrDefault(logger, "MQTT_ROOT_TOPIC", "Invernadero"),
		AckTimeout:     durationOrDefault(logger, "ACK_TIMEOUT", 10*time.Second),
		OfflineAfter:   durationOrDefault(logger, "OFFLINE_AFTER", 300*time.Second),

		EvaluationPeriod: durationOrDefault(logger, "EVALUATION_PERIOD", 30*time.Second),
		Timezone:         env.GetVariableOrDefault(logger, "TIMEZONE", "UTC"),

		AutoDiscoveryEnabled: boolOrDefault(logger, "AUTO_DISCOVERY_ENABLED", true),
		AnalysisWindow:       durationOrDefault(logger, "ANALYSIS_WINDOW", 60*time.Second),
		MinSamples:           intOrDefault(logger, "MIN_SAMPLES", 3),
		AutoCreateThreshold:  intOrDefault(logger, "AUTO_CREATE_THRESHOLD", 90),
		ApprovalThreshold:    intOrDefault(logger, "APPROVAL_THRESHOLD", 70),

		IngestWorkers: intOrDefault(logger, "INGEST_WORKERS", 4),

		WebhookURL:             env.GetVariableOrDefault(logger, "WEBHOOK_URL", ""),
		WebhookSecret:          env.GetVariableOrDefault(logger, "WEBHOOK_SECRET", ""),
		NotificationRetryCount: intOrDefault(logger, "NOTIFICATION_RETRY_COUNT", 3),

		PoliciesPath: env.GetVariableOrDefault(logger, "AUTHZ_POLICIES_PATH", "/opt/greenhouse/config/authz.rego"),
		SeedPath:     env.GetVariableOrDefault(logger, "SEED_PATH", "/opt/greenhouse/config/seed.yaml"),
	}
}

func durationOrDefault(logger zerolog.Logger, key string, fallback time.Duration) time.Duration {
	raw := env.GetVariableOrDefault(logger, key, fallback.String())
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func intOrDefault(logger zerolog.Logger, key string, fallback int) int {
	raw := env.GetVariableOrDefault(logger, key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func boolOrDefault(logger zerolog.Logger, key string, fallback bool) bool {
	raw := env.GetVariableOrDefault(logger, key, strconv.FormatBool(fallback))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}
