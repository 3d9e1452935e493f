package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServiceHealth is one entry of the §6 health signal's services map.
type ServiceHealth struct {
	Reachable        bool       `json:"reachable"`
	LastEvaluationAt *time.Time `json:"lastEvaluationAt,omitempty"`
}

// HealthReport is the full §6 health signal payload:
// { status, services: { store, bus, mqtt, rules } }.
type HealthReport struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

// HealthStore/HealthBroker/HealthRules are the narrow probes the health
// aggregator needs from each component, so it depends on interfaces rather
// than the concrete packages. The bus needs no probe (see HealthChecker).
type HealthStore interface {
	Ping(ctx context.Context) error
}

type HealthBroker interface {
	Connected() bool
}

type HealthRules interface {
	LastEvaluationAt() time.Time
}

// HealthChecker aggregates the reachability of every dependency named in
// §6's health signal. The Event Bus has no external connection to lose
// (it is in-process), so its service entry always reports reachable.
type HealthChecker struct {
	store  HealthStore
	broker HealthBroker
	rules  HealthRules
}

func NewHealthChecker(store HealthStore, broker HealthBroker, rules HealthRules) *HealthChecker {
	return &HealthChecker{store: store, broker: broker, rules: rules}
}

func (h *HealthChecker) Report(ctx context.Context) HealthReport {
	services := map[string]ServiceHealth{
		"bus": {Reachable: true},
	}

	storeReachable := h.store.Ping(ctx) == nil
	services["store"] = ServiceHealth{Reachable: storeReachable}

	services["mqtt"] = ServiceHealth{Reachable: h.broker.Connected()}

	last := h.rules.LastEvaluationAt()
	rulesHealth := ServiceHealth{Reachable: true}
	if !last.IsZero() {
		rulesHealth.LastEvaluationAt = &last
	}
	services["rules"] = rulesHealth

	status := "ok"
	for _, svc := range services {
		if !svc.Reachable {
			status = "degraded"
		}
	}

	return HealthReport{Status: status, Services: services}
}

// Handler adapts Report into the chi-routed /health endpoint (§1: the one
// HTTP surface this repo owns), the same shape as the teacher's
// presentation/api.NewHealthHandler.
func (h *HealthChecker) Handler(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Report(r.Context())

		body, err := json.Marshal(report)
		if err != nil {
			log.Error().Err(err).Msg("unable to marshal health report")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write(body)
	}
}
