package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/pkg/types"
)

// Store is the narrow slice of store.Store the Rules Engine needs.
type Store interface {
	GetRule(ctx context.Context, id string) (types.Rule, error)
	ListRules(ctx context.Context, onlyEnabled bool) ([]types.Rule, error)
	UpdateRule(ctx context.Context, r types.Rule) (types.Rule, error)
	AppendRuleExecution(ctx context.Context, e types.RuleExecution) (types.RuleExecution, error)
	CountRuleExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error)
}

// SensorReader and DeviceReader are the read-side slices of Store the
// condition-tree evaluator needs.
type SensorReader interface {
	LatestReading(ctx context.Context, sensorID string) (types.Reading, error)
}

type DeviceReader interface {
	GetDevice(ctx context.Context, id string) (types.Device, error)
}

// DeviceControl is the Actuator's side of a DEVICE_CONTROL action (§4.H).
type DeviceControl interface {
	Control(ctx context.Context, deviceRef string, verb types.ControlVerb, setValue *float64, durationSeconds int) error
}

// Notifier is the Notifier's side of a NOTIFICATION action (§4.I).
type Notifier interface {
	Send(ctx context.Context, action types.RuleAction, triggerData map[string]any) error
}

// WebhookSender is the direct WEBHOOK action kind, distinct from the
// Notifier's own WEBHOOK notification channel (§3: ActionWebhook).
type WebhookSender interface {
	Send(ctx context.Context, url, payloadTemplate string, triggerData map[string]any) error
}

// Engine is the Rules Engine scheduler (§4.G).
type Engine struct {
	cfg Config
	log zerolog.Logger

	store   Store
	sensors SensorReader
	devices DeviceReader
	bus     *eventbus.Bus

	deviceControl DeviceControl
	notifier      Notifier
	webhook       WebhookSender

	runningMu sync.Mutex
	running   map[string]*sync.Mutex

	selfMu      sync.Mutex
	selfTrigger map[string]time.Time

	lastEvalMu sync.RWMutex
	lastEval   time.Time
}

func New(cfg Config, store Store, sensors SensorReader, devices DeviceReader, bus *eventbus.Bus,
	deviceControl DeviceControl, notifier Notifier, webhook WebhookSender, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:           cfg.withDefaults(),
		log:           log.With().Str("component", "rules").Logger(),
		store:         store,
		sensors:       sensors,
		devices:       devices,
		bus:           bus,
		deviceControl: deviceControl,
		notifier:      notifier,
		webhook:       webhook,
		running:       make(map[string]*sync.Mutex),
		selfTrigger:   make(map[string]time.Time),
	}
}

// Run drives the scheduler until ctx is cancelled: a tick clock plus a
// demand channel fed by telemetry.updated and device.state.changed (§4.G).
func (e *Engine) Run(ctx context.Context) {
	telemetry := e.bus.Subscribe(eventbus.TopicTelemetryUpdated)
	deviceState := e.bus.Subscribe(eventbus.TopicDeviceStateChanged)
	defer telemetry.Close()
	defer deviceState.Close()

	ticker := time.NewTicker(e.cfg.EvaluationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, time.Now().UTC())
		case <-telemetry.C:
			e.tick(ctx, time.Now().UTC())
		case <-deviceState.C:
			e.tick(ctx, time.Now().UTC())
		}
	}
}

// tick selects the candidate rule set and evaluates each in priority order
// (§4.G).
func (e *Engine) tick(ctx context.Context, now time.Time) {
	defer func() {
		e.lastEvalMu.Lock()
		e.lastEval = now
		e.lastEvalMu.Unlock()
	}()

	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		e.log.Error().Err(err).Msg("rules tick: could not list rules")
		return
	}

	candidates := candidateRules(rules, now)
	for _, rule := range candidates {
		trigger := make(map[string]any)
		if e.evalNode(ctx, rule.Conditions, now, trigger) {
			e.trigger(ctx, rule, now, trigger, false)
		}
	}
}

// LastEvaluationAt reports when the scheduler last ran a tick, for the §6
// health signal's rules service entry.
func (e *Engine) LastEvaluationAt() time.Time {
	e.lastEvalMu.RLock()
	defer e.lastEvalMu.RUnlock()
	return e.lastEval
}

// candidateRules filters to enabled rules whose cooldown has elapsed and
// orders by (priority DESC, lastTriggeredAt ASC), ties broken by rule id
// ascending (§4.G edge case).
func candidateRules(rules []types.Rule, now time.Time) []types.Rule {
	out := make([]types.Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !r.LastTriggeredAt.IsZero() && now.Sub(r.LastTriggeredAt) < time.Duration(r.CooldownSeconds)*time.Second {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].LastTriggeredAt.Equal(out[j].LastTriggeredAt) {
			return out[i].LastTriggeredAt.Before(out[j].LastTriggeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ManualTrigger bypasses condition evaluation but not cooldown or the
// execution-rate guards (§4.G edge case: admin "Trigger Rule" action).
func (e *Engine) ManualTrigger(ctx context.Context, ruleID string) (types.RuleExecution, error) {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return types.RuleExecution{}, err
	}

	now := time.Now().UTC()
	if !rule.LastTriggeredAt.IsZero() && now.Sub(rule.LastTriggeredAt) < time.Duration(rule.CooldownSeconds)*time.Second {
		return types.RuleExecution{}, ErrCooldownActive
	}

	return e.trigger(ctx, rule, now, map[string]any{}, true)
}

func (e *Engine) trigger(ctx context.Context, rule types.Rule, now time.Time, triggerData map[string]any, manual bool) (types.RuleExecution, error) {
	if rule.MaxExecutionsPerHour != nil {
		count, err := e.store.CountRuleExecutionsSince(ctx, rule.ID, now.Add(-time.Hour))
		if err != nil {
			e.log.Error().Err(err).Str("ruleId", rule.ID).Msg("could not check execution rate")
			return types.RuleExecution{}, err
		}
		if count >= *rule.MaxExecutionsPerHour {
			e.log.Warn().Str("ruleId", rule.ID).Int("count", count).Msg("rule skipped: maxExecutionsPerHour exceeded")
			return types.RuleExecution{}, ErrRateExceeded
		}
	}

	lock := e.lockFor(rule.ID)
	if !lock.TryLock() {
		e.log.Debug().Str("ruleId", rule.ID).Msg("rule skipped: execution already in flight")
		return types.RuleExecution{}, ErrAlreadyRunning
	}
	defer lock.Unlock()

	start := time.Now()
	outcomes := make([]types.ActionOutcome, 0, len(rule.Actions))
	success := true
	for _, action := range rule.Actions {
		outcome := e.executeAction(ctx, &rule, action, triggerData, now)
		outcomes = append(outcomes, outcome)
		if !outcome.Success {
			success = false
		}
	}

	exec := types.RuleExecution{
		ID:               uuid.NewString(),
		RuleID:           rule.ID,
		TriggeredAt:      now,
		Success:          success,
		ElapsedMs:        time.Since(start).Milliseconds(),
		TriggerData:      triggerData,
		EvaluationResult: true,
		ActionsExecuted:  outcomes,
		Manual:           manual,
	}
	exec, err := e.store.AppendRuleExecution(ctx, exec)
	if err != nil {
		e.log.Error().Err(err).Str("ruleId", rule.ID).Msg("could not append rule execution")
	}

	rule.LastTriggeredAt = now
	rule.TriggerCount++
	if _, err := e.store.UpdateRule(ctx, rule); err != nil {
		e.log.Error().Err(err).Str("ruleId", rule.ID).Msg("could not update rule trigger bookkeeping")
	}

	e.bus.Publish(ctx, eventbus.TopicRuleTriggered, &types.RuleTriggered{
		RuleID:      rule.ID,
		TriggeredAt: now,
		Success:     success,
		Manual:      manual,
	})

	return exec, nil
}

func (e *Engine) executeAction(ctx context.Context, rule *types.Rule, action types.RuleAction, triggerData map[string]any, now time.Time) types.ActionOutcome {
	outcome := types.ActionOutcome{Kind: action.Kind}

	switch action.Kind {
	case types.ActionDeviceControl:
		outcome.Target = action.DeviceRef
		err := e.deviceControl.Control(ctx, action.DeviceRef, action.Verb, action.SetValue, action.DurationSeconds)
		if err == nil {
			e.markSelfTrigger(action.DeviceRef, now)
		}
		setOutcomeErr(&outcome, err)

	case types.ActionNotification:
		outcome.Target = action.TemplateRef
		if outcome.Target == "" {
			outcome.Target = action.Title
		}
		setOutcomeErr(&outcome, e.notifier.Send(ctx, action, triggerData))

	case types.ActionRuleDisable:
		outcome.Target = rule.ID
		rule.Enabled = false
		_, err := e.store.UpdateRule(ctx, *rule)
		setOutcomeErr(&outcome, err)

	case types.ActionWebhook:
		outcome.Target = action.URL
		setOutcomeErr(&outcome, e.webhook.Send(ctx, action.URL, action.PayloadTemplate, triggerData))

	default:
		outcome.Success = false
		outcome.Error = "unknown action kind"
	}

	return outcome
}

func setOutcomeErr(outcome *types.ActionOutcome, err error) {
	if err == nil {
		outcome.Success = true
		return
	}
	outcome.Success = false
	outcome.Error = err.Error()
}

func (e *Engine) lockFor(ruleID string) *sync.Mutex {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	l, ok := e.running[ruleID]
	if !ok {
		l = &sync.Mutex{}
		e.running[ruleID] = l
	}
	return l
}

func (e *Engine) markSelfTrigger(deviceID string, at time.Time) {
	e.selfMu.Lock()
	defer e.selfMu.Unlock()
	e.selfTrigger[deviceID] = at
}

func (e *Engine) selfTriggerAt(deviceID string) (time.Time, bool) {
	e.selfMu.Lock()
	defer e.selfMu.Unlock()
	t, ok := e.selfTrigger[deviceID]
	return t, ok
}
