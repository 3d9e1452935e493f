// Package mqtt is the MQTT Transport component (§4.C): a single durable
// broker connection with exponential-backoff reconnect, re-subscription to
// the discovery wildcard plus every active device's status topic, and
// bounded inbound/outbound framing for the Payload Normalizer and Actuator.
//
// Grounded on warthog618-dunnart's paho wiring (OnConnectHandler signalling
// a channel, manual reconnect loop) adapted to the spec's own backoff
// formula (base 500ms, cap 30s, jitter ±25%) since paho's built-in
// reconnect does not expose jitter control.
package mqtt

import (
	"context"
	"errors"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	backoffBase   = 500 * time.Millisecond
	backoffCap    = 30 * time.Second
	backoffJitter = 0.25

	// publishRetries/publishTimeout implement §4.C "publish failure
	// retries up to 3 times with backoff" and §5's 5s per-call budget.
	publishRetries = 3
	publishTimeout = 5 * time.Second

	// inboundBufferSize bounds the channel handed to Telemetry Ingest;
	// §7 BrokerDisconnected allows buffering up to 1,000 outbound items,
	// mirrored here for the inbound side so a burst of reconnect traffic
	// cannot block the broker callback goroutine indefinitely.
	inboundBufferSize = 1000
)

// Frame is one inbound MQTT message, handed to the normalizer in arrival
// order per topic (§5 ordering guarantee).
type Frame struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Config carries the subset of spec §6 options this component reads.
type Config struct {
	BrokerURL   string
	Username    string
	Password    string
	ClientID    string
	RootTopic   string // default "Invernadero"
}

// StatusTopicsFunc resolves the union of device status topics to
// (re)subscribe to on every (re)connect (§4.C).
type StatusTopicsFunc func(ctx context.Context) []string

type Transport struct {
	cfg    Config
	log    zerolog.Logger
	client paho.Client
	topics StatusTopicsFunc

	inbound chan Frame

	connectAttempt int
}

// New builds the paho client options but does not connect; call Start.
func New(cfg Config, topics StatusTopicsFunc, log zerolog.Logger) *Transport {
	if cfg.RootTopic == "" {
		cfg.RootTopic = "Invernadero"
	}

	t := &Transport{
		cfg:     cfg,
		log:     log.With().Str("component", "mqtt").Logger(),
		topics:  topics,
		inbound: make(chan Frame, inboundBufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(false). // reconnects are driven by our own backoff loop, not paho's
		SetCleanSession(true).
		SetConnectionLostHandler(t.onConnectionLost).
		SetOnConnectHandler(t.onConnect)

	if cfg.Username != "" {
		opts = opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	t.client = paho.NewClient(opts)
	return t
}

// Inbound is the bounded channel Telemetry Ingest's worker pool consumes.
func (t *Transport) Inbound() <-chan Frame {
	return t.inbound
}

// DiscoveryTopic is the wildcard subscribed on every (re)connect (§4.C,
// §6): `<root>/+/+`.
func (t *Transport) DiscoveryTopic() string {
	return t.cfg.RootTopic + "/+/+"
}

// Start blocks until the first successful connect (or ctx is cancelled),
// then returns; reconnects after that happen in the background via
// onConnectionLost.
func (t *Transport) Start(ctx context.Context) error {
	return t.connectWithBackoff(ctx)
}

func (t *Transport) Stop() {
	t.client.Disconnect(250)
}

// Connected reports the current broker connection state, for the §6 health
// signal's mqtt service entry.
func (t *Transport) Connected() bool {
	return t.client.IsConnected()
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	go func() {
		if rerr := t.connectWithBackoff(context.Background()); rerr != nil {
			t.log.Error().Err(rerr).Msg("reconnect loop aborted")
		}
	}()
}

func (t *Transport) onConnect(c paho.Client) {
	t.connectAttempt = 0
	t.log.Info().Msg("mqtt connected")

	subs := map[string]byte{t.DiscoveryTopic(): 0}
	if t.topics != nil {
		for _, topic := range t.topics(context.Background()) {
			subs[topic] = 1 // device status replies are "at least once" (§4.C)
		}
	}

	for topic, qos := range subs {
		topic, qos := topic, qos
		tok := c.Subscribe(topic, qos, t.handleMessage)
		if tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
			t.log.Error().Err(tok.Error()).Str("topic", topic).Msg("subscribe failed")
		}
	}
}

func (t *Transport) handleMessage(_ paho.Client, msg paho.Message) {
	frame := Frame{
		Topic:      msg.Topic(),
		Payload:    msg.Payload(),
		ReceivedAt: time.Now().UTC(),
	}
	select {
	case t.inbound <- frame:
	default:
		t.log.Warn().Str("topic", frame.Topic).Msg("inbound channel full, dropping frame")
	}
}

// connectWithBackoff implements the spec's exact formula: base 500ms,
// doubling, capped at 30s, ±25% jitter applied to each attempt's delay.
func (t *Transport) connectWithBackoff(ctx context.Context) error {
	for {
		tok := t.client.Connect()
		done := make(chan struct{})
		go func() { tok.Wait(); close(done) }()

		select {
		case <-done:
			if tok.Error() == nil {
				return nil
			}
			t.log.Warn().Err(tok.Error()).Int("attempt", t.connectAttempt).Msg("connect failed")
		case <-ctx.Done():
			return ctx.Err()
		}

		delay := backoffDelay(t.connectAttempt)
		t.connectAttempt++

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	return time.Duration(float64(d) * jitter)
}

// Publish sends to topic with up to publishRetries attempts, each bounded
// by publishTimeout (§4.C, §5). qos 1 is "at least once" for device
// commands; qos 0 is "at most once" for telemetry-shaped publishes this
// component is also used for (status mirroring, §2 data flow).
func (t *Transport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	_, _, err := lo.AttemptWithDelay(publishRetries, 200*time.Millisecond, func(_ int, _ time.Duration) error {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		tok := t.client.Publish(topic, qos, false, payload)
		done := make(chan struct{})
		go func() { tok.Wait(); close(done) }()

		select {
		case <-done:
			return tok.Error()
		case <-pctx.Done():
			return pctx.Err()
		}
	})
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

var ErrPublishFailed = errors.New("mqtt publish failed after retries")
