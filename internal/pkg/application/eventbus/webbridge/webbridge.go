// Package webbridge republishes Event Bus messages onto a go-sse server so
// the API surface's subscriptions (§4.J) have an asynchronous transport to
// push through, without teaching the bus itself about HTTP. Adapted from the
// teacher's application/webevents.WebEvents, which wired go-sse directly
// into the application layer; here it only ever sees what the bus hands it.
package webbridge

import (
	"context"
	"encoding/json"

	gosse "github.com/alexandrevicenzi/go-sse"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
)

type Bridge struct {
	server *gosse.Server
	log    zerolog.Logger
	cancel context.CancelFunc
}

// New starts one goroutine per topic forwarding eventbus messages onto the
// shared SSE server, channel name equal to the topic name.
func New(bus *eventbus.Bus, log zerolog.Logger, topics ...eventbus.Topic) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		server: gosse.NewServer(&gosse.Options{}),
		log:    log.With().Str("component", "webbridge").Logger(),
		cancel: cancel,
	}

	for _, topic := range topics {
		sub := bus.Subscribe(topic)
		go b.forward(ctx, topic, sub)
	}

	return b
}

func (b *Bridge) forward(ctx context.Context, topic eventbus.Topic, sub *eventbus.Subscription) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				b.log.Error().Err(err).Str("topic", string(topic)).Msg("failed to marshal event for sse bridge")
				continue
			}
			b.server.SendMessage("", gosse.NewMessage("", string(data), string(topic)))
		}
	}
}

func (b *Bridge) Server() *gosse.Server {
	return b.server
}

func (b *Bridge) Shutdown() {
	b.cancel()
	b.server.Shutdown()
}
