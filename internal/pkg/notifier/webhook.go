package notifier

import (
	"context"
	"errors"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"golang.org/x/sys/unix"
)

// Deliverer posts a rendered notification payload to a webhook endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, url, secret string, payload map[string]any) error
}

// cloudEventsDeliverer sends the outbound webhook payload (§6) as a
// CloudEvent over HTTP, the same client shape the teacher uses to notify
// its webhook subscribers.
type cloudEventsDeliverer struct {
	client cloudevents.Client
}

func newCloudEventsDeliverer() (*cloudEventsDeliverer, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}
	return &cloudEventsDeliverer{client: c}, nil
}

func (d *cloudEventsDeliverer) Deliver(ctx context.Context, url, secret string, payload map[string]any) error {
	event := cloudevents.NewEvent()
	event.SetID(payload["id"].(string))
	event.SetSource("greenhouse-core/notifier")
	event.SetType("com.greenhouse.notification")
	if secret != "" {
		event.SetExtension("secret", secret)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return err
	}

	ctxWithTarget := cloudevents.ContextWithTarget(ctx, url)
	result := d.client.Send(ctxWithTarget, event)
	if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
		return result
	}
	return nil
}
