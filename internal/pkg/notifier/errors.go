package notifier

import "errors"

// ErrDeliveryFailed is returned when all retry attempts for a channel are
// exhausted (§4.I.4).
var ErrDeliveryFailed = errors.New("notifier: delivery failed")
