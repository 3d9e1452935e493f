package actuator

import "errors"

// ErrUnknownDevice is returned when the target Device does not resolve
// (§4.H.1).
var ErrUnknownDevice = errors.New("actuator: unknown device")
