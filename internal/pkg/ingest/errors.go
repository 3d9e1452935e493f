package ingest

import "errors"

// ErrUnknownSensor signals the caller should hand the frame to Auto-Discovery
// instead (§4.F: "UnknownSensor (hand off to Auto-Discovery)").
var ErrUnknownSensor = errors.New("ingest: unknown sensor")
