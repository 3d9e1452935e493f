// Package normalizer is the Payload Normalizer (§4.D): it maps heterogeneous
// device payloads to a canonical schema per sensor/device kind, or to a
// desired-state command for device `*/sw` topics. Grounded on the §9 design
// note's discriminated union (`Normalized = Sensor(...) | Command(...)`),
// kept here as a Go sum type expressed with a Kind tag plus two payload
// structs, the same shape `pkg/types.ConditionNode`/`RuleAction` use for
// their own tagged unions.
package normalizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/greenhouse/core/pkg/types"
)

var ErrInvalidPayload = errors.New("invalid payload")

type ResultKind string

const (
	ResultSensor  ResultKind = "SENSOR"
	ResultCommand ResultKind = "COMMAND"
)

// Normalized is the normalizer's discriminated-union output (§9).
type Normalized struct {
	Kind ResultKind

	// Sensor variant
	Fields  map[string]any
	Quality types.Quality

	// Command variant
	DesiredOn   bool
	LegacyField string // non-empty when the input used a legacy boolean field
}

// NormalizeSensor parses raw as a sensor telemetry payload for kind,
// returning the canonical field set. Missing mandatory fields for kind
// reject the frame with ErrInvalidPayload (§4.D).
func NormalizeSensor(kind types.SensorKind, raw map[string]any) (Normalized, error) {
	aliases := fieldAliases[kind]
	fields := make(map[string]any)
	extra := make(map[string]any)
	quality := types.QualityGood

	for key, val := range raw {
		lower := strings.ToLower(key)
		canonical, known := aliases[lower]
		if !known {
			if diagnosticFields[lower] {
				fields[lower] = val
				continue
			}
			extra[key] = val
			continue
		}

		num, ok := toFloat(val)
		if !ok {
			extra[key] = val
			continue
		}
		if rng, hasRange := validRanges[canonical]; hasRange {
			if num < rng[0] || num > rng[1] {
				quality = types.QualityWarning
			}
		}
		fields[canonical] = num
	}

	if len(extra) > 0 {
		fields["raw"] = extra
	}

	if kind == types.SensorPower {
		if !hasAny(fields, "watts", "voltage", "current") {
			return Normalized{}, fmt.Errorf("%w: power sensor requires watts, voltage, or current", ErrInvalidPayload)
		}
	} else {
		for _, m := range mandatoryFields[kind] {
			if _, ok := fields[m]; !ok {
				return Normalized{}, fmt.Errorf("%w: missing mandatory field %q for kind %s", ErrInvalidPayload, m, kind)
			}
		}
	}

	return Normalized{Kind: ResultSensor, Fields: fields, Quality: quality}, nil
}

// NormalizeCommand parses raw as a device command payload on a `*/sw` (or
// `/command`) topic, mapping legacy per-device boolean fields to the
// canonical desired-state transition request (§4.D, §6).
func NormalizeCommand(raw map[string]any) (Normalized, error) {
	if v, ok := lookupCaseInsensitive(raw, "estado"); ok {
		on, ok := toBool(v)
		if !ok {
			return Normalized{}, fmt.Errorf("%w: estado not boolean-shaped", ErrInvalidPayload)
		}
		return Normalized{Kind: ResultCommand, DesiredOn: on}, nil
	}

	for key, val := range raw {
		lower := strings.ToLower(key)
		if deviceStateAliases[lower] != "" && lower != "estado" {
			on, ok := toBool(val)
			if !ok {
				continue
			}
			return Normalized{Kind: ResultCommand, DesiredOn: on, LegacyField: key}, nil
		}
	}

	return Normalized{}, fmt.Errorf("%w: missing mandatory field \"estado\" for device command", ErrInvalidPayload)
}

func hasAny(fields map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

func lookupCaseInsensitive(m map[string]any, key string) (any, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// toBool implements the §4.D coercion table: true/false/1/0/"ON"/"OFF"/
// "ACTIVE"/"INACTIVE".
func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToUpper(strings.TrimSpace(t)) {
		case "TRUE", "ON", "ACTIVE", "1":
			return true, true
		case "FALSE", "OFF", "INACTIVE", "0":
			return false, true
		}
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
