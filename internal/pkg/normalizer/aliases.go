package normalizer

import "github.com/greenhouse/core/pkg/types"

// fieldAliases is the declarative, case-insensitive alias table described in
// spec §4.D. It is encoded as data rather than reflection or per-kind
// branching code, per the §9 design note ("Unknown kinds go through
// Auto-Discovery, never through reflection").
var fieldAliases = map[types.SensorKind]map[string]string{
	types.SensorTEMHUM: {
		"temp": "temperatura", "temperature": "temperatura", "temperatura": "temperatura",
		"hum": "humedad", "humidity": "humedad", "humedad": "humedad",
	},
	types.SensorWaterQuality: {
		"ph": "ph", "ec": "ec", "ppm": "ppm",
		"temp": "temperatura", "temperature": "temperatura", "temperatura": "temperatura",
	},
	types.SensorTempPressure: {
		"temp": "temperatura", "temperature": "temperatura", "temperatura": "temperatura",
		"pressure": "presion", "presion": "presion",
	},
	types.SensorLight: {
		"light": "light", "lux": "light", "luz": "light",
	},
	types.SensorSoilMoisture: {
		"moisture": "humedad", "soilmoisture": "humedad", "humedad": "humedad",
	},
	types.SensorCO2: {
		"co2": "co2", "ppm": "co2",
	},
	types.SensorPower: {
		"watts": "watts", "voltage": "voltage", "current": "current", "frequency": "frequency",
	},
	types.SensorMotion: {
		"motion": "motion", "pir": "motion",
	},
}

// deviceStateAliases maps the legacy device-specific boolean fields from
// §6/§4.D to the canonical "state" field: `bombaSw|ventiladorSw|
// calefactorSw|calefactorAguaSw → state`, plus the generic `estado`.
var deviceStateAliases = map[string]string{
	"bombasw": "state", "ventiladorsw": "state", "calefactorsw": "state",
	"calefactoraguasw": "state", "estado": "state", "state": "state",
}

// diagnosticFields are preserved verbatim but never required (§4.D).
var diagnosticFields = map[string]bool{
	"rssi": true, "boot": true, "mem": true, "timestamp": true, "stats": true,
}

// mandatoryFields lists the canonical fields required per sensor kind before
// a frame is accepted (§4.D). POWER admits any one of several fields; that
// is handled specially in normalizer.go's hasAny check rather than here,
// since it is an any-of rather than an all-of requirement. frequency is
// deliberately excluded from that any-of set: see DESIGN.md's Payload
// Normalizer "Open Question resolution" for why a frequency-only payload
// is not accepted on its own.
var mandatoryFields = map[types.SensorKind][]string{
	types.SensorTEMHUM:       {"temperatura", "humedad"},
	types.SensorWaterQuality: {"ph"},
	types.SensorTempPressure: {"temperatura", "presion"},
	types.SensorLight:        {"light"},
}

// validRanges bounds numeric canonical fields to the range spec §4.D names
// explicitly (humidity 0-100) plus the other physically-bounded fields a
// complete implementation needs; out-of-range values are kept but flagged
// quality=warning rather than rejected.
var validRanges = map[string][2]float64{
	"humedad": {0, 100},
	"ph":      {0, 14},
	"light":   {0, 100000},
}
