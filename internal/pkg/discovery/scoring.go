package discovery

import (
	"strings"

	"github.com/greenhouse/core/pkg/types"
)

// sensorSuffixes / deviceSuffixes / controlFieldVocabulary / sensorFieldVocabulary
// are the topic- and field-shape vocabularies scoring is built from (§4.E).
var sensorSuffixes = []string{"/data", "/reading", "/sensor"}
var deviceSuffixes = []string{"/sw", "/control", "/command", "/set"}

var sensorFieldVocabulary = map[string]bool{
	"temperatura": true, "humedad": true, "ph": true, "ec": true, "ppm": true,
	"presion": true, "light": true, "co2": true, "watts": true, "voltage": true, "current": true,
}

var diagnosticFieldNames = map[string]bool{
	"rssi": true, "boot": true, "mem": true, "timestamp": true,
}

func hasSuffix(topic string, suffixes []string) bool {
	lower := strings.ToLower(topic)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) || strings.Contains(lower, s+"/") {
			return true
		}
	}
	return false
}

func isControlFieldName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "sw") {
		return true
	}
	switch lower {
	case "estado", "state", "command", "action":
		return true
	}
	return false
}

// sampleShape summarizes one payload's field shape for scoring purposes.
type sampleShape struct {
	numericFields  int
	booleanFields  int
	controlFields  int
	diagnostics    int
	vocabOverlap   int
	anyControl     bool
	fieldNames     []string
}

func shapeOf(payload map[string]any) sampleShape {
	var s sampleShape
	for k, v := range payload {
		lower := strings.ToLower(k)
		s.fieldNames = append(s.fieldNames, lower)

		if diagnosticFieldNames[lower] {
			s.diagnostics++
		}
		if sensorFieldVocabulary[lower] {
			s.vocabOverlap++
		}
		if isControlFieldName(k) {
			s.controlFields++
			s.anyControl = true
		}

		switch v.(type) {
		case bool:
			s.booleanFields++
		case float64, int:
			s.numericFields++
		case string:
			if _, ok := toBoolLoose(v); ok {
				s.booleanFields++
			}
		}
	}
	return s
}

func toBoolLoose(v any) (bool, bool) {
	str, ok := v.(string)
	if !ok {
		return false, false
	}
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "TRUE", "ON", "ACTIVE":
		return true, true
	case "FALSE", "OFF", "INACTIVE":
		return false, true
	}
	return false, false
}

// scoreSensor / scoreDevice implement the point tables in spec §4.E exactly.
func scoreSensor(topic string, shape sampleShape) int {
	score := 0
	if hasSuffix(topic, sensorSuffixes) {
		score += 20
	}
	if shape.numericFields >= 2 {
		score += 25
	}
	if shape.vocabOverlap > 0 {
		score += 25
	}
	score += 5 * shape.diagnostics
	if !shape.anyControl {
		score += 15
	}
	return score
}

func scoreDevice(topic string, shape sampleShape) int {
	score := 0
	if hasSuffix(topic, deviceSuffixes) {
		score += 25
	}
	if shape.booleanFields > 0 {
		score += 30
	}
	if shape.controlFields > 0 {
		score += 20
	}
	if shape.numericFields > 0 && shape.booleanFields == 0 && shape.controlFields == 0 {
		score -= 10
	}
	return score
}

// inferSensorKind implements the §4.E fingerprint table.
func inferSensorKind(fieldNames map[string]bool) types.SensorKind {
	switch {
	case fieldNames["ph"] && fieldNames["ec"] && fieldNames["ppm"]:
		return types.SensorWaterQuality
	case fieldNames["ph"]:
		return types.SensorWaterQuality
	case fieldNames["temperatura"] && fieldNames["humedad"]:
		return types.SensorTEMHUM
	case fieldNames["temperatura"] && fieldNames["presion"]:
		return types.SensorTempPressure
	case fieldNames["light"]:
		return types.SensorLight
	case fieldNames["co2"]:
		return types.SensorCO2
	case fieldNames["watts"] || fieldNames["voltage"] || fieldNames["current"]:
		return types.SensorPower
	default:
		return types.SensorCustom
	}
}

// detectedSensorKind is the lowercase internal classifier label (§9, glossary
// "detected kind"), kept distinct from the canonical kind for audit.
func detectedSensorKind(kind types.SensorKind) string {
	return strings.ToLower(string(kind))
}

// inferDeviceKind implements the §4.E topic/field-name substring rules.
func inferDeviceKind(topic string, controlFieldName string) types.DeviceKind {
	lower := strings.ToLower(topic + " " + controlFieldName)
	switch {
	case strings.Contains(lower, "calefactoragua"):
		return types.DeviceWaterHeater
	case strings.Contains(lower, "calefactor"):
		return types.DeviceHeater
	case strings.Contains(lower, "bomba"):
		return types.DeviceWaterPump
	case strings.Contains(lower, "ventilador"):
		return types.DeviceVentilator
	case strings.Contains(lower, "led"), strings.Contains(lower, "luz"):
		return types.DeviceLights
	default:
		return types.DeviceRelay
	}
}

func detectedDeviceKind(kind types.DeviceKind) string {
	return strings.ToLower(string(kind))
}
