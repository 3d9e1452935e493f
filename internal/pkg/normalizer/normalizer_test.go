package normalizer

import (
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/greenhouse/core/pkg/types"
)

func TestNormalizeSensorTemhumAliasesAndDiagnostics(t *testing.T) {
	is := is.New(t)

	raw := map[string]any{"temperatura": 26.2, "humedad": 43.0, "rssi": -78.0}
	n, err := NormalizeSensor(types.SensorTEMHUM, raw)
	is.NoErr(err)
	is.Equal(n.Kind, ResultSensor)
	is.Equal(n.Fields["temperatura"], 26.2)
	is.Equal(n.Fields["humedad"], 43.0)
	is.Equal(n.Fields["rssi"], -78.0)
	is.Equal(n.Quality, types.QualityGood)
}

func TestNormalizeSensorRejectsMissingMandatoryFields(t *testing.T) {
	is := is.New(t)

	_, err := NormalizeSensor(types.SensorTEMHUM, map[string]any{"humedad": 50.0})
	is.True(errors.Is(err, ErrInvalidPayload))
}

func TestNormalizeSensorFlagsOutOfRangeAsWarning(t *testing.T) {
	is := is.New(t)

	n, err := NormalizeSensor(types.SensorTEMHUM, map[string]any{"temperatura": 20.0, "humedad": 150.0})
	is.NoErr(err)
	is.Equal(n.Quality, types.QualityWarning)
}

func TestNormalizeSensorPowerAcceptsAnyOfWattsVoltageCurrent(t *testing.T) {
	is := is.New(t)

	n, err := NormalizeSensor(types.SensorPower, map[string]any{"voltage": 220.0})
	is.NoErr(err)
	is.Equal(n.Fields["voltage"], 220.0)
}

func TestNormalizeSensorPowerRejectsFrequencyOnly(t *testing.T) {
	is := is.New(t)

	_, err := NormalizeSensor(types.SensorPower, map[string]any{"frequency": 50.0})
	is.True(errors.Is(err, ErrInvalidPayload))
}

func TestNormalizeCommandLegacyBombaSw(t *testing.T) {
	is := is.New(t)

	n, err := NormalizeCommand(map[string]any{"bombaSw": true})
	is.NoErr(err)
	is.Equal(n.Kind, ResultCommand)
	is.True(n.DesiredOn)
	is.Equal(n.LegacyField, "bombaSw")
}

func TestNormalizeCommandCanonicalEstado(t *testing.T) {
	is := is.New(t)

	n, err := NormalizeCommand(map[string]any{"estado": "ON", "requestId": "abc"})
	is.NoErr(err)
	is.True(n.DesiredOn)
	is.Equal(n.LegacyField, "")
}

func TestNormalizeCommandRejectsMissingField(t *testing.T) {
	is := is.New(t)

	_, err := NormalizeCommand(map[string]any{"foo": "bar"})
	is.True(errors.Is(err, ErrInvalidPayload))
}

func TestNormalizeSensorPreservesUnknownFieldsUnderRaw(t *testing.T) {
	is := is.New(t)

	n, err := NormalizeSensor(types.SensorTEMHUM, map[string]any{
		"temperatura": 20.0, "humedad": 40.0, "unknownField": "xyz",
	})
	is.NoErr(err)
	rawMap, ok := n.Fields["raw"].(map[string]any)
	is.True(ok)
	is.Equal(rawMap["unknownField"], "xyz")
}
