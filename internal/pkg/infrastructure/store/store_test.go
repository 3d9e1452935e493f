package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/pkg/types"
)

// testSetup opens a fresh, uniquely-named in-memory sqlite database per
// test, the same shape as the teacher's database_test.go testSetup. Each
// test gets its own named shared-cache db so no state leaks between tests
// even though sqlite's shared-cache mode would otherwise let same-named
// in-memory databases alias each other within one process.
func testSetup(t *testing.T) (*is.I, Store) {
	t.Helper()
	is := is.New(t)

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := Open(NewSQLiteConnector(dsn, zerolog.Nop()))
	is.NoErr(err)

	return is, New(db)
}

func TestCreateUserEnforcesCaseInsensitiveUniqueness(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, types.User{ID: "u1", Username: "Grower", Role: types.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	_, err = s.CreateUser(ctx, types.User{ID: "u2", Username: "grower", Role: types.RoleViewer, Active: true, CreatedAt: time.Now().UTC()})
	is.True(errors.Is(err, ErrConflictUnique))
}

func TestDeactivateUserNeverDeletes(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, types.User{ID: "u1", Username: "grower", Role: types.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	is.NoErr(s.DeactivateUser(ctx, "u1"))

	u, err := s.GetUser(ctx, "u1")
	is.NoErr(err)
	is.True(!u.Active)
}

func TestCreateSensorEnforcesHardwareIDUniqueness(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	_, err := s.CreateSensor(ctx, types.Sensor{ID: "s1", HardwareID: "temhum1", Name: "TemHum1", Kind: types.SensorTEMHUM, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	_, err = s.CreateSensor(ctx, types.Sensor{ID: "s2", HardwareID: "temhum1", Name: "dup", Kind: types.SensorTEMHUM, Active: true, CreatedAt: time.Now().UTC()})
	is.True(errors.Is(err, ErrConflictUnique))
}

func TestAppendReadingRoutesByKindAndLatestReadingScansAllTables(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	sensor, err := s.CreateSensor(ctx, types.Sensor{ID: "s1", HardwareID: "temhum1", Name: "TemHum1", Kind: types.SensorTEMHUM, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	t1 := time.Now().UTC().Add(-time.Minute)
	_, err = s.AppendReading(ctx, types.SensorTEMHUM, types.Reading{
		ID: "r1", SensorID: sensor.ID, ReceivedAt: t1,
		Normalized: map[string]any{"temperatura": 26.2, "humedad": 43.0},
	})
	is.NoErr(err)

	t2 := time.Now().UTC()
	_, err = s.AppendReading(ctx, types.SensorTEMHUM, types.Reading{
		ID: "r2", SensorID: sensor.ID, ReceivedAt: t2,
		Normalized: map[string]any{"temperatura": 27.1, "humedad": 44.0},
	})
	is.NoErr(err)

	latest, err := s.LatestReading(ctx, sensor.ID)
	is.NoErr(err)
	is.Equal(latest.ID, "r2")
}

func TestAppendReadingFallsBackToGenericTableForUnmappedKind(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	sensor, err := s.CreateSensor(ctx, types.Sensor{ID: "s1", HardwareID: "co2-1", Name: "CO2-1", Kind: types.SensorCO2, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	_, err = s.AppendReading(ctx, types.SensorCO2, types.Reading{
		ID: "r1", SensorID: sensor.ID, ReceivedAt: time.Now().UTC(),
		Normalized: map[string]any{"co2": 410.0},
	})
	is.NoErr(err)

	latest, err := s.LatestReading(ctx, sensor.ID)
	is.NoErr(err)
	is.Equal(latest.ID, "r1")
}

func TestSoftDeleteSensorSetsInactiveNotNotFound(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	_, err := s.CreateSensor(ctx, types.Sensor{ID: "s1", HardwareID: "temhum1", Name: "TemHum1", Kind: types.SensorTEMHUM, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	is.NoErr(s.SoftDeleteSensor(ctx, "s1"))

	active, err := s.ListSensors(ctx, true)
	is.NoErr(err)
	is.Equal(len(active), 0)

	all, err := s.ListSensors(ctx, false)
	is.NoErr(err)
	is.Equal(len(all), 1)
}

func TestSoftDeleteSensorNotFound(t *testing.T) {
	is, s := testSetup(t)
	err := s.SoftDeleteSensor(context.Background(), "does-not-exist")
	is.True(errors.Is(err, ErrNotFound))
}

func TestReadingHistoryIsCursorPaginated(t *testing.T) {
	is, s := testSetup(t)
	ctx := context.Background()

	sensor, err := s.CreateSensor(ctx, types.Sensor{ID: "s1", HardwareID: "temhum1", Name: "TemHum1", Kind: types.SensorTEMHUM, Active: true, CreatedAt: time.Now().UTC()})
	is.NoErr(err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.AppendReading(ctx, types.SensorTEMHUM, types.Reading{
			ID: string(rune('a' + i)), SensorID: sensor.ID, ReceivedAt: base.Add(time.Duration(i) * time.Minute),
			Normalized: map[string]any{"temperatura": float64(i)},
		})
		is.NoErr(err)
	}

	page, err := s.ReadingHistory(ctx, sensor.ID, nil, nil, 2, "")
	is.NoErr(err)
	is.Equal(len(page.Data), 2)
	is.Equal(page.TotalCount, 5)
	is.True(page.Cursor != "")

	next, err := s.ReadingHistory(ctx, sensor.ID, nil, nil, 2, page.Cursor)
	is.NoErr(err)
	is.Equal(len(next.Data), 2)
}

func TestPingReportsHealthyConnection(t *testing.T) {
	is, s := testSetup(t)
	is.NoErr(s.Ping(context.Background()))
}
