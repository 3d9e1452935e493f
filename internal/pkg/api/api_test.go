package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/greenhouse/core/pkg/types"
)

const testPolicy = `
package greenhouse.authz

default allow = false

allow {
	input.role == "admin"
}

allow {
	input.role == "editor"
	startswith(input.operation, "sensor.")
}

allow {
	input.role == "viewer"
	input.operation == "sensor.list"
}
`

func newTestRoleChecker(t *testing.T) *RoleChecker {
	t.Helper()
	rc, err := NewRoleChecker(context.Background(), strings.NewReader(testPolicy))
	if err != nil {
		t.Fatalf("could not compile test policy: %v", err)
	}
	return rc
}

type fakeAPIStore struct {
	sensors []types.Sensor
}

func (f *fakeAPIStore) CreateUser(_ context.Context, u types.User) (types.User, error) { return u, nil }
func (f *fakeAPIStore) GetUser(_ context.Context, id string) (types.User, error)        { return types.User{ID: id}, nil }
func (f *fakeAPIStore) UpdateUser(_ context.Context, u types.User) (types.User, error)  { return u, nil }
func (f *fakeAPIStore) DeactivateUser(_ context.Context, id string) error               { return nil }
func (f *fakeAPIStore) ListUsers(_ context.Context) ([]types.User, error)               { return nil, nil }

func (f *fakeAPIStore) CreateSensor(_ context.Context, s types.Sensor) (types.Sensor, error) {
	f.sensors = append(f.sensors, s)
	return s, nil
}
func (f *fakeAPIStore) GetSensor(_ context.Context, id string) (types.Sensor, error) {
	for _, s := range f.sensors {
		if s.ID == id {
			return s, nil
		}
	}
	return types.Sensor{}, ErrAuthorizationDenied
}
func (f *fakeAPIStore) UpdateSensor(_ context.Context, s types.Sensor) (types.Sensor, error) {
	return s, nil
}
func (f *fakeAPIStore) SoftDeleteSensor(_ context.Context, id string) error { return nil }
func (f *fakeAPIStore) ListSensors(_ context.Context, onlyActive bool) ([]types.Sensor, error) {
	return f.sensors, nil
}
func (f *fakeAPIStore) ReadingHistory(_ context.Context, sensorID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Reading], error) {
	return types.Collection[types.Reading]{}, nil
}

func (f *fakeAPIStore) CreateDevice(_ context.Context, d types.Device) (types.Device, error) {
	return d, nil
}
func (f *fakeAPIStore) GetDevice(_ context.Context, id string) (types.Device, error) {
	return types.Device{ID: id}, nil
}
func (f *fakeAPIStore) UpdateDevice(_ context.Context, d types.Device) (types.Device, error) {
	return d, nil
}
func (f *fakeAPIStore) SoftDeleteDevice(_ context.Context, id string) error { return nil }
func (f *fakeAPIStore) ListDevices(_ context.Context, onlyActive bool) ([]types.Device, error) {
	return nil, nil
}
func (f *fakeAPIStore) DeviceEventHistory(_ context.Context, deviceID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.DeviceEvent], error) {
	return types.Collection[types.DeviceEvent]{}, nil
}

func (f *fakeAPIStore) CreateRule(_ context.Context, r types.Rule) (types.Rule, error) { return r, nil }
func (f *fakeAPIStore) GetRule(_ context.Context, id string) (types.Rule, error) {
	return types.Rule{ID: id}, nil
}
func (f *fakeAPIStore) UpdateRule(_ context.Context, r types.Rule) (types.Rule, error) { return r, nil }
func (f *fakeAPIStore) SoftDeleteRule(_ context.Context, id string) error              { return nil }
func (f *fakeAPIStore) ListRules(_ context.Context, onlyEnabled bool) ([]types.Rule, error) {
	return nil, nil
}
func (f *fakeAPIStore) RuleExecutionHistory(_ context.Context, ruleID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.RuleExecution], error) {
	return types.Collection[types.RuleExecution]{}, nil
}

func (f *fakeAPIStore) GetNotification(_ context.Context, id string) (types.Notification, error) {
	return types.Notification{ID: id}, nil
}
func (f *fakeAPIStore) MarkNotificationRead(_ context.Context, id string) (bool, error) {
	return true, nil
}
func (f *fakeAPIStore) NotificationHistory(_ context.Context, recipientUserID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Notification], error) {
	return types.Collection[types.Notification]{}, nil
}

func (f *fakeAPIStore) CreateTemplate(_ context.Context, t types.NotificationTemplate) (types.NotificationTemplate, error) {
	return t, nil
}
func (f *fakeAPIStore) GetTemplate(_ context.Context, id string) (types.NotificationTemplate, error) {
	return types.NotificationTemplate{ID: id}, nil
}
func (f *fakeAPIStore) ListTemplates(_ context.Context) ([]types.NotificationTemplate, error) {
	return nil, nil
}

func TestRoleCheckerAllowsAdminEverything(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)

	allowed, err := rc.Allow(context.Background(), types.RoleAdmin, "user.deactivate")
	is.NoErr(err)
	is.True(allowed)
}

func TestRoleCheckerDeniesViewerWrite(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)

	allowed, err := rc.Allow(context.Background(), types.RoleViewer, "sensor.create")
	is.NoErr(err)
	is.True(!allowed)
}

func TestRoleCheckerAllowsViewerRead(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)

	allowed, err := rc.Allow(context.Background(), types.RoleViewer, "sensor.list")
	is.NoErr(err)
	is.True(allowed)
}

func TestQueriesRequireAuthContext(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)
	q := NewQueries(&fakeAPIStore{}, rc)

	_, err := q.ListSensors(context.Background(), true)
	is.True(err == ErrAuthorizationDenied)
}

func TestMutationsAllowEditorToCreateSensor(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)
	store := &fakeAPIStore{}
	m := NewMutations(store, rc, nil, nil)

	ctx := ContextWithAuth(context.Background(), AuthContext{UserID: "u1", Role: types.RoleEditor})
	_, err := m.CreateSensor(ctx, types.Sensor{ID: "s1", Name: "test"})
	is.NoErr(err)
	is.Equal(len(store.sensors), 1)
}

func TestMutationsDenyViewerDeviceControl(t *testing.T) {
	is := is.New(t)
	rc := newTestRoleChecker(t)
	m := NewMutations(&fakeAPIStore{}, rc, nil, nil)

	ctx := ContextWithAuth(context.Background(), AuthContext{UserID: "u1", Role: types.RoleViewer})
	err := m.ControlDevice(ctx, "d1", types.VerbTurnOn, nil, 0)
	is.True(err == ErrAuthorizationDenied)
}
