package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/greenhouse/core/pkg/types"
)

// JSON is a generic gorm column type for the tree/list-shaped fields the
// spec insists stay data, never code (§9: "resist the temptation to
// serialize predicates as executable code"). The teacher stores nested
// structures as real relational sub-tables (Location, Tenant, Lwm2mType);
// a condition tree has no fixed shape to normalize into columns, so it is
// persisted as tagged JSON instead, per the spec's own design note.
type JSON[T any] struct {
	Value T
}

func (j JSON[T]) Value2() T { return j.Value }

func (j *JSON[T]) Scan(value any) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan source %T for JSON column", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &j.Value)
}

func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

type Sensor struct {
	ID            string `gorm:"primaryKey"`
	HardwareID    string `gorm:"uniqueIndex"`
	Name          string
	Kind          string
	MQTTTopic     string
	Location      string
	Configuration JSON[types.SensorConfiguration] `gorm:"type:text"`
	Stats         JSON[map[string]types.Stats]     `gorm:"type:text"`
	Active        bool
	Online        bool
	LastSeen      time.Time
	CreatedAt     time.Time
}

// Reading is the generic fallback table; per-kind tables (§9 design note)
// are modeled as the same struct with gorm's TableName override so routing
// at write time only changes which table gorm targets, not the shape.
type Reading struct {
	ID         string               `gorm:"primaryKey"`
	SensorID   string               `gorm:"index"`
	ReceivedAt time.Time            `gorm:"index"`
	Raw        JSON[map[string]any] `gorm:"type:text"`
	Normalized JSON[map[string]any] `gorm:"type:text"`
	Quality    string
}

// TableName gives gorm its default target; callers that need per-kind
// routing use db.Table(readingsTableForKind(kind)) instead (§9: "typed
// tables per kind + generic fallback", routed by kind at write time).
func (Reading) TableName() string {
	return "sensor_data_generic"
}

// readingsTableForKind implements the §9 "typed tables per kind + generic
// fallback" routing rule.
func readingsTableForKind(kind types.SensorKind) string {
	switch kind {
	case types.SensorTEMHUM:
		return "readings_temhum"
	case types.SensorWaterQuality:
		return "readings_water_quality"
	case types.SensorTempPressure:
		return "readings_temp_pressure"
	case types.SensorLight:
		return "readings_light"
	case types.SensorPower:
		return "readings_power"
	default:
		return "sensor_data_generic"
	}
}

type Device struct {
	ID                   string `gorm:"primaryKey"`
	HardwareID           string `gorm:"uniqueIndex"`
	Name                 string
	Kind                 string
	MQTTCommandTopic     string
	MQTTStatusTopic      string
	Status               string
	Confirmed            bool
	LastConfirmedAt      time.Time
	NotificationsEnabled bool
	Configuration        JSON[types.DeviceConfiguration] `gorm:"type:text"`
	OwnerID              string
	LastSeen             time.Time
	CreatedAt            time.Time
	Active               bool
}

type DeviceEvent struct {
	ID            string `gorm:"primaryKey"`
	DeviceID      string `gorm:"index"`
	RequestID     string `gorm:"index"`
	PreviousValue string
	NewValue      string
	Optimistic    bool
	ObservedAt    time.Time `gorm:"index"`
}

type Rule struct {
	ID                   string `gorm:"primaryKey"`
	Name                 string
	Description          string
	Enabled              bool
	Priority             int
	CooldownSeconds      int
	MaxExecutionsPerHour *int
	Conditions           JSON[types.ConditionNode] `gorm:"type:text"`
	Actions              JSON[[]types.RuleAction]  `gorm:"type:text"`
	LastTriggeredAt      time.Time
	TriggerCount         int
	CreatedBy            string
}

type RuleExecution struct {
	ID               string `gorm:"primaryKey"`
	RuleID           string `gorm:"index"`
	TriggeredAt      time.Time `gorm:"index"`
	Success          bool
	ElapsedMs        int64
	TriggerData      JSON[map[string]any]     `gorm:"type:text"`
	EvaluationResult bool
	ActionsExecuted  JSON[[]types.ActionOutcome] `gorm:"type:text"`
	ErrorMessage     string
	Manual           bool
}

type Notification struct {
	ID              string `gorm:"primaryKey"`
	Title           string
	Body            string
	Kind            string
	Severity        string
	Channel         string
	RecipientUserID string
	Source          string
	DeliveryStatus  string
	IsRead          bool
	CreatedAt       time.Time `gorm:"index"`
	ReadAt          *time.Time
	DeliveredAt     *time.Time
	TemplateID      string
}

type NotificationTemplate struct {
	ID                string `gorm:"primaryKey"`
	Name              string
	Kind              string
	TitleTemplate     string
	BodyTemplate      string
	SupportedChannels JSON[[]types.NotificationChannel] `gorm:"type:text"`
	Variables         JSON[[]types.TemplateVariable]    `gorm:"type:text"`
}
