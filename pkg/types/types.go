// Package types holds the entities shared by every component of the
// greenhouse core: the Store persists them, the normalizer and rules
// engine read and produce them, and the API surface contracts expose them
// unchanged to the external query layer.
package types

import "time"

// Role is the authorization level carried on the API auth context (§4.J).
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SensorKind string

const (
	SensorTEMHUM       SensorKind = "TEMHUM"
	SensorWaterQuality SensorKind = "WATER_QUALITY"
	SensorLight        SensorKind = "LIGHT"
	SensorTempPressure SensorKind = "TEMP_PRESSURE"
	SensorSoilMoisture SensorKind = "SOIL_MOISTURE"
	SensorCO2          SensorKind = "CO2"
	SensorMotion       SensorKind = "MOTION"
	SensorPower        SensorKind = "POWER"
	SensorCustom       SensorKind = "CUSTOM"
)

// Quality flags the trustworthiness of a single canonical field value.
type Quality string

const (
	QualityGood    Quality = "good"
	QualityWarning Quality = "warning"
)

// Stats is the rolling min/max/avg window maintained by Telemetry Ingest
// (§4.F.4) per numeric canonical field, over the last hour.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// SensorConfiguration holds the canonical field list, alert thresholds, and
// auto-discovery provenance for a Sensor (§3).
type SensorConfiguration struct {
	PayloadFields  []string             `json:"payloadFields"`
	Thresholds     map[string]Threshold `json:"thresholds,omitempty"`
	AutoDiscovered bool                 `json:"auto_discovered,omitempty"`
	DetectedKind   string               `json:"detectedKind,omitempty"`
	CanonicalKind  string               `json:"canonicalKind,omitempty"`
}

type Threshold struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type Sensor struct {
	ID            string              `json:"id"`
	HardwareID    string              `json:"hardwareId"`
	Name          string              `json:"name"`
	Kind          SensorKind          `json:"kind"`
	MQTTTopic     string              `json:"mqttTopic"`
	Location      string              `json:"location,omitempty"`
	Configuration SensorConfiguration `json:"configuration"`
	Active        bool                `json:"active"`
	Online        bool                `json:"online"`
	LastSeen      time.Time           `json:"lastSeen,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	Stats         map[string]Stats    `json:"stats,omitempty"`
}

// Reading is an append-only normalized telemetry frame (§3).
type Reading struct {
	ID         string         `json:"id"`
	SensorID   string         `json:"sensorId"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Raw        map[string]any `json:"raw"`
	Normalized map[string]any `json:"normalized"`
	Quality    Quality        `json:"quality"`
}

type DeviceKind string

const (
	DeviceWaterPump      DeviceKind = "WATER_PUMP"
	DeviceVentilator     DeviceKind = "VENTILATOR"
	DeviceHeater         DeviceKind = "HEATER"
	DeviceWaterHeater    DeviceKind = "WATER_HEATER"
	DeviceLights         DeviceKind = "LIGHTS"
	DeviceValve          DeviceKind = "VALVE"
	DeviceRelay          DeviceKind = "RELAY"
	DeviceMotor          DeviceKind = "MOTOR"
	DeviceSensorActuator DeviceKind = "SENSOR_ACTUATOR"
)

type DeviceStatus string

const (
	DeviceOn          DeviceStatus = "ON"
	DeviceOff         DeviceStatus = "OFF"
	DeviceOffline     DeviceStatus = "OFFLINE"
	DeviceError       DeviceStatus = "ERROR"
	DeviceMaintenance DeviceStatus = "MAINTENANCE"
)

type DeviceConfiguration struct {
	AutoDiscovered bool   `json:"auto_discovered,omitempty"`
	DetectedKind   string `json:"detectedKind,omitempty"`
	CanonicalKind  string `json:"canonicalKind,omitempty"`
	LegacyTopic    bool   `json:"legacyTopic,omitempty"`
	LegacyField    string `json:"legacyField,omitempty"`
}

type Device struct {
	ID                   string              `json:"id"`
	HardwareID           string              `json:"hardwareId"`
	Name                 string              `json:"name"`
	Kind                 DeviceKind          `json:"kind"`
	MQTTCommandTopic     string              `json:"mqttCommandTopic"`
	MQTTStatusTopic      string              `json:"mqttStatusTopic"`
	Status               DeviceStatus        `json:"status"`
	Confirmed            bool                `json:"confirmed"`
	LastConfirmedAt      time.Time           `json:"lastConfirmedAt,omitempty"`
	NotificationsEnabled bool                `json:"notificationsEnabled"`
	Configuration        DeviceConfiguration `json:"configuration"`
	OwnerID              string              `json:"ownerId,omitempty"`
	LastSeen             time.Time           `json:"lastSeen,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	Active               bool                `json:"active"`
}

// DeviceEvent is an append-only audit row of an observed or optimistic
// status transition (§4.H.3).
type DeviceEvent struct {
	ID            string       `json:"id"`
	DeviceID      string       `json:"deviceId"`
	RequestID     string       `json:"requestId,omitempty"`
	PreviousValue DeviceStatus `json:"previousValue"`
	NewValue      DeviceStatus `json:"newValue"`
	Optimistic    bool         `json:"optimistic"`
	ObservedAt    time.Time    `json:"observedAt"`
}

type Operator string

const (
	OpLT Operator = "<"
	OpLE Operator = "≤"
	OpEQ Operator = "="
	OpGE Operator = "≥"
	OpGT Operator = ">"
	OpNE Operator = "≠"
)

// NodeKind discriminates the tagged condition-tree union (§3, §9).
type NodeKind string

const (
	NodeSensor NodeKind = "SENSOR"
	NodeTime   NodeKind = "TIME"
	NodeDevice NodeKind = "DEVICE"
	NodeAnd    NodeKind = "AND"
	NodeOr     NodeKind = "OR"
	NodeNot    NodeKind = "NOT"
)

// ConditionNode is a value, never executable code (§9 design note). Leaves
// populate the fields relevant to their Kind; inner nodes populate Children.
type ConditionNode struct {
	Kind NodeKind `json:"kind"`

	// Sensor leaf
	SensorRef     string   `json:"sensorRef,omitempty"`
	Field         string   `json:"field,omitempty"`
	Operator      Operator `json:"operator,omitempty"`
	Value         float64  `json:"value,omitempty"`
	MaxAgeSeconds int      `json:"maxAgeSeconds,omitempty"`

	// Time leaf, HH:MM in system TZ
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// Device leaf
	DeviceRef     string       `json:"deviceRef,omitempty"`
	StateEquals   DeviceStatus `json:"stateEquals,omitempty"`
	UseOptimistic bool         `json:"useOptimistic,omitempty"`

	// Inner node
	Children []ConditionNode `json:"children,omitempty"`
}

type ActionKind string

const (
	ActionDeviceControl ActionKind = "DEVICE_CONTROL"
	ActionNotification  ActionKind = "NOTIFICATION"
	ActionRuleDisable   ActionKind = "RULE_DISABLE"
	ActionWebhook       ActionKind = "WEBHOOK"
)

type ControlVerb string

const (
	VerbTurnOn  ControlVerb = "TURN_ON"
	VerbTurnOff ControlVerb = "TURN_OFF"
	VerbToggle  ControlVerb = "TOGGLE"
	VerbSet     ControlVerb = "SET"
)

// RuleAction is a tagged variant of the ordered actions list (§3). Only the
// fields relevant to Kind are populated.
type RuleAction struct {
	Kind ActionKind `json:"kind"`

	// DeviceControl
	DeviceRef       string      `json:"deviceRef,omitempty"`
	Verb            ControlVerb `json:"verb,omitempty"`
	SetValue        *float64    `json:"value,omitempty"`
	DurationSeconds int         `json:"durationSeconds,omitempty"`

	// Notification
	TemplateRef  string                `json:"templateRef,omitempty"`
	Title        string                `json:"title,omitempty"`
	BodyTemplate string                `json:"bodyTemplate,omitempty"`
	Severity     NotificationSeverity  `json:"severity,omitempty"`
	Channels     []NotificationChannel `json:"channels,omitempty"`
	Variables    map[string]string     `json:"variables,omitempty"`

	// Webhook
	URL             string `json:"url,omitempty"`
	PayloadTemplate string `json:"payloadTemplate,omitempty"`
}

type Rule struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description,omitempty"`
	Enabled              bool          `json:"enabled"`
	Priority             int           `json:"priority"`
	CooldownSeconds      int           `json:"cooldownSeconds"`
	MaxExecutionsPerHour *int          `json:"maxExecutionsPerHour,omitempty"`
	Conditions           ConditionNode `json:"conditions"`
	Actions              []RuleAction  `json:"actions"`
	LastTriggeredAt      time.Time     `json:"lastTriggeredAt,omitempty"`
	TriggerCount         int           `json:"triggerCount"`
	CreatedBy            string        `json:"createdBy,omitempty"`
}

// ActionOutcome is one tagged entry of RuleExecution.ActionsExecuted.
type ActionOutcome struct {
	Kind    ActionKind `json:"kind"`
	Target  string     `json:"target,omitempty"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
}

type RuleExecution struct {
	ID               string          `json:"id"`
	RuleID           string          `json:"ruleId"`
	TriggeredAt      time.Time       `json:"triggeredAt"`
	Success          bool            `json:"success"`
	ElapsedMs        int64           `json:"elapsedMs"`
	TriggerData      map[string]any  `json:"triggerData"`
	EvaluationResult bool            `json:"evaluationResult"`
	ActionsExecuted  []ActionOutcome `json:"actionsExecuted"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	Manual           bool            `json:"manual,omitempty"`
}

type NotificationSeverity string

const (
	SeverityLow      NotificationSeverity = "low"
	SeverityMedium   NotificationSeverity = "medium"
	SeverityHigh     NotificationSeverity = "high"
	SeverityCritical NotificationSeverity = "critical"
)

type NotificationChannel string

const (
	ChannelWebhook  NotificationChannel = "WEBHOOK"
	ChannelEmail    NotificationChannel = "EMAIL"
	ChannelTelegram NotificationChannel = "TELEGRAM"
	ChannelPush     NotificationChannel = "PUSH"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

type Notification struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Body            string               `json:"body"`
	Kind            string               `json:"kind"`
	Severity        NotificationSeverity `json:"severity"`
	Channel         NotificationChannel  `json:"channel"`
	RecipientUserID string               `json:"recipientUserId,omitempty"`
	Source          string               `json:"source"`
	DeliveryStatus  DeliveryStatus       `json:"deliveryStatus"`
	IsRead          bool                 `json:"isRead"`
	CreatedAt       time.Time            `json:"createdAt"`
	ReadAt          *time.Time           `json:"readAt,omitempty"`
	DeliveredAt     *time.Time           `json:"deliveredAt,omitempty"`
	TemplateID      string               `json:"templateId,omitempty"`
}

type TemplateVariable struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type NotificationTemplate struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Kind              string                `json:"kind"`
	TitleTemplate     string                `json:"titleTemplate"`
	BodyTemplate      string                `json:"bodyTemplate"`
	SupportedChannels []NotificationChannel `json:"supportedChannels"`
	Variables         []TemplateVariable    `json:"variables"`
}

// UnknownTopicSampleStatus is the Auto-Discovery decision state (§3).
type UnknownTopicSampleStatus string

const (
	SampleAnalyzing   UnknownTopicSampleStatus = "analyzing"
	SampleAutoCreated UnknownTopicSampleStatus = "auto_created"
	SampleRejected    UnknownTopicSampleStatus = "rejected"
)

// UnknownTopicSample is in-memory only; it is never persisted through the
// Store (§3).
type UnknownTopicSample struct {
	Topic        string                   `json:"topic"`
	FirstSeen    time.Time                `json:"firstSeen"`
	Samples      []map[string]any         `json:"samples"`
	MessageCount int                      `json:"messageCount"`
	LastSample   map[string]any           `json:"lastSample,omitempty"`
	SensorScore  int                      `json:"sensorScore"`
	DeviceScore  int                      `json:"deviceScore"`
	Status       UnknownTopicSampleStatus `json:"status"`
}

// Collection is the generic cursor-paginated result envelope every Store
// history query returns (§4.B).
type Collection[T any] struct {
	Data       []T    `json:"data"`
	Count      int    `json:"count"`
	Cursor     string `json:"cursor,omitempty"`
	TotalCount int    `json:"totalCount"`
}
