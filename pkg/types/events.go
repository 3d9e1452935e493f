package types

import "time"

// BusMessage is implemented by every Event Bus payload type. The shape
// mirrors the teacher's messaging.Message interface (ContentType/TopicName)
// so that publishing one of these onto internal/pkg/application/eventbus reads exactly
// like publishing a message in the teacher's codebase, minus the broker.
type BusMessage interface {
	ContentType() string
	TopicName() string
}

type TelemetryUpdated struct {
	SensorID   string         `json:"sensorId"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Normalized map[string]any `json:"normalized"`
	Quality    Quality        `json:"quality"`
}

func (e *TelemetryUpdated) ContentType() string { return "application/json" }
func (e *TelemetryUpdated) TopicName() string   { return "telemetry.updated" }

type DeviceStateChanged struct {
	DeviceID      string       `json:"deviceId"`
	RequestID     string       `json:"requestId,omitempty"`
	PreviousValue DeviceStatus `json:"previousValue"`
	NewValue      DeviceStatus `json:"newValue"`
	Optimistic    bool         `json:"optimistic"`
	ObservedAt    time.Time    `json:"observedAt"`
}

func (e *DeviceStateChanged) ContentType() string { return "application/json" }
func (e *DeviceStateChanged) TopicName() string   { return "device.state.changed" }

type RuleTriggered struct {
	RuleID      string    `json:"ruleId"`
	TriggeredAt time.Time `json:"triggeredAt"`
	Success     bool      `json:"success"`
	Manual      bool      `json:"manual,omitempty"`
}

func (e *RuleTriggered) ContentType() string { return "application/json" }
func (e *RuleTriggered) TopicName() string   { return "rule.triggered" }

type NotificationCreated struct {
	NotificationID string    `json:"notificationId"`
	Channel        string    `json:"channel"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e *NotificationCreated) ContentType() string { return "application/json" }
func (e *NotificationCreated) TopicName() string   { return "notification.created" }

type NotificationUpdated struct {
	NotificationID string         `json:"notificationId"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (e *NotificationUpdated) ContentType() string { return "application/json" }
func (e *NotificationUpdated) TopicName() string   { return "notification.updated" }
