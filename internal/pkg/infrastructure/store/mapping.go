package store

import "github.com/greenhouse/core/pkg/types"

func userToDomain(u User) types.User {
	return types.User{
		ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash,
		Role: types.Role(u.Role), Active: u.Active, CreatedAt: u.CreatedAt,
	}
}

func userFromDomain(u types.User) User {
	return User{
		ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash,
		Role: string(u.Role), Active: u.Active, CreatedAt: u.CreatedAt,
	}
}

func sensorToDomain(s Sensor) types.Sensor {
	return types.Sensor{
		ID: s.ID, HardwareID: s.HardwareID, Name: s.Name, Kind: types.SensorKind(s.Kind),
		MQTTTopic: s.MQTTTopic, Location: s.Location, Configuration: s.Configuration.Value,
		Stats: s.Stats.Value, Active: s.Active, Online: s.Online, LastSeen: s.LastSeen, CreatedAt: s.CreatedAt,
	}
}

func sensorFromDomain(s types.Sensor) Sensor {
	return Sensor{
		ID: s.ID, HardwareID: s.HardwareID, Name: s.Name, Kind: string(s.Kind),
		MQTTTopic: s.MQTTTopic, Location: s.Location,
		Configuration: JSON[types.SensorConfiguration]{Value: s.Configuration},
		Stats:         JSON[map[string]types.Stats]{Value: s.Stats},
		Active:        s.Active, Online: s.Online, LastSeen: s.LastSeen, CreatedAt: s.CreatedAt,
	}
}

func readingToDomain(r Reading) types.Reading {
	return types.Reading{
		ID: r.ID, SensorID: r.SensorID, ReceivedAt: r.ReceivedAt,
		Raw: r.Raw.Value, Normalized: r.Normalized.Value, Quality: types.Quality(r.Quality),
	}
}

func readingFromDomain(r types.Reading) Reading {
	return Reading{
		ID: r.ID, SensorID: r.SensorID, ReceivedAt: r.ReceivedAt,
		Raw:        JSON[map[string]any]{Value: r.Raw},
		Normalized: JSON[map[string]any]{Value: r.Normalized},
		Quality:    string(r.Quality),
	}
}

func deviceToDomain(d Device) types.Device {
	return types.Device{
		ID: d.ID, HardwareID: d.HardwareID, Name: d.Name, Kind: types.DeviceKind(d.Kind),
		MQTTCommandTopic: d.MQTTCommandTopic, MQTTStatusTopic: d.MQTTStatusTopic,
		Status: types.DeviceStatus(d.Status), Confirmed: d.Confirmed, LastConfirmedAt: d.LastConfirmedAt,
		NotificationsEnabled: d.NotificationsEnabled, Configuration: d.Configuration.Value,
		OwnerID: d.OwnerID, LastSeen: d.LastSeen, CreatedAt: d.CreatedAt, Active: d.Active,
	}
}

func deviceFromDomain(d types.Device) Device {
	return Device{
		ID: d.ID, HardwareID: d.HardwareID, Name: d.Name, Kind: string(d.Kind),
		MQTTCommandTopic: d.MQTTCommandTopic, MQTTStatusTopic: d.MQTTStatusTopic,
		Status: string(d.Status), Confirmed: d.Confirmed, LastConfirmedAt: d.LastConfirmedAt,
		NotificationsEnabled: d.NotificationsEnabled,
		Configuration:        JSON[types.DeviceConfiguration]{Value: d.Configuration},
		OwnerID:              d.OwnerID, LastSeen: d.LastSeen, CreatedAt: d.CreatedAt, Active: d.Active,
	}
}

func deviceEventToDomain(e DeviceEvent) types.DeviceEvent {
	return types.DeviceEvent{
		ID: e.ID, DeviceID: e.DeviceID, RequestID: e.RequestID,
		PreviousValue: types.DeviceStatus(e.PreviousValue), NewValue: types.DeviceStatus(e.NewValue),
		Optimistic: e.Optimistic, ObservedAt: e.ObservedAt,
	}
}

func deviceEventFromDomain(e types.DeviceEvent) DeviceEvent {
	return DeviceEvent{
		ID: e.ID, DeviceID: e.DeviceID, RequestID: e.RequestID,
		PreviousValue: string(e.PreviousValue), NewValue: string(e.NewValue),
		Optimistic: e.Optimistic, ObservedAt: e.ObservedAt,
	}
}

func ruleToDomain(r Rule) types.Rule {
	return types.Rule{
		ID: r.ID, Name: r.Name, Description: r.Description, Enabled: r.Enabled,
		Priority: r.Priority, CooldownSeconds: r.CooldownSeconds, MaxExecutionsPerHour: r.MaxExecutionsPerHour,
		Conditions: r.Conditions.Value, Actions: r.Actions.Value,
		LastTriggeredAt: r.LastTriggeredAt, TriggerCount: r.TriggerCount, CreatedBy: r.CreatedBy,
	}
}

func ruleFromDomain(r types.Rule) Rule {
	return Rule{
		ID: r.ID, Name: r.Name, Description: r.Description, Enabled: r.Enabled,
		Priority: r.Priority, CooldownSeconds: r.CooldownSeconds, MaxExecutionsPerHour: r.MaxExecutionsPerHour,
		Conditions: JSON[types.ConditionNode]{Value: r.Conditions},
		Actions:    JSON[[]types.RuleAction]{Value: r.Actions},
		LastTriggeredAt: r.LastTriggeredAt, TriggerCount: r.TriggerCount, CreatedBy: r.CreatedBy,
	}
}

func ruleExecutionToDomain(e RuleExecution) types.RuleExecution {
	return types.RuleExecution{
		ID: e.ID, RuleID: e.RuleID, TriggeredAt: e.TriggeredAt, Success: e.Success, ElapsedMs: e.ElapsedMs,
		TriggerData: e.TriggerData.Value, EvaluationResult: e.EvaluationResult,
		ActionsExecuted: e.ActionsExecuted.Value, ErrorMessage: e.ErrorMessage, Manual: e.Manual,
	}
}

func ruleExecutionFromDomain(e types.RuleExecution) RuleExecution {
	return RuleExecution{
		ID: e.ID, RuleID: e.RuleID, TriggeredAt: e.TriggeredAt, Success: e.Success, ElapsedMs: e.ElapsedMs,
		TriggerData:      JSON[map[string]any]{Value: e.TriggerData},
		EvaluationResult: e.EvaluationResult,
		ActionsExecuted:  JSON[[]types.ActionOutcome]{Value: e.ActionsExecuted},
		ErrorMessage:     e.ErrorMessage, Manual: e.Manual,
	}
}

func notificationToDomain(n Notification) types.Notification {
	return types.Notification{
		ID: n.ID, Title: n.Title, Body: n.Body, Kind: n.Kind, Severity: types.NotificationSeverity(n.Severity),
		Channel: types.NotificationChannel(n.Channel), RecipientUserID: n.RecipientUserID, Source: n.Source,
		DeliveryStatus: types.DeliveryStatus(n.DeliveryStatus), IsRead: n.IsRead, CreatedAt: n.CreatedAt,
		ReadAt: n.ReadAt, DeliveredAt: n.DeliveredAt, TemplateID: n.TemplateID,
	}
}

func notificationFromDomain(n types.Notification) Notification {
	return Notification{
		ID: n.ID, Title: n.Title, Body: n.Body, Kind: n.Kind, Severity: string(n.Severity),
		Channel: string(n.Channel), RecipientUserID: n.RecipientUserID, Source: n.Source,
		DeliveryStatus: string(n.DeliveryStatus), IsRead: n.IsRead, CreatedAt: n.CreatedAt,
		ReadAt: n.ReadAt, DeliveredAt: n.DeliveredAt, TemplateID: n.TemplateID,
	}
}

func templateToDomain(t NotificationTemplate) types.NotificationTemplate {
	return types.NotificationTemplate{
		ID: t.ID, Name: t.Name, Kind: t.Kind, TitleTemplate: t.TitleTemplate, BodyTemplate: t.BodyTemplate,
		SupportedChannels: t.SupportedChannels.Value, Variables: t.Variables.Value,
	}
}

func templateFromDomain(t types.NotificationTemplate) NotificationTemplate {
	return NotificationTemplate{
		ID: t.ID, Name: t.Name, Kind: t.Kind, TitleTemplate: t.TitleTemplate, BodyTemplate: t.BodyTemplate,
		SupportedChannels: JSON[[]types.NotificationChannel]{Value: t.SupportedChannels},
		Variables:         JSON[[]types.TemplateVariable]{Value: t.Variables},
	}
}
