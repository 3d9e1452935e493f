package config

import "github.com/greenhouse/core/pkg/types"

// ToRules converts the YAML seed shape into store-ready types.Rule values.
func (s Seed) ToRules() []types.Rule {
	out := make([]types.Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		out = append(out, types.Rule{
			ID:                   r.ID,
			Name:                 r.Name,
			Description:          r.Description,
			Enabled:              r.Enabled,
			Priority:             r.Priority,
			CooldownSeconds:      r.CooldownSeconds,
			MaxExecutionsPerHour: r.MaxExecutionsPerHour,
			Conditions:           r.Conditions.toType(),
			Actions:              toActions(r.Actions),
		})
	}
	return out
}

func (c conditionNodeSeed) toType() types.ConditionNode {
	children := make([]types.ConditionNode, 0, len(c.Children))
	for _, child := range c.Children {
		children = append(children, child.toType())
	}
	return types.ConditionNode{
		Kind:          types.NodeKind(c.Kind),
		SensorRef:     c.SensorRef,
		Field:         c.Field,
		Operator:      types.Operator(c.Operator),
		Value:         c.Value,
		MaxAgeSeconds: c.MaxAgeSeconds,
		Start:         c.StartTime,
		End:           c.EndTime,
		DeviceRef:     c.DeviceRef,
		StateEquals:   types.DeviceStatus(c.StateEquals),
		UseOptimistic: c.UseOptimistic,
		Children:      children,
	}
}

func toActions(seeds []ruleActionSeed) []types.RuleAction {
	out := make([]types.RuleAction, 0, len(seeds))
	for _, a := range seeds {
		channels := make([]types.NotificationChannel, 0, len(a.Channels))
		for _, c := range a.Channels {
			channels = append(channels, types.NotificationChannel(c))
		}
		out = append(out, types.RuleAction{
			Kind:            types.ActionKind(a.Kind),
			DeviceRef:       a.DeviceRef,
			Verb:            types.ControlVerb(a.Verb),
			DurationSeconds: a.DurationSeconds,
			TemplateRef:     a.TemplateRef,
			Title:           a.Title,
			BodyTemplate:    a.BodyTemplate,
			Severity:        types.NotificationSeverity(a.Severity),
			Channels:        channels,
			Variables:       a.Variables,
			URL:             a.URL,
			PayloadTemplate: a.PayloadTemplate,
		})
	}
	return out
}

// ToTemplates converts the YAML seed shape into store-ready
// types.NotificationTemplate values.
func (s Seed) ToTemplates() []types.NotificationTemplate {
	out := make([]types.NotificationTemplate, 0, len(s.Templates))
	for _, t := range s.Templates {
		channels := make([]types.NotificationChannel, 0, len(t.SupportedChannels))
		for _, c := range t.SupportedChannels {
			channels = append(channels, types.NotificationChannel(c))
		}
		out = append(out, types.NotificationTemplate{
			ID:                t.ID,
			Name:              t.Name,
			Kind:              t.Kind,
			TitleTemplate:     t.TitleTemplate,
			BodyTemplate:      t.BodyTemplate,
			SupportedChannels: channels,
		})
	}
	return out
}
