package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/greenhouse/core/pkg/types"
)

// evalNode implements the condition-tree evaluator (§4.G). Leaves that
// cannot be resolved (stale reading, missing device, bad field type) are
// treated as unknown, which is false for this evaluation; the leaf
// evaluators log missing, stale and not-found cases. trigger accumulates the minimal projection of leaves that
// evaluated true, for RuleExecution.TriggerData.
func (e *Engine) evalNode(ctx context.Context, node types.ConditionNode, now time.Time, trigger map[string]any) bool {
	switch node.Kind {
	case types.NodeSensor:
		return e.evalSensorLeaf(ctx, node, now, trigger)
	case types.NodeTime:
		return e.evalTimeLeaf(node, now)
	case types.NodeDevice:
		return e.evalDeviceLeaf(ctx, node, now, trigger)
	case types.NodeNot:
		if len(node.Children) == 0 {
			return false
		}
		return !e.evalNode(ctx, node.Children[0], now, trigger)
	case types.NodeAnd:
		if len(node.Children) == 0 {
			return true
		}
		for _, child := range node.Children {
			if !e.evalNode(ctx, child, now, trigger) {
				return false
			}
		}
		return true
	case types.NodeOr:
		if len(node.Children) == 0 {
			return false
		}
		for _, child := range node.Children {
			if e.evalNode(ctx, child, now, trigger) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *Engine) evalSensorLeaf(ctx context.Context, node types.ConditionNode, now time.Time, trigger map[string]any) bool {
	reading, err := e.sensors.LatestReading(ctx, node.SensorRef)
	if err != nil {
		e.log.Debug().Str("sensorRef", node.SensorRef).Msg("sensor leaf unknown: no reading")
		return false
	}
	if node.MaxAgeSeconds > 0 && now.Sub(reading.ReceivedAt) > time.Duration(node.MaxAgeSeconds)*time.Second {
		e.log.Warn().Str("sensorRef", node.SensorRef).Time("receivedAt", reading.ReceivedAt).Msg("sensor leaf stale, treated as unknown")
		return false
	}

	val, ok := reading.Normalized[node.Field].(float64)
	if !ok {
		return false
	}
	result := applyOperator(node.Operator, val, node.Value)
	if result {
		trigger[fmt.Sprintf("sensor.%s.%s", node.SensorRef, node.Field)] = val
	}
	return result
}

func (e *Engine) evalDeviceLeaf(ctx context.Context, node types.ConditionNode, now time.Time, trigger map[string]any) bool {
	device, err := e.devices.GetDevice(ctx, node.DeviceRef)
	if err != nil {
		e.log.Debug().Str("deviceRef", node.DeviceRef).Msg("device leaf unknown: device not found")
		return false
	}

	if node.UseOptimistic {
		if last, ok := e.selfTriggerAt(node.DeviceRef); ok && now.Sub(last) < e.cfg.SelfTriggerGuard {
			return false
		}
	} else if !device.Confirmed {
		return false
	}

	result := device.Status == node.StateEquals
	if result {
		trigger[fmt.Sprintf("device.%s", node.DeviceRef)] = string(device.Status)
	}
	return result
}

func (e *Engine) evalTimeLeaf(node types.ConditionNode, now time.Time) bool {
	local := now.In(e.cfg.Timezone)
	start, errS := parseHHMM(node.Start)
	end, errE := parseHHMM(node.End)
	if errS != nil || errE != nil {
		return false
	}
	cur := local.Hour()*60 + local.Minute()

	if start <= end {
		return cur >= start && cur < end
	}
	// Wrap-around window, e.g. 22:00-06:00: two interval checks (§4.G).
	return cur >= start || cur < end
}

// parseHHMM parses "HH:MM" into minutes since midnight.
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("rules: invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

func applyOperator(op types.Operator, actual, want float64) bool {
	switch op {
	case types.OpLT:
		return actual < want
	case types.OpLE:
		return actual <= want
	case types.OpEQ:
		return actual == want
	case types.OpGE:
		return actual >= want
	case types.OpGT:
		return actual > want
	case types.OpNE:
		return actual != want
	default:
		return false
	}
}
