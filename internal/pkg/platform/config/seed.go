package config

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

// ruleSeed/templateSeed mirror the shape of types.Rule/NotificationTemplate
// closely enough to unmarshal a human-authored YAML seed file, the same way
// the teacher's application.LoadConfiguration reads its notifications.yaml
// subscriber list.
type ruleSeed struct {
	ID                   string               `yaml:"id"`
	Name                 string                `yaml:"name"`
	Description          string               `yaml:"description"`
	Enabled              bool                 `yaml:"enabled"`
	Priority             int                  `yaml:"priority"`
	CooldownSeconds      int                  `yaml:"cooldownSeconds"`
	MaxExecutionsPerHour *int                 `yaml:"maxExecutionsPerHour"`
	Conditions           conditionNodeSeed    `yaml:"conditions"`
	Actions              []ruleActionSeed     `yaml:"actions"`
}

type conditionNodeSeed struct {
	Kind          string              `yaml:"kind"`
	SensorRef     string              `yaml:"sensorRef"`
	Field         string              `yaml:"field"`
	Operator      string              `yaml:"operator"`
	Value         float64             `yaml:"value"`
	MaxAgeSeconds int                 `yaml:"maxAgeSeconds"`
	StartTime     string              `yaml:"startTime"`
	EndTime       string              `yaml:"endTime"`
	DeviceRef     string              `yaml:"deviceRef"`
	StateEquals   string              `yaml:"stateEquals"`
	UseOptimistic bool                `yaml:"useOptimistic"`
	Children      []conditionNodeSeed `yaml:"children"`
}

type ruleActionSeed struct {
	Kind            string            `yaml:"kind"`
	DeviceRef       string            `yaml:"deviceRef"`
	Verb            string            `yaml:"verb"`
	DurationSeconds int               `yaml:"durationSeconds"`
	TemplateRef     string            `yaml:"templateRef"`
	Title           string            `yaml:"title"`
	BodyTemplate    string            `yaml:"bodyTemplate"`
	Severity        string            `yaml:"severity"`
	Channels        []string          `yaml:"channels"`
	Variables       map[string]string `yaml:"variables"`
	URL             string            `yaml:"url"`
	PayloadTemplate string            `yaml:"payloadTemplate"`
}

type templateSeed struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Kind              string   `yaml:"kind"`
	TitleTemplate     string   `yaml:"titleTemplate"`
	BodyTemplate      string   `yaml:"bodyTemplate"`
	SupportedChannels []string `yaml:"supportedChannels"`
}

// Seed is the top-level shape of the seed.yaml file: the initial Rules and
// NotificationTemplates loaded at startup.
type Seed struct {
	Rules     []ruleSeed     `yaml:"rules"`
	Templates []templateSeed `yaml:"templates"`
}

func LoadSeed(r io.Reader) (Seed, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return Seed{}, err
	}
	var s Seed
	if err := yaml.Unmarshal(buf, &s); err != nil {
		return Seed{}, err
	}
	return s, nil
}
