package actionable

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Condition compares one call field, addressed by a dotted JSON path such as
// "customerPotential.score", against a value.
type Condition struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

// Action says who hears about an alert and how.
type Action struct {
	Type       string   `json:"type" yaml:"type"`
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Rule fires for a call when every condition holds.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Priority    string      `json:"priority" yaml:"priority"`
	Actions     []Action    `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Message is the text of alerts raised by the rule.
func (r Rule) Message() string {
	if len(r.Actions) > 0 && r.Actions[0].Message != "" {
		return r.Actions[0].Message
	}
	return "Rule triggered: " + r.Name
}

func (r Rule) validate() error {
	if r.ID == "" {
		return errors.New("rule without id")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: no conditions", r.ID)
	}
	for _, c := range r.Conditions {
		switch c.Operator {
		case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		default:
			return fmt.Errorf("rule %s: unknown operator %q", r.ID, c.Operator)
		}
		if c.Field == "" {
			return fmt.Errorf("rule %s: condition without field", r.ID)
		}
	}
	switch r.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("rule %s: unknown priority %q", r.ID, r.Priority)
	}
	return nil
}

// DefaultRules is the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "rule1",
			Name:        "Низкая оценка звонка",
			Description: "Оповещение при звонках с оценкой ниже 4",
			Enabled:     true,
			Conditions:  []Condition{{Field: "score", Operator: OpLessThan, Value: 4}},
			Priority:    PriorityHigh,
			Actions: []Action{
				{Type: "notification", Message: "Обнаружен звонок с низкой оценкой, требуется внимание!"},
				{Type: "email", Recipients: []string{"manager@example.com"}, Message: "Обнаружен звонок с низкой оценкой, требуется разбор!"},
			},
		},
		{
			ID:          "rule2",
			Name:        "Потеря клиента",
			Description: "Клиент с высоким потенциалом не совершил покупку",
			Enabled:     true,
			Conditions: []Condition{
				{Field: "customerPotential.score", Operator: OpGreaterThan, Value: 7},
				{Field: "callResult", Operator: OpEquals, Value: "неуспешный"},
			},
			Priority: PriorityHigh,
			Actions: []Action{
				{Type: "notification", Message: "Потеря ценного клиента! Требуется повторный контакт."},
			},
		},
		{
			ID:          "rule3",
			Name:        "Проблема с продуктом",
			Description: "Клиент упоминает проблему с продуктом или услугой",
			Enabled:     false,
			Conditions:  []Condition{{Field: "objections", Operator: OpContains, Value: "проблем"}},
			Priority:    PriorityMedium,
			Actions: []Action{
				{Type: "notification", Message: "Клиент упомянул проблему с продуктом"},
				{Type: "email", Recipients: []string{"support@example.com"}, Message: "Клиент упомянул проблему с продуктом, требуется разбирательство"},
			},
		},
	}
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML file of the form `rules: [...]`. JSON works too.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := map[string]bool{}
	for _, r := range f.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%s: duplicate rule id %s", path, r.ID)
		}
		seen[r.ID] = true
	}
	return f.Rules, nil
}
