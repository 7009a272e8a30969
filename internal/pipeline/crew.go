package pipeline

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tool names an agent may be granted.
const (
	ToolReadDocument = "read_financial_document"
	ToolWebSearch    = "web_search"
	ToolInvestment   = "analyze_investment_opportunities"
	ToolRisk         = "assess_financial_risk"
)

var knownTools = map[string]bool{
	ToolReadDocument: true,
	ToolWebSearch:    true,
	ToolInvestment:   true,
	ToolRisk:         true,
}

//go:embed agents.yaml
var defaultCrewYAML []byte

type Agent struct {
	Key             string   `yaml:"key"`
	Role            string   `yaml:"role"`
	Goal            string   `yaml:"goal"`
	Backstory       string   `yaml:"backstory"`
	Tools           []string `yaml:"tools"`
	MaxIter         int      `yaml:"max_iter"`
	MaxRPM          int      `yaml:"max_rpm"`
	AllowDelegation bool     `yaml:"allow_delegation"`
}

// HasTool reports whether the agent was granted the named tool.
func (a Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

type Task struct {
	Key            string `yaml:"key"`
	Agent          string `yaml:"agent"`
	Component      string `yaml:"component"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
}

// Crew is the static agent table plus the order in which tasks run.
type Crew struct {
	Agents []Agent `yaml:"agents"`
	Tasks  []Task  `yaml:"tasks"`
}

// DefaultCrew parses the embedded four-agent configuration.
func DefaultCrew() (*Crew, error) {
	return ParseCrew(defaultCrewYAML)
}

// ParseCrew decodes and validates a crew definition.
func ParseCrew(data []byte) (*Crew, error) {
	var c Crew
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse crew: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Crew) validate() error {
	if len(c.Agents) == 0 || len(c.Tasks) == 0 {
		return fmt.Errorf("crew needs at least one agent and one task")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Key == "" || a.Role == "" {
			return fmt.Errorf("agent %d: key and role are required", i)
		}
		if seen[a.Key] {
			return fmt.Errorf("agent %q defined twice", a.Key)
		}
		seen[a.Key] = true
		for _, t := range a.Tools {
			if !knownTools[t] {
				return fmt.Errorf("agent %q: unknown tool %q", a.Key, t)
			}
		}
		if a.MaxIter < 1 {
			a.MaxIter = 1
		}
	}
	for _, t := range c.Tasks {
		if !seen[t.Agent] {
			return fmt.Errorf("task %q references unknown agent %q", t.Key, t.Agent)
		}
		if strings.TrimSpace(t.Description) == "" {
			return fmt.Errorf("task %q has no description", t.Key)
		}
	}
	return nil
}

// Agent returns the agent with the given key.
func (c *Crew) Agent(key string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.Key == key {
			return a, true
		}
	}
	return Agent{}, false
}

// Roles lists agent roles in definition order.
func (c *Crew) Roles() []string {
	roles := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		roles[i] = a.Role
	}
	return roles
}

// Components lists what each task contributes, in execution order.
func (c *Crew) Components() []string {
	out := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		out[i] = t.Component
	}
	return out
}
