package pipeline

import (
	"fmt"
	"strings"
)

const maxContextChars = 4000

func fillQuery(s, query string) string {
	return strings.ReplaceAll(s, "{query}", query)
}

func systemPrompt(agent Agent, query string, crew *Crew) string {
	var b strings.Builder
	b.WriteString(agent.Role)
	fmt.Fprintf(&b, "\nGoal: %s", fillQuery(agent.Goal, query))
	if agent.Backstory != "" {
		fmt.Fprintf(&b, "\nBackstory: %s", strings.TrimSpace(agent.Backstory))
	}
	if agent.AllowDelegation {
		var others []string
		for _, a := range crew.Agents {
			if a.Key != agent.Key {
				others = append(others, a.Role)
			}
		}
		if len(others) > 0 {
			fmt.Fprintf(&b, "\nYou may build on the findings of your colleagues: %s.", strings.Join(others, ", "))
		}
	}
	b.WriteString("\nBase every statement on the provided document and tool results. Never invent figures.")
	return b.String()
}

type toolOutput struct {
	name   string
	output string
}

func taskPrompt(task Task, query string, tools []toolOutput, previous []StageOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", strings.TrimSpace(fillQuery(task.Description, query)))
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&b, "Expected output:\n%s\n\n", strings.TrimSpace(task.ExpectedOutput))
	}
	fmt.Fprintf(&b, "User query: %s\n", query)

	if len(tools) > 0 {
		b.WriteString("\nTool results:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "### %s\n%s\n", t.name, t.output)
		}
	}

	if len(previous) > 0 {
		b.WriteString("\nFindings from earlier stages:\n")
		for _, s := range previous {
			fmt.Fprintf(&b, "### %s (%s)\n%s\n", s.Role, s.Task, truncateRunes(s.Output, maxContextChars))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
