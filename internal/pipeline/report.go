package pipeline

// StageOutput is one agent's answer to one task.
type StageOutput struct {
	Task     string `json:"task"`
	Agent    string `json:"agent"`
	Role     string `json:"role"`
	Output   string `json:"output"`
	Attempts int    `json:"attempts"`
}

type Report struct {
	Query         string
	Stages        []StageOutput
	Components    []string
	Investment    InvestmentIndicators
	Risk          RiskIndicators
	WebSearchUsed bool
	Provider      string
	Model         string
}

// Final is the output of the last stage, which sees every earlier finding.
func (r *Report) Final() string {
	if len(r.Stages) == 0 {
		return ""
	}
	return r.Stages[len(r.Stages)-1].Output
}

// DetailedResults renders the report as the JSON document stored on a
// completed analysis.
func (r *Report) DetailedResults() map[string]any {
	stages := make(map[string]any, len(r.Stages))
	for _, s := range r.Stages {
		stages[s.Task] = map[string]any{
			"agent":    s.Role,
			"output":   s.Output,
			"attempts": s.Attempts,
		}
	}
	return map[string]any{
		"analysis_result":     r.Final(),
		"components_analyzed": r.Components,
		"stages":              stages,
		"investment_indicators": map[string]any{
			"document_length":         r.Investment.DocumentLength,
			"key_sections_identified": r.Investment.KeySectionsIdentified,
		},
		"risk_indicators": map[string]any{
			"risk_indicators_found":      r.Risk.RiskIndicatorsFound,
			"document_sections_analyzed": r.Risk.DocumentSectionsAnalyzed,
			"keywords":                   r.Risk.Keywords,
		},
		"web_search_used": r.WebSearchUsed,
		"provider":        r.Provider,
		"model":           r.Model,
		"disclaimer":      Disclaimer,
	}
}
