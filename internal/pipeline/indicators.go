package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var reWhitespace = regexp.MustCompile(`\s+`)

var (
	financialKeywords = []string{"revenue", "profit", "cash", "earnings", "debt", "assets"}
	riskKeywords      = []string{"debt", "loss", "decline", "risk", "uncertainty", "challenge", "competition"}
)

// InvestmentIndicators summarises how much financial substance a document has.
type InvestmentIndicators struct {
	DocumentLength        int `json:"document_length"`
	KeySectionsIdentified int `json:"key_sections_identified"`
}

// RiskIndicators records which risk keywords a document mentions.
type RiskIndicators struct {
	RiskIndicatorsFound      int      `json:"risk_indicators_found"`
	DocumentSectionsAnalyzed int      `json:"document_sections_analyzed"`
	Keywords                 []string `json:"keywords"`
}

// AnalyzeInvestment normalises whitespace per line, drops empty lines, and
// counts lines mentioning a financial keyword. Length is in characters.
func AnalyzeInvestment(text string) InvestmentIndicators {
	var cleaned []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(reWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	sections := 0
	for _, line := range cleaned {
		if containsAny(strings.ToLower(line), financialKeywords) != "" {
			sections++
		}
	}

	return InvestmentIndicators{
		DocumentLength:        utf8.RuneCountInString(strings.Join(cleaned, "\n")),
		KeySectionsIdentified: sections,
	}
}

// AnalyzeRisk counts distinct risk keywords, taking at most one keyword
// (the first in keyword order) per line. Every line counts as a section.
func AnalyzeRisk(text string) RiskIndicators {
	lines := strings.Split(strings.ToLower(strings.TrimSpace(text)), "\n")

	found := make(map[string]bool)
	var keywords []string
	for _, line := range lines {
		kw := containsAny(line, riskKeywords)
		if kw != "" && !found[kw] {
			found[kw] = true
			keywords = append(keywords, kw)
		}
	}
	if keywords == nil {
		keywords = []string{}
	}

	return RiskIndicators{
		RiskIndicatorsFound:      len(keywords),
		DocumentSectionsAnalyzed: len(lines),
		Keywords:                 keywords,
	}
}

func (i InvestmentIndicators) String() string {
	return fmt.Sprintf("Investment Analysis Completed:\n- Document processed: %d characters\n- Key financial sections found: %d\n- Status: Ready for detailed investment analysis",
		i.DocumentLength, i.KeySectionsIdentified)
}

func (r RiskIndicators) String() string {
	return fmt.Sprintf("Risk Assessment Completed:\n- Risk indicators identified: %d\n- Document sections analyzed: %d\n- Coverage: Comprehensive risk analysis ready",
		r.RiskIndicatorsFound, r.DocumentSectionsAnalyzed)
}

func containsAny(line string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(line, kw) {
			return kw
		}
	}
	return ""
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
