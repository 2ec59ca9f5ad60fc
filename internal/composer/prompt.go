package composer

import (
	"fmt"
	"strings"

	"grantpilot-workers/internal/models"
)

// styleBriefs describe the rhetorical angle for each draft variant. The
// aggressive and conservative variants blend the base angles.
var styleBriefs = map[string]string{
	models.StyleData:         "Lead with quantified evidence: metrics, growth figures, market sizing. Every claim gets a number.",
	models.StyleStory:        "Lead with the founding narrative and the problem the team lived through. Numbers support the story, not the reverse.",
	models.StyleBalanced:     "Balance quantified evidence with narrative. Alternate proof points and motivation evenly.",
	models.StyleAggressive:   "Combine hard data with a bold narrative: innovation-forward, confident claims about market disruption backed by figures.",
	models.StyleConservative: "Combine a balanced tone with data emphasis: trust-forward, steady execution, risk mitigation, proven fundamentals.",
}

const compositionSystemPrompt = `You are a professional grant application writer for Korean government support programs. Write a complete application draft in Korean following the style brief. Return a single JSON object:
{
  "sections": [{"title": "...", "content": "..."}]
}
Rules:
- Cover: business overview, problem and necessity, solution and differentiation, market and commercialization plan, team capability, funding usage plan.
- Mirror the announcement's scoring criteria and keywords where the company's facts support them. Never fabricate facts absent from the company profile.
- Aim for roughly %d characters in total.
- Respond with the JSON object only.`

func buildCompositionUserPrompt(requirements *models.RequirementsProfile, profile *models.CompanyProfile, track, style string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Style brief: %s\n\n", styleBriefs[style])

	if track != "" {
		fmt.Fprintf(&sb, "Selected track: %s\n\n", track)
	}

	sb.WriteString("Announcement requirements:\n")
	fmt.Fprintf(&sb, "- Eligibility: %s\n", requirements.Eligibility)
	for _, criterion := range requirements.ScoringCriteria {
		if criterion.Weight > 0 {
			fmt.Fprintf(&sb, "- Scoring: %s (%d%%)\n", criterion.Name, criterion.Weight)
		} else {
			fmt.Fprintf(&sb, "- Scoring: %s\n", criterion.Name)
		}
	}
	if len(requirements.Keywords) > 0 {
		fmt.Fprintf(&sb, "- Keywords: %s\n", strings.Join(requirements.Keywords, ", "))
	}
	if requirements.WritingStrategy != "" {
		fmt.Fprintf(&sb, "- Strategy: %s\n", requirements.WritingStrategy)
	}

	sb.WriteString("\nCompany profile:\n")
	for _, field := range models.RequiredProfileFields {
		if profile.Has(field) {
			fmt.Fprintf(&sb, "- %s: %s\n", field, profile.Get(field))
		}
	}
	for field, fv := range profile.Fields {
		if !isRequiredField(field) && fv.Value != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", field, fv.Value)
		}
	}

	return sb.String()
}

func isRequiredField(field string) bool {
	for _, f := range models.RequiredProfileFields {
		if f == field {
			return true
		}
	}
	return false
}
