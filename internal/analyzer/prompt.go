package analyzer

import (
	"fmt"

	"grantpilot-workers/internal/models"
)

const analysisSystemPrompt = `You are an expert reviewer of Korean government grant announcements. Analyze the announcement and return a single JSON object with exactly these keys:
{
  "eligibility": "who may apply, as a concise paragraph",
  "scoring_criteria": [{"name": "...", "weight": 0, "detail": "..."}],
  "keywords": ["..."],
  "writing_strategy": "how an applicant should position their proposal",
  "tracks": [{"name": "...", "goal": "...", "description": "..."}]
}
Rules:
- "tracks" lists the distinct submission tracks only when the announcement offers more than one way to apply; otherwise return an empty array. Never invent tracks.
- Weights are integers summing roughly to 100 when the announcement discloses them, 0 otherwise.
- Keywords are the terms evaluators will scan for; 5 to 15 entries.
- Respond with the JSON object only.`

func buildAnalysisUserPrompt(ann *models.Announcement) string {
	summary := ann.Summary
	if summary == "" {
		summary = "(none)"
	}
	return fmt.Sprintf(`Announcement title: %s
Organization: %s
Target: %s
Funding scale: %s

Summary:
%s

Full text:
%s`, ann.Title, ann.Organization, ann.Target, ann.Scale, summary, ann.FullText)
}
