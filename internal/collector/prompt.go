package collector

import (
	"fmt"
	"strings"

	"grantpilot-workers/internal/models"
)

const extractionSystemPrompt = `You are a warm, efficient assistant interviewing a startup founder to fill in their company profile for a government grant application. From the user's latest message, extract any profile field values they stated. Then write a short empathetic reply in the user's language that acknowledges what they shared and asks exactly one next question.

Return a single JSON object:
{
  "fields": {"<field_name>": "<extracted value>"},
  "reply": "<your conversational reply>",
  "next_field": "<field name you are asking about next>",
  "completion_percent": 0
}
Rules:
- Only include fields the user actually stated. Never guess or fabricate.
- Never re-ask a field marked done in the profile status below.
- founding_year and employee_count must be plain integers when extractable.
- Respond with the JSON object only.`

// Human-readable labels for question phrasing and track presentation.
var fieldLabels = map[string]string{
	models.FieldCompanyName:        "company name",
	models.FieldIndustry:           "industry",
	models.FieldFoundingYear:       "founding year",
	models.FieldMainProducts:       "main products or services",
	models.FieldTargetGoal:         "goal for this grant",
	models.FieldRegistrationNumber: "business registration number",
	models.FieldAnnualRevenue:      "annual revenue",
	models.FieldEmployeeCount:      "employee count",
	models.FieldTechnology:         "core technology or patents",
	models.FieldSupportHistory:     "past government support history",
	models.FieldAdditionalInfo:     "anything else worth mentioning",
}

// Concrete example prompts used when the user answers an open-ended question
// with a question or refusal. Re-asking with examples beats recording garbage.
var fieldExamples = map[string]string{
	models.FieldCompanyName:  `For example: "We are Acme Robotics" or just the registered company name.`,
	models.FieldIndustry:     `For example: "AI-based logistics", "biotech", "food manufacturing".`,
	models.FieldFoundingYear: `For example: "founded in 2021" or just "2021".`,
	models.FieldMainProducts: `For example: "a warehouse robot arm and its fleet software" or "meal-kit subscriptions for offices".`,
	models.FieldTargetGoal:   `For example: "hire two engineers and finish our prototype", "fund overseas marketing", "build a pilot production line".`,
}

func buildExtractionUserPrompt(session *models.Session, transcriptWindow []models.Turn, userMessage string) string {
	var sb strings.Builder

	sb.WriteString("Profile status:\n")
	for _, field := range models.RequiredProfileFields {
		mark := "missing"
		if session.Profile.Has(field) {
			mark = "done: " + session.Profile.Get(field)
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", field, fieldLabels[field], mark)
	}
	for _, field := range models.OptionalProfileFields[session.Tier] {
		mark := "missing (optional)"
		if session.Profile.Has(field) {
			mark = "done: " + session.Profile.Get(field)
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", field, fieldLabels[field], mark)
	}

	if len(transcriptWindow) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, turn := range transcriptWindow {
			fmt.Fprintf(&sb, "[%s] %s\n", turn.Role, turn.Content)
		}
	}

	fmt.Fprintf(&sb, "\nLatest user message:\n%s\n", userMessage)
	return sb.String()
}

// presentTracks renders the track selection question: every track with its
// name and one-line goal, numbered for ordinal replies.
func presentTracks(tracks []models.TaskTrack) string {
	var sb strings.Builder
	sb.WriteString("This announcement accepts applications in several tracks. Which one fits your company?\n")
	for i, track := range tracks {
		fmt.Fprintf(&sb, "%d. %s", i+1, track.Name)
		if track.Goal != "" {
			fmt.Fprintf(&sb, " (%s)", track.Goal)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Reply with the number or the track name.")
	return sb.String()
}

func reaskWithExamples(field string) string {
	label := fieldLabels[field]
	if label == "" {
		label = field
	}
	msg := fmt.Sprintf("No problem, let me make that more concrete. Could you tell me your %s?", label)
	if example, ok := fieldExamples[field]; ok {
		msg += " " + example
	}
	return msg
}
