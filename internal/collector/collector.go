// Package collector runs the conversational profile collection state machine:
// AwaitingTrackSelection (only when the announcement offers two or more
// tracks) then Collecting until the recomputed completion ratio clears the
// drafting threshold.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

// transcriptWindow bounds how much history rides along on each extraction
// call. The profile status block carries the durable state, so a short
// window is enough for conversational continuity.
const transcriptWindow = 12

type Options struct {
	Model               string
	MaxTokens           int
	Temperature         float64
	CallTimeout         time.Duration
	CompletionThreshold float64
}

type Collector struct {
	llm    llm.Client
	opts   Options
	logger logger.Logger
}

func New(client llm.Client, opts Options, log logger.Logger) *Collector {
	if opts.CompletionThreshold <= 0 {
		opts.CompletionThreshold = 0.60
	}
	return &Collector{llm: client, opts: opts, logger: log}
}

// TurnResult is what one conversational turn produced. The session passed to
// HandleTurn is mutated in place (transcript, profile, collector state); the
// caller persists it.
//
// RepromptCode carries the error code behind a clarifying re-ask, e.g.
// AMBIGUOUS_TRACK_SELECTION. UnparsableFields lists fields the model offered
// values for that could not be parsed and were left absent. Neither fails
// the turn; the conversation recovers by asking again.
type TurnResult struct {
	Reply            string
	State            models.CollectorState
	CompletionRatio  float64
	SelectedTrack    string
	NextField        string
	ExtractedFields  []string
	UnparsableFields []string
	RepromptCode     string
}

// extractionResult is the shape the model declares. completion_percent is
// advisory only; the real ratio is recomputed from field presence.
type extractionResult struct {
	Fields            map[string]interface{} `json:"fields"`
	Reply             string                 `json:"reply"`
	NextField         string                 `json:"next_field"`
	CompletionPercent float64                `json:"completion_percent"`
}

// Begin initializes collection for a session entering ProfileCollection and
// returns the opening assistant message.
func (c *Collector) Begin(session *models.Session, requirements *models.RequirementsProfile) *TurnResult {
	if session.Profile == nil {
		session.Profile = models.NewCompanyProfile()
	}

	var reply string
	if requirements.HasMultipleTracks() && session.SelectedTrack == "" {
		session.CollectorState = models.CollectorAwaitingTrackSelection
		reply = presentTracks(requirements.Tracks)
	} else {
		session.CollectorState = models.CollectorCollecting
		reply = "Let's put together your application. To start, what is your company's name?"
	}

	c.appendAssistantTurn(session, reply)
	return &TurnResult{
		Reply:           reply,
		State:           session.CollectorState,
		CompletionRatio: session.Profile.CompletionRatio(),
		SelectedTrack:   session.SelectedTrack,
	}
}

// HandleTurn processes one user message according to the current collector
// state.
func (c *Collector) HandleTurn(ctx context.Context, session *models.Session, requirements *models.RequirementsProfile, userMessage string) (*TurnResult, error) {
	if session.Profile == nil {
		session.Profile = models.NewCompanyProfile()
	}
	if session.CollectorState == "" {
		c.Begin(session, requirements)
	}

	userTurn := models.Turn{
		ID:        uuid.New().String(),
		Role:      models.TurnRoleUser,
		Content:   userMessage,
		CreatedAt: time.Now(),
	}
	session.AppendTurn(userTurn)

	switch session.CollectorState {
	case models.CollectorAwaitingTrackSelection:
		return c.handleTrackSelection(session, requirements, userMessage), nil
	default:
		return c.handleCollectingTurn(ctx, session, userTurn, userMessage)
	}
}

func (c *Collector) handleTrackSelection(session *models.Session, requirements *models.RequirementsProfile, userMessage string) *TurnResult {
	track, ok := matchTrack(userMessage, requirements.Tracks)
	if !ok {
		// Ambiguous or no match: re-ask, never guess.
		serr := errors.NewAmbiguousTrackSelectionError(userMessage, len(requirements.Tracks))
		c.logger.Warn("track selection unresolved, re-asking", map[string]interface{}{
			"sessionId": session.ID,
			"errorCode": string(serr.Code),
			"details":   serr.Details,
		})
		reply := "Sorry, I couldn't tell which track you meant.\n" + presentTracks(requirements.Tracks)
		c.appendAssistantTurn(session, reply)
		return &TurnResult{
			Reply:           reply,
			State:           session.CollectorState,
			CompletionRatio: session.Profile.CompletionRatio(),
			RepromptCode:    string(serr.Code),
		}
	}

	session.SelectedTrack = track.Name
	session.CollectorState = models.CollectorCollecting
	reply := "Great, we'll apply under \"" + track.Name + "\". Now, what is your company's name?"
	c.appendAssistantTurn(session, reply)

	c.logger.Info("track selected", map[string]interface{}{
		"sessionId": session.ID,
		"track":     track.Name,
	})
	return &TurnResult{
		Reply:           reply,
		State:           session.CollectorState,
		CompletionRatio: session.Profile.CompletionRatio(),
		SelectedTrack:   track.Name,
		NextField:       models.FieldCompanyName,
	}
}

// matchTrack resolves a user reply against the track list by ordinal (1-based
// number anywhere leading the reply) or case-insensitive name match. A reply
// matching more than one track, or none, reports !ok.
func matchTrack(reply string, tracks []models.TaskTrack) (*models.TaskTrack, bool) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return nil, false
	}

	// Ordinal selection: "2", "2번", "2."
	digits := leadingDigits(trimmed)
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err == nil && n >= 1 && n <= len(tracks) {
			return &tracks[n-1], true
		}
		return nil, false
	}

	lower := strings.ToLower(trimmed)
	var matched *models.TaskTrack
	for i := range tracks {
		name := strings.ToLower(tracks[i].Name)
		if name == lower {
			return &tracks[i], true
		}
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			if matched != nil {
				return nil, false
			}
			matched = &tracks[i]
		}
	}
	if matched != nil {
		return matched, true
	}
	return nil, false
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func (c *Collector) handleCollectingTurn(ctx context.Context, session *models.Session, userTurn models.Turn, userMessage string) (*TurnResult, error) {
	req := llm.Request{
		Model:       c.opts.Model,
		System:      extractionSystemPrompt,
		User:        buildExtractionUserPrompt(session, c.recentTranscript(session), userMessage),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		JSONMode:    true,
		Timeout:     c.opts.CallTimeout,
	}

	reply, err := c.llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var extraction extractionResult
	raw, ok := llm.ExtractJSON(reply)
	if ok {
		ok = json.Unmarshal(raw, &extraction) == nil && extraction.Reply != ""
	}
	if !ok {
		// Malformed model response: single same-turn fallback. The raw text
		// becomes the assistant reply and no fields are merged.
		c.logger.Warn("extraction reply malformed, using raw text fallback", map[string]interface{}{
			"sessionId": session.ID,
		})
		c.appendAssistantTurn(session, reply)
		return &TurnResult{
			Reply:           reply,
			State:           session.CollectorState,
			CompletionRatio: session.Profile.CompletionRatio(),
			SelectedTrack:   session.SelectedTrack,
			NextField:       firstMissing(session.Profile),
		}, nil
	}

	merged, unparsable := c.mergeFields(session, userTurn.ID, extraction.Fields)
	ratio := session.Profile.CompletionRatio()

	assistantReply := extraction.Reply
	nextField := ""
	if ratio >= c.opts.CompletionThreshold {
		session.CollectorState = models.CollectorSufficientForDraft
	} else {
		session.CollectorState = models.CollectorCollecting
		nextField = c.chooseNextField(session.Profile, extraction.NextField)
		if len(merged) == 0 && nextField != "" && nextField == extraction.NextField {
			// The answer to an open-ended field was a question or refusal;
			// re-ask with concrete examples instead of recording garbage.
			assistantReply = reaskWithExamples(nextField)
		}
	}

	c.appendAssistantTurn(session, assistantReply)
	c.logger.Info("profile turn processed", map[string]interface{}{
		"sessionId":       session.ID,
		"extractedFields": merged,
		"completionRatio": ratio,
		"state":           session.CollectorState,
		"advisoryPercent": extraction.CompletionPercent,
	})

	return &TurnResult{
		Reply:            assistantReply,
		State:            session.CollectorState,
		CompletionRatio:  ratio,
		SelectedTrack:    session.SelectedTrack,
		NextField:        nextField,
		ExtractedFields:  merged,
		UnparsableFields: unparsable,
	}, nil
}

// mergeFields writes extracted values into the profile. Only fields absent
// from the profile are written; an already populated field is never
// overwritten in the same pass. Numeric fields are coerced to integers or
// left absent; the names of values that failed to parse are reported back so
// the turn result can surface them.
func (c *Collector) mergeFields(session *models.Session, turnID string, fields map[string]interface{}) (merged, unparsable []string) {
	allowed := map[string]bool{}
	for _, f := range models.RequiredProfileFields {
		allowed[f] = true
	}
	for _, f := range models.OptionalProfileFields[session.Tier] {
		allowed[f] = true
	}

	for field, value := range fields {
		if !allowed[field] || session.Profile.Has(field) {
			continue
		}

		str, ok := normalizeFieldValue(field, value)
		if !ok {
			perr := errors.NewUnparsableFieldError(field, fmt.Sprintf("%v", value))
			c.logger.Warn("field value unparsable, leaving absent", map[string]interface{}{
				"sessionId": session.ID,
				"field":     field,
				"errorCode": string(perr.Code),
				"details":   perr.Details,
			})
			unparsable = append(unparsable, field)
			continue
		}
		session.Profile.Set(field, str, turnID)
		merged = append(merged, field)
	}
	return merged, unparsable
}

// normalizeFieldValue renders an extracted value as the stored string.
// founding_year must parse to a plausible year and employee_count to a
// non-negative integer; anything else unparsable reports !ok.
func normalizeFieldValue(field string, value interface{}) (string, bool) {
	switch field {
	case models.FieldFoundingYear:
		year, ok := coerceInt(value)
		if !ok || year < 1900 || year > 2100 {
			return "", false
		}
		return strconv.Itoa(year), true
	case models.FieldEmployeeCount:
		count, ok := coerceInt(value)
		if !ok || count < 0 {
			return "", false
		}
		return strconv.Itoa(count), true
	default:
		switch v := value.(type) {
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return "", false
			}
			return trimmed, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		default:
			return "", false
		}
	}
}

// coerceInt extracts an integer from a JSON number or from free text such as
// "about 2019 I think".
func coerceInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		var runs []string
		current := ""
		for _, r := range v {
			if r >= '0' && r <= '9' {
				current += string(r)
			} else if current != "" {
				runs = append(runs, current)
				current = ""
			}
		}
		if current != "" {
			runs = append(runs, current)
		}
		if len(runs) != 1 {
			// Zero or several numbers: ambiguous, leave absent.
			return 0, false
		}
		n, err := strconv.Atoi(runs[0])
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// chooseNextField keeps the next question on a currently missing required
// field. The model's suggestion is honored only when it is actually missing.
func (c *Collector) chooseNextField(profile *models.CompanyProfile, suggested string) string {
	for _, field := range profile.MissingRequired() {
		if field == suggested {
			return suggested
		}
	}
	return firstMissing(profile)
}

func firstMissing(profile *models.CompanyProfile) string {
	missing := profile.MissingRequired()
	if len(missing) == 0 {
		return ""
	}
	return missing[0]
}

func (c *Collector) recentTranscript(session *models.Session) []models.Turn {
	transcript := session.Transcript
	if len(transcript) > transcriptWindow {
		transcript = transcript[len(transcript)-transcriptWindow:]
	}
	return transcript
}

func (c *Collector) appendAssistantTurn(session *models.Session, content string) {
	session.AppendTurn(models.Turn{
		ID:        uuid.New().String(),
		Role:      models.TurnRoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	})
}
