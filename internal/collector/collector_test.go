package collector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

func newTestCollector(client llm.Client) *Collector {
	return New(client, Options{
		Model:               "gpt-4o",
		CallTimeout:         time.Second,
		CompletionThreshold: 0.60,
	}, logger.NewNoOpLogger())
}

func newCollectingSession() *models.Session {
	return &models.Session{
		ID:             "sess-1",
		UserID:         "user-1",
		Tier:           models.TierStandard,
		Phase:          models.PhaseProfileCollection,
		CollectorState: models.CollectorCollecting,
		Profile:        models.NewCompanyProfile(),
	}
}

func threeTrackRequirements() *models.RequirementsProfile {
	return &models.RequirementsProfile{
		AnnouncementID: "ann-1",
		Source:         models.SourceKStartup,
		Eligibility:    "startups under 7 years",
		Tracks: []models.TaskTrack{
			{Name: "AI Track", Goal: "AI product commercialization"},
			{Name: "Manufacturing Track", Goal: "Smart factory adoption"},
			{Name: "Bio Track", Goal: "Biotech scale-up"},
		},
	}
}

func extractionReply(fields, reply, nextField string) string {
	return `{"fields": {` + fields + `}, "reply": "` + reply + `", "next_field": "` + nextField + `", "completion_percent": 40}`
}

// Scenario: three tracks means collection opens with track selection,
// presenting all three named options.
func TestBegin_MultipleTracksAwaitsSelection(t *testing.T) {
	c := newTestCollector(llm.NewMockClient())
	session := newCollectingSession()
	session.CollectorState = ""

	result := c.Begin(session, threeTrackRequirements())

	assert.Equal(t, models.CollectorAwaitingTrackSelection, result.State)
	assert.Contains(t, result.Reply, "1. AI Track")
	assert.Contains(t, result.Reply, "2. Manufacturing Track")
	assert.Contains(t, result.Reply, "3. Bio Track")
	assert.Equal(t, 3, strings.Count(result.Reply, "Track ("))
}

func TestBegin_SingleTrackSkipsSelection(t *testing.T) {
	c := newTestCollector(llm.NewMockClient())
	session := newCollectingSession()
	session.CollectorState = ""

	requirements := &models.RequirementsProfile{
		Tracks: []models.TaskTrack{{Name: "Only Track"}},
	}
	result := c.Begin(session, requirements)
	assert.Equal(t, models.CollectorCollecting, result.State)
}

// Ordinal "2" and the track's name resolve to the same track.
func TestTrackSelection_OrdinalAndNameEquivalent(t *testing.T) {
	requirements := threeTrackRequirements()

	for _, reply := range []string{"2", "2번", "Manufacturing Track", "manufacturing track", "Manufacturing"} {
		c := newTestCollector(llm.NewMockClient())
		session := newCollectingSession()
		session.CollectorState = models.CollectorAwaitingTrackSelection

		result, err := c.HandleTurn(context.Background(), session, requirements, reply)
		require.NoError(t, err)
		assert.Equal(t, "Manufacturing Track", result.SelectedTrack, "reply %q", reply)
		assert.Equal(t, models.CollectorCollecting, result.State)
	}
}

func TestTrackSelection_AmbiguousReasks(t *testing.T) {
	c := newTestCollector(llm.NewMockClient())
	session := newCollectingSession()
	session.CollectorState = models.CollectorAwaitingTrackSelection

	// "track" substring-matches every option.
	result, err := c.HandleTurn(context.Background(), session, threeTrackRequirements(), "track")
	require.NoError(t, err)
	assert.Equal(t, models.CollectorAwaitingTrackSelection, result.State)
	assert.Empty(t, result.SelectedTrack)
	assert.Contains(t, result.Reply, "1. AI Track")
	assert.Equal(t, string(errors.ErrCodeAmbiguousTrackSelection), result.RepromptCode)
}

func TestTrackSelection_OutOfRangeOrdinalReasks(t *testing.T) {
	c := newTestCollector(llm.NewMockClient())
	session := newCollectingSession()
	session.CollectorState = models.CollectorAwaitingTrackSelection

	result, err := c.HandleTurn(context.Background(), session, threeTrackRequirements(), "7")
	require.NoError(t, err)
	assert.Equal(t, models.CollectorAwaitingTrackSelection, result.State)
	assert.Empty(t, result.SelectedTrack)
}

func TestHandleTurn_ExtractsAndRecomputesRatio(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"company_name": "Acme Robotics", "industry": "robotics"`,
		"Thanks! What year was Acme founded?", "founding_year")})
	c := newTestCollector(mock)
	session := newCollectingSession()

	result, err := c.HandleTurn(context.Background(), session, nil, "We are Acme Robotics, a robotics company.")
	require.NoError(t, err)

	assert.InDelta(t, 0.4, result.CompletionRatio, 1e-9)
	assert.Equal(t, models.CollectorCollecting, result.State)
	assert.Equal(t, models.FieldFoundingYear, result.NextField)
	assert.ElementsMatch(t, []string{"company_name", "industry"}, result.ExtractedFields)
	assert.Equal(t, "Acme Robotics", session.Profile.Get(models.FieldCompanyName))
}

// Crossing 3 of 5 required fields reaches the 0.60 threshold.
func TestHandleTurn_ThresholdTransitionsToSufficient(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"founding_year": 2021`, "Great, noted.", "main_products")})
	c := newTestCollector(mock)
	session := newCollectingSession()
	session.Profile.Set(models.FieldCompanyName, "Acme", "t-1")
	session.Profile.Set(models.FieldIndustry, "robotics", "t-1")

	result, err := c.HandleTurn(context.Background(), session, nil, "Founded in 2021.")
	require.NoError(t, err)

	assert.InDelta(t, 0.6, result.CompletionRatio, 1e-9)
	assert.Equal(t, models.CollectorSufficientForDraft, result.State)
	assert.Empty(t, result.NextField)
}

// An out-of-range founding year is left absent and reported back on the
// turn result instead of being recorded.
func TestHandleTurn_UnparsableFieldSurfaced(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"company_name": "Acme Robotics", "founding_year": 1492`,
		"Thanks! What year was Acme founded?", "founding_year")})
	c := newTestCollector(mock)
	session := newCollectingSession()

	result, err := c.HandleTurn(context.Background(), session, nil, "Acme Robotics, founded ages ago.")
	require.NoError(t, err)

	assert.Equal(t, []string{"company_name"}, result.ExtractedFields)
	assert.Equal(t, []string{"founding_year"}, result.UnparsableFields)
	assert.False(t, session.Profile.Has(models.FieldFoundingYear))
}

// A populated field is never overwritten by a later extraction pass.
func TestHandleTurn_MergeNeverOverwrites(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"company_name": "Different Name", "industry": "logistics"`,
		"Noted.", "founding_year")})
	c := newTestCollector(mock)
	session := newCollectingSession()
	session.Profile.Set(models.FieldCompanyName, "Acme Robotics", "t-1")

	result, err := c.HandleTurn(context.Background(), session, nil, "Actually we do logistics.")
	require.NoError(t, err)

	assert.Equal(t, "Acme Robotics", session.Profile.Get(models.FieldCompanyName))
	assert.Equal(t, []string{"industry"}, result.ExtractedFields)
}

// Completion ratio never decreases across turns.
func TestHandleTurn_RatioMonotonic(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Text: extractionReply(`"company_name": "Acme"`, "And your industry?", "industry")},
		llm.MockReply{Text: extractionReply(``, "Could you share your industry?", "industry")},
		llm.MockReply{Text: extractionReply(`"industry": "robotics"`, "Thanks!", "founding_year")},
	)
	c := newTestCollector(mock)
	session := newCollectingSession()

	prev := 0.0
	for _, msg := range []string{"We are Acme.", "Why do you ask?", "Robotics."} {
		result, err := c.HandleTurn(context.Background(), session, nil, msg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.CompletionRatio, prev)
		prev = result.CompletionRatio
	}
}

// The next question always targets a missing required field, even when the
// model suggests one that is already filled.
func TestHandleTurn_NextFieldNeverAlreadyFilled(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"industry": "robotics"`, "And your company name?", "company_name")})
	c := newTestCollector(mock)
	session := newCollectingSession()
	session.Profile.Set(models.FieldCompanyName, "Acme", "t-1")

	result, err := c.HandleTurn(context.Background(), session, nil, "Robotics.")
	require.NoError(t, err)

	assert.NotEqual(t, models.FieldCompanyName, result.NextField)
	assert.Equal(t, models.FieldFoundingYear, result.NextField)
}

// Scenario: "about 2019 I think" records integer 2019, never the literal string.
func TestHandleTurn_FoundingYearCoercion(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"founding_year": "about 2019 I think"`, "Noted.", "main_products")})
	c := newTestCollector(mock)
	session := newCollectingSession()

	_, err := c.HandleTurn(context.Background(), session, nil, "about 2019 I think")
	require.NoError(t, err)
	assert.Equal(t, "2019", session.Profile.Get(models.FieldFoundingYear))
}

func TestNormalizeFieldValue_UnparsableLeftAbsent(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"two numbers ambiguous", models.FieldFoundingYear, "2018 or 2019"},
		{"no number", models.FieldFoundingYear, "a while ago"},
		{"implausible year", models.FieldFoundingYear, "1776"},
		{"negative count", models.FieldEmployeeCount, float64(-3)},
		{"fractional count", models.FieldEmployeeCount, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := normalizeFieldValue(tt.field, tt.value)
			assert.False(t, ok)
		})
	}

	value, ok := normalizeFieldValue(models.FieldEmployeeCount, "we have 12 people")
	require.True(t, ok)
	assert.Equal(t, "12", value)
}

// Malformed model output falls back to the raw text as the reply, merging
// nothing, instead of aborting the conversation.
func TestHandleTurn_MalformedResponseFallback(t *testing.T) {
	rawReply := "I'm sorry, I can't produce JSON right now, but tell me more!"
	mock := llm.NewMockClient(llm.MockReply{Text: rawReply})
	c := newTestCollector(mock)
	session := newCollectingSession()

	result, err := c.HandleTurn(context.Background(), session, nil, "We are Acme.")
	require.NoError(t, err)

	assert.Equal(t, rawReply, result.Reply)
	assert.Empty(t, result.ExtractedFields)
	assert.Equal(t, models.CollectorCollecting, result.State)
	assert.False(t, session.Profile.Has(models.FieldCompanyName))
}

// A refusal to an open-ended question triggers an example-laden re-ask.
func TestHandleTurn_RefusalReasksWithExamples(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		``, "What do you mean by goal?", "target_goal")})
	c := newTestCollector(mock)
	session := newCollectingSession()
	session.Profile.Set(models.FieldCompanyName, "Acme", "t-1")
	session.Profile.Set(models.FieldIndustry, "robotics", "t-1")
	// target_goal is the first missing required field after these plus
	// founding_year and main_products being answered.
	session.Profile.Set(models.FieldFoundingYear, "2021", "t-1")
	session.Profile.Set(models.FieldMainProducts, "robot arms", "t-1")

	// 4/5 filled is already past the threshold, so force a lower one to stay
	// in Collecting for this test.
	c.opts.CompletionThreshold = 1.0

	result, err := c.HandleTurn(context.Background(), session, nil, "Why does that matter?")
	require.NoError(t, err)

	assert.Contains(t, result.Reply, "For example")
	assert.Equal(t, models.FieldTargetGoal, result.NextField)
	assert.False(t, session.Profile.Has(models.FieldTargetGoal))
}

// Optional fields outside the session tier are ignored.
func TestMergeFields_TierGatesOptionalFields(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"technology": "patented gripper", "annual_revenue": "500M KRW"`,
		"Noted.", "company_name")})
	c := newTestCollector(mock)
	session := newCollectingSession() // standard tier

	result, err := c.HandleTurn(context.Background(), session, nil, "We hold a gripper patent, revenue 500M KRW.")
	require.NoError(t, err)

	// technology is premium-only; annual_revenue is allowed on standard.
	assert.Equal(t, []string{"annual_revenue"}, result.ExtractedFields)
	assert.False(t, session.Profile.Has(models.FieldTechnology))
}

func TestHandleTurn_TranscriptRecordsBothRoles(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Text: extractionReply(
		`"company_name": "Acme"`, "Thanks! And the industry?", "industry")})
	c := newTestCollector(mock)
	session := newCollectingSession()

	_, err := c.HandleTurn(context.Background(), session, nil, "We are Acme.")
	require.NoError(t, err)

	require.Len(t, session.Transcript, 2)
	assert.Equal(t, models.TurnRoleUser, session.Transcript[0].Role)
	assert.Equal(t, models.TurnRoleAssistant, session.Transcript[1].Role)

	// Field provenance points at the user turn that produced it.
	assert.Equal(t, session.Transcript[0].ID, session.Profile.Fields[models.FieldCompanyName].TurnID)
}
