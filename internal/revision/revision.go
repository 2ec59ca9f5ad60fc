// Package revision applies a natural-language change request to one draft,
// consuming a revision unit before generation and refunding it if generation
// fails afterwards.
package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

const revisionSystemPrompt = `You are revising a grant application draft per the user's change request. Return the complete revised document, not a diff, as a single JSON object:
{
  "sections": [{"title": "...", "content": "..."}]
}
Rules:
- Apply the requested change while keeping everything else intact.
- Keep the same section structure unless the change request demands otherwise.
- Respond with the JSON object only.`

// Meter is the ledger surface the engine needs: decrement before generation,
// compensate after a failed one.
type Meter interface {
	ConsumeRevision(ctx context.Context, sessionID string) (int, error)
	RefundRevision(ctx context.Context, sessionID string) error
}

// DraftAccess reads and writes the target draft.
type DraftAccess interface {
	FindBySessionAndStyle(ctx context.Context, sessionID, style string) (*models.Draft, error)
	Update(ctx context.Context, draft *models.Draft) error
}

type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	CallTimeout time.Duration
}

type Engine struct {
	llm    llm.Client
	meter  Meter
	drafts DraftAccess
	opts   Options
	logger logger.Logger
}

func New(client llm.Client, meter Meter, drafts DraftAccess, opts Options, log logger.Logger) *Engine {
	return &Engine{llm: client, meter: meter, drafts: drafts, opts: opts, logger: log}
}

// Result is one applied revision.
type Result struct {
	Draft              *models.Draft
	RemainingAllotment int
}

// RequestRevision consumes one revision unit, regenerates the draft's
// content per the change request, appends the revision log entry and
// persists the replacement. Other drafts of the session are untouched. A
// generation failure after the consume refunds the unit.
func (e *Engine) RequestRevision(ctx context.Context, sessionID, draftStyle, changeRequest string) (*Result, error) {
	draft, err := e.drafts.FindBySessionAndStyle(ctx, sessionID, draftStyle)
	if err != nil {
		return nil, err
	}

	remaining, err := e.meter.ConsumeRevision(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	newSections, err := e.generate(ctx, draft, changeRequest)
	if err != nil {
		if refundErr := e.meter.RefundRevision(ctx, sessionID); refundErr != nil {
			e.logger.Error("revision refund failed", map[string]interface{}{
				"sessionId": sessionID,
				"style":     draftStyle,
				"error":     refundErr.Error(),
			})
		} else {
			remaining++
		}
		return nil, err
	}

	priorContent := draft.FullText()
	draft.Sections = newSections
	draft.PlainText = ""
	draft.Recount()
	draft.RevisionLog = append(draft.RevisionLog, models.RevisionEntry{
		RequestedChange: changeRequest,
		PriorContent:    priorContent,
		NewContent:      draft.FullText(),
		AppliedAt:       time.Now(),
	})

	if err := e.drafts.Update(ctx, draft); err != nil {
		if refundErr := e.meter.RefundRevision(ctx, sessionID); refundErr != nil {
			e.logger.Error("revision refund failed", map[string]interface{}{
				"sessionId": sessionID,
				"style":     draftStyle,
				"error":     refundErr.Error(),
			})
		}
		return nil, err
	}

	e.logger.Info("revision applied", map[string]interface{}{
		"sessionId": sessionID,
		"style":     draftStyle,
		"remaining": remaining,
		"revisions": len(draft.RevisionLog),
	})
	return &Result{Draft: draft, RemainingAllotment: remaining}, nil
}

func (e *Engine) generate(ctx context.Context, draft *models.Draft, changeRequest string) ([]models.Section, error) {
	var sb strings.Builder
	sb.WriteString("Current draft:\n")
	sb.WriteString(draft.FullText())
	sb.WriteString("\n\nChange request:\n")
	sb.WriteString(changeRequest)

	reply, err := e.llm.Complete(ctx, llm.Request{
		Model:       e.opts.Model,
		System:      revisionSystemPrompt,
		User:        sb.String(),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		JSONMode:    true,
		Timeout:     e.opts.CallTimeout,
	})
	if err != nil {
		return nil, errors.NewGenerationFailedError(draft.Style, err)
	}

	raw, ok := llm.ExtractJSON(reply)
	if !ok {
		return nil, errors.NewGenerationFailedError(draft.Style, fmt.Errorf("no JSON object in revision reply"))
	}
	var decoded struct {
		Sections []models.Section `json:"sections"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || len(decoded.Sections) == 0 {
		return nil, errors.NewGenerationFailedError(draft.Style, fmt.Errorf("revision reply has no sections"))
	}
	return decoded.Sections, nil
}
