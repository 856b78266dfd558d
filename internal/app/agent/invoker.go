// Package agent wraps a single logical call to a model capability: render
// the prompt, call the transport, validate the result, and retry with a
// corrective instruction when the output is invalid.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/app/prompt"
	"github.com/mentatlabs/mentat/internal/app/schema"
	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

// kindTemperature tunes sampling per capability: classification and review
// run cold, user-facing generation does not.
var kindTemperature = map[schema.AgentKind]float32{
	schema.KindIntentDetection:    0.2,
	schema.KindQueryFormulation:   0.3,
	schema.KindPersonaSynthesis:   0.3,
	schema.KindContextAggregation: 0.3,
	schema.KindCoachingResponse:   0.7,
	schema.KindFeedbackQA:         0.2,
}

const defaultMaxTokens = 8192

// Invoker executes validated agent calls against a model transport.
type Invoker struct {
	model   domain.ModelClient
	prompts *prompt.Registry
	timeout time.Duration
}

// NewInvoker builds an Invoker. timeout bounds each individual model call.
func NewInvoker(model domain.ModelClient, prompts *prompt.Registry, timeout time.Duration) *Invoker {
	return &Invoker{
		model:   model,
		prompts: prompts,
		timeout: timeout,
	}
}

// Invoke renders the prompt for kind from vars, calls the model, and
// validates the output. Invalid attempts are retried up to maxAttempts total,
// each retry carrying the previous attempt's field errors as a corrective
// instruction. Repairable outputs are repaired and returned as Valid.
//
// On exhausting attempts the last outcome is returned together with an error
// wrapping domain.ErrTransport or domain.ErrValidation; callers must treat
// that as a hard failure for the action, never substitute default content.
func (inv *Invoker) Invoke(
	ctx context.Context,
	kind schema.AgentKind,
	vars map[string]string,
	maxAttempts int,
) (any, schema.Outcome, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	rendered, err := inv.prompts.Render(string(kind), vars)
	if err != nil {
		return nil, schema.Outcome{Status: schema.StatusInvalid}, fmt.Errorf("rendering prompt for %s: %w", kind, err)
	}

	log := observability.FromContext(ctx).With(zap.String("agent_kind", string(kind)))

	var (
		lastOutcome schema.Outcome
		lastErr     error
		corrective  string
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// A dead context fails every remaining attempt; stop instead of
		// burning the retry budget.
		if ctxErr := ctx.Err(); ctxErr != nil {
			if lastErr == nil {
				lastOutcome = schema.Outcome{
					Status: schema.StatusInvalid,
					Errors: []schema.FieldError{{Field: "$", Message: ctxErr.Error()}},
				}
				lastErr = fmt.Errorf("%w: %s: %v", domain.ErrTransport, kind, ctxErr)
			}
			log.Warn("context done, abandoning remaining attempts",
				zap.Int("attempt", attempt),
				zap.Error(ctxErr))
			return nil, lastOutcome, lastErr
		}

		start := time.Now()

		raw, transportErr := inv.complete(ctx, kind, rendered, corrective)
		latency := time.Since(start)

		if transportErr != nil {
			// A transport failure or timeout counts as an invalid attempt
			// and goes through the same retry budget.
			lastOutcome = schema.Outcome{
				Status: schema.StatusInvalid,
				Errors: []schema.FieldError{{Field: "$", Message: transportErr.Error()}},
			}
			lastErr = fmt.Errorf("%w: %s: %v", domain.ErrTransport, kind, transportErr)
			log.Warn("agent attempt failed",
				zap.Int("attempt", attempt),
				zap.String("outcome", "transport_error"),
				zap.Duration("latency", latency),
				zap.Error(transportErr))
			corrective = "your previous call failed to complete; answer again following the required JSON format exactly"
			continue
		}

		output, outcome := schema.Validate(kind, []byte(raw))
		log.Info("agent attempt",
			zap.Int("attempt", attempt),
			zap.String("outcome", string(outcome.Status)),
			zap.Duration("latency", latency))

		switch outcome.Status {
		case schema.StatusValid:
			return output, outcome, nil
		case schema.StatusRepairable:
			log.Info("agent output repaired", zap.String("repairs", outcome.Summary()))
			return output, schema.Outcome{Status: schema.StatusValid}, nil
		default:
			lastOutcome = outcome
			lastErr = fmt.Errorf("%w: %s: %s", domain.ErrValidation, kind, outcome.Summary())
			corrective = "your previous output was invalid because: " + outcome.Summary()
		}
	}

	log.Error("agent attempts exhausted",
		zap.Int("max_attempts", maxAttempts),
		zap.String("errors", lastOutcome.Summary()))
	return nil, lastOutcome, lastErr
}

// complete performs one bounded transport call, appending the corrective
// instruction from the previous failed attempt when present.
func (inv *Invoker) complete(ctx context.Context, kind schema.AgentKind, p prompt.Prompt, corrective string) (string, error) {
	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	user := p.User
	if corrective != "" {
		user += "\n\nIMPORTANT: " + corrective
	}

	return inv.model.Complete(callCtx, domain.CompletionRequest{
		System:      p.System,
		User:        user,
		Temperature: kindTemperature[kind],
		MaxTokens:   defaultMaxTokens,
		JSONOutput:  true,
	})
}
