// Package router determines the user's intent for a turn and the ordered
// actions needed to satisfy it.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/app/agent"
	"github.com/mentatlabs/mentat/internal/app/schema"
	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

// Result is the router's verdict for one turn. The digest fields come from
// the orchestration output and feed the assembler.
type Result struct {
	Intent              domain.IntentResult
	Plan                domain.ActionPlan
	ConversationSummary string
	ResponseOutline     string
	// Dropped holds proposed actions removed for a missing required
	// directive. They stay pending on the session until a later plan
	// carries the same action kind.
	Dropped domain.ActionPlan
}

// Router classifies intent via the intent_detection agent and derives the
// action plan, with a universal fallback path that guarantees a user-visible
// response even when the classifier is uncertain or broken.
type Router struct {
	invoker       *agent.Invoker
	threshold     int
	maxAttempts   int
	historyWindow int
}

// New builds a Router. threshold is the confidence floor below which the
// turn is downgraded to a direct reply.
func New(invoker *agent.Invoker, threshold, maxAttempts, historyWindow int) *Router {
	return &Router{
		invoker:       invoker,
		threshold:     threshold,
		maxAttempts:   maxAttempts,
		historyWindow: historyWindow,
	}
}

// Route invokes the classifier over the new message plus a bounded history
// window. Classification failure or low confidence takes the fallback path;
// planned actions missing a required directive are dropped and logged as
// router inconsistencies.
func (r *Router) Route(ctx context.Context, userMessage string, history []*domain.Message) Result {
	log := observability.FromContext(ctx)

	vars := map[string]string{
		"user_message": userMessage,
		"history":      FormatHistory(history, r.historyWindow),
		"intents":      intentCatalog(),
		"actions":      actionCatalog(),
	}

	raw, _, err := r.invoker.Invoke(ctx, schema.KindIntentDetection, vars, r.maxAttempts)
	if err != nil {
		// The pipeline must still answer. An unusable classifier downgrades
		// the turn rather than failing it.
		log.Warn("intent detection unusable, taking fallback path", zap.Error(err))
		return fallbackResult("classifier unavailable")
	}

	out := raw.(schema.IntentOutput)

	intent := domain.IntentResult{
		Intent:     domain.Intent(out.Intent),
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
	}

	if out.Confidence < r.threshold {
		log.Info("confidence below threshold, taking fallback path",
			zap.Int("confidence", out.Confidence),
			zap.Int("threshold", r.threshold))
		res := fallbackResult(fmt.Sprintf("confidence %d below threshold %d", out.Confidence, r.threshold))
		res.ConversationSummary = out.ConversationSummary
		res.ResponseOutline = out.ResponseOutline
		return res
	}

	plan := make(domain.ActionPlan, 0, len(out.Directives)+1)
	var dropped domain.ActionPlan
	for _, d := range out.Directives {
		kind := domain.ActionKind(d.Action)
		if kind.RequiresDirective() && strings.TrimSpace(d.Directive) == "" {
			// Reported, not fatal: the rest of the plan still runs.
			log.Warn("dropping action without required directive",
				zap.String("action", d.Action),
				zap.Error(domain.ErrRouterInconsistency))
			dropped = append(dropped, domain.Action{Kind: kind, Reasoning: d.Reasoning})
			continue
		}
		plan = append(plan, domain.Action{
			Kind:      kind,
			Directive: d.Directive,
			Reasoning: d.Reasoning,
		})
	}

	// Every turn ends with a reply, whatever the model proposed.
	if !plan.Contains(domain.ActionGenerateReply) {
		plan = append(plan, domain.Action{Kind: domain.ActionGenerateReply, Reasoning: "appended: plan must end with a reply"})
	}

	return Result{
		Intent:              intent,
		Plan:                plan,
		ConversationSummary: out.ConversationSummary,
		ResponseOutline:     out.ResponseOutline,
		Dropped:             dropped,
	}
}

func fallbackResult(reason string) Result {
	return Result{
		Intent: domain.IntentResult{
			Intent:     domain.IntentSimpleMessage,
			Confidence: 0,
			Reasoning:  reason,
		},
		Plan: domain.FallbackPlan(),
	}
}

// FormatHistory renders the last window messages as role-prefixed lines.
func FormatHistory(history []*domain.Message, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var lines []string
	for _, m := range history {
		role := "user"
		if m.Author == domain.RoleAgent {
			role = "assistant"
		}
		lines = append(lines, role+": "+m.Text)
	}
	if len(lines) == 0 {
		return "(no prior messages)"
	}
	return strings.Join(lines, "\n")
}

func intentCatalog() string {
	var lines []string
	for _, intent := range domain.Intents {
		lines = append(lines, fmt.Sprintf("  - `%s`: %s", intent, domain.IntentDescriptions[intent]))
	}
	return strings.Join(lines, "\n")
}

func actionCatalog() string {
	var lines []string
	for _, kind := range domain.ActionKinds {
		directive := "no directive"
		if kind.RequiresDirective() {
			directive = "directive required"
		}
		lines = append(lines, fmt.Sprintf("  - `%s` (%s): %s", kind, directive, domain.ActionDescriptions[kind]))
	}
	return strings.Join(lines, "\n")
}
