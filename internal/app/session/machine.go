// Package session tracks the coaching-session stage and turn-level state
// across the lifetime of a conversation. State only changes through Apply;
// the machine never transitions on an unverified signal.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

// completionAction maps each stage to the action whose success completes it.
var completionAction = map[domain.Stage]domain.ActionKind{
	domain.StageContract: domain.ActionAgreeFocus,
	domain.StageListen:   domain.ActionAcknowledgeStory,
	domain.StageExplore:  domain.ActionSurfaceInsight,
	domain.StagePlan:     domain.ActionFinalizeCommitment,
	domain.StageReview:   domain.ActionCloseSession,
}

// stageSignals is the set of action kinds that are stage-completion signals.
var stageSignals = func() map[domain.ActionKind]bool {
	out := make(map[domain.ActionKind]bool, len(completionAction))
	for _, kind := range completionAction {
		out[kind] = true
	}
	return out
}()

// IsStageSignal reports whether kind is a stage-completion signal.
func IsStageSignal(kind domain.ActionKind) bool {
	return stageSignals[kind]
}

// CompletionAction returns the action that completes the given stage.
func CompletionAction(stage domain.Stage) domain.ActionKind {
	return completionAction[stage]
}

// Apply consumes a completed turn: it increments the turn counter, records
// the intent, and advances the stage for every in-order completion signal.
// Signals that do not match the current stage's completion action are
// ignored and logged, never applied. The input state is not mutated.
func Apply(ctx context.Context, state domain.SessionState, intent domain.Intent, signals []domain.ActionKind) domain.SessionState {
	log := observability.FromContext(ctx).With(
		zap.String("conversation_id", string(state.ConversationID)))

	next := state.Clone()
	next.TurnCount++
	next.LastIntent = intent

	for _, signal := range signals {
		if !stageSignals[signal] {
			continue
		}
		expected := completionAction[next.Stage]
		if signal != expected {
			log.Warn("ignoring out-of-order completion signal",
				zap.String("signal", string(signal)),
				zap.String("stage", string(next.Stage)),
				zap.Error(domain.ErrStateTransitionRejected))
			continue
		}

		if next.Stage == domain.StageReview {
			// Closing Review wraps around: the next session starts fresh.
			next.Stage = domain.StageContract
			next.SessionCount++
			log.Info("coaching session closed", zap.Int("session_count", next.SessionCount))
			continue
		}

		next.Stage = following(next.Stage)
		log.Info("stage advanced",
			zap.String("signal", string(signal)),
			zap.String("stage", string(next.Stage)))
	}

	return next
}

// following returns the next stage in session order. Callers never pass
// Review here; its completion wraps to Contract in Apply.
func following(stage domain.Stage) domain.Stage {
	for i, s := range domain.StageOrder {
		if s == stage && i+1 < len(domain.StageOrder) {
			return domain.StageOrder[i+1]
		}
	}
	return stage
}
