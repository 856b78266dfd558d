// Package controller drives the turn pipeline: intent routing, context
// assembly, plan execution through validated agent calls, and the session
// state update. It is the sole entry point into the orchestration core.
package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mentatlabs/mentat/internal/app/agent"
	"github.com/mentatlabs/mentat/internal/app/assemble"
	"github.com/mentatlabs/mentat/internal/app/router"
	"github.com/mentatlabs/mentat/internal/app/schema"
	"github.com/mentatlabs/mentat/internal/app/session"
	"github.com/mentatlabs/mentat/internal/config"
	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

// FallbackResponse is the fixed degraded-but-honest reply used when a
// required action fails after exhausted retries. The controller never
// fabricates a response from partial data.
const FallbackResponse = "I'm sorry — I wasn't able to put together a proper response just now. " +
	"Could you try rephrasing, or ask me again in a moment?"

// personaObjective seeds retrieval when the persona must be synthesized and
// the turn retrieved nothing else.
const personaObjective = "What do the stored documents, feedback, and past conversations reveal about " +
	"the user's values, strengths, growth areas, communication style, and motivators?"

// TurnResult is everything HandleTurn produces for one user message.
type TurnResult struct {
	Response string
	State    domain.SessionState
	Bundle   domain.ContextBundle
	Intent   domain.IntentResult
	// Fallback marks a degraded turn; callers must not persist State.
	Fallback bool
}

// Controller sequences the turn pipeline over its collaborators.
type Controller struct {
	invoker   *agent.Invoker
	router    *router.Router
	assembler *assemble.Assembler

	retriever    domain.Retriever
	indexer      domain.DocumentIndexer
	personaStore domain.PersonaStore
	goalStore    domain.GoalStore
	journalStore domain.JournalStore

	cfg config.PipelineConfig
	now func() time.Time
}

// New wires a Controller from its collaborators.
func New(
	invoker *agent.Invoker,
	rtr *router.Router,
	assembler *assemble.Assembler,
	retriever domain.Retriever,
	indexer domain.DocumentIndexer,
	personaStore domain.PersonaStore,
	goalStore domain.GoalStore,
	journalStore domain.JournalStore,
	cfg config.PipelineConfig,
) *Controller {
	return &Controller{
		invoker:      invoker,
		router:       rtr,
		assembler:    assembler,
		retriever:    retriever,
		indexer:      indexer,
		personaStore: personaStore,
		goalStore:    goalStore,
		journalStore: journalStore,
		cfg:          cfg,
		now:          time.Now,
	}
}

// turn carries the mutable working set of one HandleTurn call. Side effects
// (persona/goal/journal writes, document indexing) are queued and committed
// only after the whole pipeline has succeeded.
type turn struct {
	userMessage string
	state       domain.SessionState
	route       router.Result

	persona   domain.Persona
	goals     []*domain.Goal
	retrieved []domain.RetrievedChunk
	bundle    domain.ContextBundle

	reply    string
	insights []string
	signals  []domain.ActionKind

	commits []func(context.Context) error
}

// HandleTurn routes the message, assembles context, executes the plan in
// order, and advances the session stage. If any planned action fails after
// exhausted retries, the fixed fallback response is returned and the session
// state is left exactly as it came in.
func (c *Controller) HandleTurn(
	ctx context.Context,
	userMessage string,
	state domain.SessionState,
	history []*domain.Message,
) (TurnResult, error) {
	log := observability.FromContext(ctx).With(
		zap.String("conversation_id", string(state.ConversationID)),
		zap.String("user_id", string(state.UserID)))

	t := &turn{userMessage: userMessage, state: state}

	// 1. Intent + plan.
	t.route = c.router.Route(ctx, userMessage, history)
	log.Info("turn routed",
		zap.String("intent", string(t.route.Intent.Intent)),
		zap.Int("confidence", t.route.Intent.Confidence),
		zap.Int("plan_len", len(t.route.Plan)))

	c.loadUserContext(ctx, t)

	// An empty persona is bootstrapped before the reply, the way a first
	// session would start by reading what is known about the user.
	if t.persona.IsEmpty() && !t.route.Plan.Contains(domain.ActionUpdatePersona) && t.route.Intent.Intent != domain.IntentSimpleMessage {
		t.route.Plan = append(domain.ActionPlan{{Kind: domain.ActionUpdatePersona, Reasoning: "persona not yet synthesized"}}, t.route.Plan...)
	}

	// 2. Retrieval per plan, then the first bundle.
	if err := c.retrieve(ctx, t); err != nil {
		return c.fail(ctx, t, err)
	}
	c.summarize(ctx, t, history)
	c.rebundle(t)

	// 3. Execute the remaining actions in order, threading outputs forward.
	for _, action := range t.route.Plan {
		if err := c.execute(ctx, t, action); err != nil {
			return c.fail(ctx, t, err)
		}
	}

	// 4. Session stage update from the plan's completion signals, plus the
	// rolling set of directives still owed to the user.
	newState := session.Apply(ctx, t.state, t.route.Intent.Intent, t.signals)
	newState.PendingDirectives = pendingDirectives(t.state.PendingDirectives, t.route)

	// A cancelled request discards everything: no commits, no state delta.
	if err := ctx.Err(); err != nil {
		return TurnResult{}, fmt.Errorf("turn cancelled: %w", err)
	}

	for _, commit := range t.commits {
		if err := commit(ctx); err != nil {
			log.Error("turn side effect failed", zap.Error(err))
		}
	}

	// 5. Final response from the terminal generate_reply action.
	return TurnResult{
		Response: t.reply,
		State:    newState,
		Bundle:   t.bundle,
		Intent:   t.route.Intent,
	}, nil
}

// fail produces the degraded turn result: fixed response, untouched state,
// no committed side effects.
func (c *Controller) fail(ctx context.Context, t *turn, cause error) (TurnResult, error) {
	observability.FromContext(ctx).Error("turn failed, returning fallback response", zap.Error(cause))
	return TurnResult{
		Response: FallbackResponse,
		State:    t.state,
		Bundle:   t.bundle,
		Intent:   t.route.Intent,
		Fallback: true,
	}, nil
}

// loadUserContext reads persona and goals. Store misses are not fatal; the
// turn proceeds with what exists.
func (c *Controller) loadUserContext(ctx context.Context, t *turn) {
	log := observability.FromContext(ctx)

	persona, err := c.personaStore.LoadPersona(ctx, t.state.UserID)
	if err != nil {
		log.Warn("persona unavailable", zap.Error(err))
	}
	t.persona = persona

	goals, err := c.goalStore.ListGoalsByUser(ctx, t.state.UserID, 0)
	if err != nil {
		log.Warn("goals unavailable", zap.Error(err))
	}
	t.goals = goals
}

// retrieve runs every retrieve_documents action: the query-formulation agent
// turns each directive into semantic queries, the retrieval collaborator
// executes them. Independent directives run concurrently; results merge in
// plan order so the final ranking is deterministic.
func (c *Controller) retrieve(ctx context.Context, t *turn) error {
	var directives []string
	for _, action := range t.route.Plan {
		if action.Kind == domain.ActionRetrieveDocuments {
			directives = append(directives, action.Directive)
		}
	}
	if len(directives) == 0 {
		return nil
	}

	results := make([][]domain.RetrievedChunk, len(directives))
	g, gctx := errgroup.WithContext(ctx)
	for i, directive := range directives {
		g.Go(func() error {
			chunks, err := c.retrieveOne(gctx, t, directive)
			if err != nil {
				return err
			}
			results[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, chunks := range results {
		t.retrieved = append(t.retrieved, chunks...)
	}
	t.retrieved = dedupeChunks(t.retrieved)
	return nil
}

func (c *Controller) retrieveOne(ctx context.Context, t *turn, objective string) ([]domain.RetrievedChunk, error) {
	raw, _, err := c.invoker.Invoke(ctx, schema.KindQueryFormulation, map[string]string{
		"objective":    objective,
		"user_message": t.userMessage,
	}, c.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}
	queries := raw.(schema.QueryOutput).Queries

	chunks, err := c.retriever.Search(ctx, t.state.UserID, queries, c.cfg.RetrievalK)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieval: %v", domain.ErrTransport, err)
	}
	return chunks, nil
}

// summarize fills the conversation digest when the router did not provide
// one. Auxiliary: failure degrades to an empty summary, never the turn.
func (c *Controller) summarize(ctx context.Context, t *turn, history []*domain.Message) {
	if t.route.ConversationSummary != "" || len(history) == 0 {
		return
	}
	raw, _, err := c.invoker.Invoke(ctx, schema.KindContextAggregation, map[string]string{
		"user_message": t.userMessage,
		"history":      router.FormatHistory(history, c.cfg.HistoryWindow),
	}, c.cfg.MaxAttempts)
	if err != nil {
		observability.FromContext(ctx).Warn("context aggregation unavailable", zap.Error(err))
		return
	}
	out := raw.(schema.AggregationOutput)
	t.route.ConversationSummary = out.ConversationSummary
	if t.route.ResponseOutline == "" {
		t.route.ResponseOutline = out.ResponseInstruction
	}
}

// rebundle replaces the working ContextBundle wholesale. Never patch the
// bundle in place; stale-field bugs hide there.
func (c *Controller) rebundle(t *turn) {
	t.bundle = c.assembler.Assemble(t.persona, t.goals, t.retrieved, t.route.ConversationSummary, t.route.ResponseOutline)
}

// execute runs one planned action. Stage-completion markers only emit
// signals; everything else calls an agent or queues a side effect.
func (c *Controller) execute(ctx context.Context, t *turn, action domain.Action) error {
	switch action.Kind {
	case domain.ActionRetrieveDocuments:
		// Executed up front in retrieve().
		return nil
	case domain.ActionUpdatePersona:
		return c.updatePersona(ctx, t)
	case domain.ActionUpdateGoals:
		c.updateGoals(t, action.Directive)
		return nil
	case domain.ActionRecordJournal:
		c.recordJournal(t, action.Directive)
		return nil
	case domain.ActionGenerateReply:
		return c.generateReply(ctx, t)
	default:
		if session.IsStageSignal(action.Kind) {
			t.signals = append(t.signals, action.Kind)
			return nil
		}
		observability.FromContext(ctx).Warn("skipping unknown planned action", zap.String("action", string(action.Kind)))
		return nil
	}
}

// updatePersona re-synthesizes the persona from retrieved material and
// threads the result into the rest of the turn. The write is queued until
// the turn succeeds.
func (c *Controller) updatePersona(ctx context.Context, t *turn) error {
	material := t.retrieved
	if len(material) == 0 {
		chunks, err := c.retrieveOne(ctx, t, personaObjective)
		if err != nil {
			return err
		}
		material = chunks
	}

	raw, _, err := c.invoker.Invoke(ctx, schema.KindPersonaSynthesis, map[string]string{
		"query_result": chunksText(material),
	}, c.cfg.MaxAttempts)
	if err != nil {
		return err
	}

	out := raw.(schema.PersonaOutput)
	t.persona = domain.Persona{
		CoreValues:             out.CoreValues,
		Strengths:              out.Strengths,
		GrowthAreas:            out.GrowthAreas,
		CommunicationStyle:     out.CommunicationStyle,
		PreferredFeedbackStyle: out.PreferredFeedbackStyle,
		Motivators:             out.Motivators,
	}
	c.rebundle(t)

	userID, persona := t.state.UserID, t.persona
	t.commits = append(t.commits, func(ctx context.Context) error {
		return c.personaStore.SavePersona(ctx, userID, persona)
	})
	return nil
}

// updateGoals queues a new goal from the directive and threads it into the
// bundle so the reply can reference it.
func (c *Controller) updateGoals(t *turn, directive string) {
	now := c.now()
	goal := &domain.Goal{
		ID:          uuid.NewString(),
		UserID:      t.state.UserID,
		Description: directive,
		Status:      domain.GoalInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.goals = append(t.goals, goal)
	c.rebundle(t)

	t.commits = append(t.commits, func(ctx context.Context) error {
		return c.goalStore.SaveGoal(ctx, goal)
	})
}

// recordJournal queues a journal entry for this turn. The reflection is the
// drafted reply when one exists by the time the entry is committed.
func (c *Controller) recordJournal(t *turn, focus string) {
	now := c.now()
	entry := &domain.JournalEntry{
		ID:             domain.JournalEntryID(uuid.NewString()),
		ConversationID: t.state.ConversationID,
		UserID:         t.state.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ProblemSummary: focus,
	}

	t.commits = append(t.commits, func(ctx context.Context) error {
		entry.Reflection = t.reply
		if len(t.insights) > 0 {
			entry.Reflection += "\n\nInsights: " + strings.Join(t.insights, "; ")
		}
		return c.journalStore.AppendJournalEntry(ctx, entry)
	})
}

// generateReply produces the user-facing response, then runs the bounded
// critic loop: a rewrite verdict re-invokes the responder with the critic's
// feedback attached.
func (c *Controller) generateReply(ctx context.Context, t *turn) error {
	log := observability.FromContext(ctx)
	contextText := assemble.RenderText(t.bundle)

	feedback := ""
	for round := 0; ; round++ {
		raw, _, err := c.invoker.Invoke(ctx, schema.KindCoachingResponse, map[string]string{
			"user_message":   t.userMessage,
			"context":        contextText,
			"stage":          string(t.state.Stage),
			"stage_guidance": domain.StageDescriptions[t.state.Stage],
			"feedback":       feedback,
		}, c.cfg.MaxAttempts)
		if err != nil {
			return err
		}
		out := raw.(schema.CoachOutput)
		t.reply = out.Response
		t.insights = out.Insights

		if round >= c.cfg.FeedbackMaxRounds {
			return nil
		}

		verdict, ok := c.review(ctx, t, contextText)
		if !ok || !verdict.RewriteResponse {
			return nil
		}
		log.Info("critic requested rewrite", zap.Int("round", round+1), zap.String("feedback", verdict.Feedback))
		feedback = verdict.Feedback
	}
}

// review asks the critic about the current draft. Auxiliary: if the critic
// itself is unusable the draft stands.
func (c *Controller) review(ctx context.Context, t *turn, contextText string) (schema.FeedbackOutput, bool) {
	raw, _, err := c.invoker.Invoke(ctx, schema.KindFeedbackQA, map[string]string{
		"user_message":   t.userMessage,
		"response_draft": t.reply,
		"context":        contextText,
	}, c.cfg.MaxAttempts)
	if err != nil {
		observability.FromContext(ctx).Warn("feedback review unavailable, keeping draft", zap.Error(err))
		return schema.FeedbackOutput{}, false
	}
	return raw.(schema.FeedbackOutput), true
}

// IndexDocument ingests user material into the retrieval store. Exposed for
// the document_upload path of the service layer.
func (c *Controller) IndexDocument(ctx context.Context, userID domain.UserID, sourceID, text string) error {
	if err := c.indexer.IndexDocument(ctx, userID, sourceID, text); err != nil {
		return fmt.Errorf("%w: indexing document: %v", domain.ErrTransport, err)
	}
	return nil
}

func chunksText(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "(no material found)"
	}
	var lines []string
	for _, ch := range chunks {
		lines = append(lines, "- "+ch.Text)
	}
	return strings.Join(lines, "\n")
}

// pendingDirectives rolls the session's outstanding-action set forward: a
// previously pending kind is satisfied once a plan carries it, and actions the
// router dropped for missing directives become pending until a later plan
// supplies them.
func pendingDirectives(prev []domain.Action, route router.Result) []domain.Action {
	var out []domain.Action
	seen := make(map[domain.ActionKind]bool)
	for _, a := range prev {
		if route.Plan.Contains(a.Kind) || seen[a.Kind] {
			continue
		}
		seen[a.Kind] = true
		out = append(out, a)
	}
	for _, a := range route.Dropped {
		if seen[a.Kind] {
			continue
		}
		seen[a.Kind] = true
		out = append(out, a)
	}
	return out
}

// dedupeChunks drops repeated sources, keeping the highest-scored instance.
func dedupeChunks(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	seen := make(map[string]int)
	var out []domain.RetrievedChunk
	for _, ch := range chunks {
		if ch.SourceID == "" {
			out = append(out, ch)
			continue
		}
		if idx, ok := seen[ch.SourceID]; ok {
			if ch.Score > out[idx].Score {
				out[idx] = ch
			}
			continue
		}
		seen[ch.SourceID] = len(out)
		out = append(out, ch)
	}
	return out
}
