// Package assemble builds the ContextBundle for a turn: one ranked,
// size-bounded merge of persona, goals, retrieved documents, and the
// conversation summary. Bundles are built fresh every call and inputs are
// never mutated.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mentatlabs/mentat/internal/domain"
)

// resolutionMarkers signal that a retrieved chunk claims a previously noted
// growth area has been dealt with.
var resolutionMarkers = []string{
	"no longer",
	"resolved",
	"overcame",
	"overcome",
	"has improved",
	"much better now",
	"mastered",
}

// Assembler ranks and truncates turn context.
type Assembler struct {
	maxChunks  int
	charBudget int
}

// New builds an Assembler with the configured chunk cap and char budget.
func New(maxChunks, charBudget int) *Assembler {
	return &Assembler{maxChunks: maxChunks, charBudget: charBudget}
}

// Assemble merges the turn's sources into a new ContextBundle. Goal snippets
// enter the ranking with an implicit score of 1.0. Chunks are sorted by
// descending score (stable; ties broken by recency when timestamps exist),
// then truncated to the configured count and character budget, dropping the
// lowest-ranked entries first. Chunks contradicting a persona growth area
// are tagged, not removed.
func (a *Assembler) Assemble(
	persona domain.Persona,
	goals []*domain.Goal,
	retrieved []domain.RetrievedChunk,
	conversationSummary string,
	responseInstruction string,
) domain.ContextBundle {
	chunks := make([]domain.RetrievedChunk, 0, len(retrieved)+len(goals))
	chunks = append(chunks, retrieved...)

	activeGoals := make([]domain.Goal, 0, len(goals))
	for _, g := range goals {
		if g == nil {
			continue
		}
		activeGoals = append(activeGoals, *g)
		if g.Status != domain.GoalCompleted {
			ts := g.UpdatedAt
			chunks = append(chunks, domain.RetrievedChunk{
				Text:      "Active goal: " + g.Description,
				Score:     1.0,
				SourceID:  "goal:" + g.ID,
				Timestamp: &ts,
			})
		}
	}

	// Stable sort keeps original order for equal scores without timestamps.
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].Timestamp != nil && chunks[j].Timestamp != nil {
			return chunks[i].Timestamp.After(*chunks[j].Timestamp)
		}
		return false
	})

	chunks = a.truncate(chunks)

	for i := range chunks {
		if contradictsPersona(chunks[i].Text, persona) {
			chunks[i].Contradiction = true
		}
	}

	return domain.ContextBundle{
		Persona:             persona.Clone(),
		ActiveGoals:         activeGoals,
		RetrievedChunks:     chunks,
		ConversationSummary: clipText(conversationSummary, a.charBudget/4),
		ResponseInstruction: responseInstruction,
	}
}

// truncate applies the count cap and the character budget, keeping the
// highest-ranked prefix.
func (a *Assembler) truncate(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	if a.maxChunks > 0 && len(chunks) > a.maxChunks {
		chunks = chunks[:a.maxChunks]
	}
	if a.charBudget <= 0 {
		return chunks
	}
	total := 0
	for i, ch := range chunks {
		total += len(ch.Text)
		if total > a.charBudget {
			return chunks[:i]
		}
	}
	return chunks
}

// contradictsPersona reports whether the text claims a stored growth area is
// resolved. Purely lexical; downstream agents decide what to do with the tag.
func contradictsPersona(text string, persona domain.Persona) bool {
	lower := strings.ToLower(text)

	marked := false
	for _, marker := range resolutionMarkers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return false
	}

	for _, area := range persona.GrowthAreas {
		for _, word := range significantWords(area) {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	return false
}

// significantWords drops short filler words from a descriptor.
func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) >= 5 {
			out = append(out, w)
		}
	}
	return out
}

func clipText(s string, max int) string {
	if max > 0 && len(s) > max {
		return strings.TrimSpace(s[:max])
	}
	return s
}

// RenderText flattens a bundle into the context block handed to the
// response-generating agents.
func RenderText(b domain.ContextBundle) string {
	var sb strings.Builder

	sb.WriteString("Persona:\n")
	writeList(&sb, "  core values", b.Persona.CoreValues)
	writeList(&sb, "  strengths", b.Persona.Strengths)
	writeList(&sb, "  growth areas", b.Persona.GrowthAreas)
	if b.Persona.CommunicationStyle != "" {
		fmt.Fprintf(&sb, "  communication style: %s\n", b.Persona.CommunicationStyle)
	}
	if b.Persona.PreferredFeedbackStyle != "" {
		fmt.Fprintf(&sb, "  preferred feedback style: %s\n", b.Persona.PreferredFeedbackStyle)
	}
	writeList(&sb, "  motivators", b.Persona.Motivators)

	if len(b.ActiveGoals) > 0 {
		sb.WriteString("\nGoals:\n")
		for _, g := range b.ActiveGoals {
			fmt.Fprintf(&sb, "  - [%s] %s\n", g.Status, g.Description)
		}
	}

	if len(b.RetrievedChunks) > 0 {
		sb.WriteString("\nRetrieved material (most relevant first):\n")
		for _, ch := range b.RetrievedChunks {
			tag := ""
			if ch.Contradiction {
				tag = " [contradiction]"
			}
			fmt.Fprintf(&sb, "  - (%.2f)%s %s\n", ch.Score, tag, ch.Text)
		}
	}

	if b.ConversationSummary != "" {
		sb.WriteString("\nConversation summary:\n  " + b.ConversationSummary + "\n")
	}
	if b.ResponseInstruction != "" {
		sb.WriteString("\nResponse instruction:\n  " + b.ResponseInstruction + "\n")
	}

	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, strings.Join(items, ", "))
}
