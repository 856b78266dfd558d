package domain

import "time"

// RetrievedChunk is one ranked piece of supporting text, either from the
// vector store or synthesized from goals/persona by the assembler.
type RetrievedChunk struct {
	Text          string
	Score         float64
	SourceID      string
	Timestamp     *time.Time
	Contradiction bool // conflicts with a persona field; downstream decides what to do
}

// ContextBundle is the merged, ranked, size-bounded context handed to the
// response-generating agents. It is rebuilt wholesale every turn and never
// mutated in place.
type ContextBundle struct {
	Persona             Persona
	ActiveGoals         []Goal
	RetrievedChunks     []RetrievedChunk
	ConversationSummary string
	ResponseInstruction string
}
