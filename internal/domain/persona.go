package domain

import "time"

// MaxPersonaDescriptors caps each persona list field.
const MaxPersonaDescriptors = 5

// Persona is the long-lived summary of who the user is, synthesized from
// stored documents and conversations. List fields never exceed
// MaxPersonaDescriptors entries.
type Persona struct {
	CoreValues             []string `json:"core_values"`
	Strengths              []string `json:"strengths"`
	GrowthAreas            []string `json:"growth_areas"`
	CommunicationStyle     string   `json:"communication_style"`
	PreferredFeedbackStyle string   `json:"preferred_feedback_style"`
	Motivators             []string `json:"motivators"`
}

// IsEmpty reports whether no persona has been synthesized yet.
func (p Persona) IsEmpty() bool {
	return len(p.CoreValues) == 0 &&
		len(p.Strengths) == 0 &&
		len(p.GrowthAreas) == 0 &&
		p.CommunicationStyle == "" &&
		p.PreferredFeedbackStyle == "" &&
		len(p.Motivators) == 0
}

// Clone returns a deep copy so callers can hand the persona to the
// assembler without sharing slices.
func (p Persona) Clone() Persona {
	out := p
	out.CoreValues = append([]string(nil), p.CoreValues...)
	out.Strengths = append([]string(nil), p.Strengths...)
	out.GrowthAreas = append([]string(nil), p.GrowthAreas...)
	out.Motivators = append([]string(nil), p.Motivators...)
	return out
}

// GoalStatus is the lifecycle state of a coaching goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalOnHold     GoalStatus = "on_hold"
	GoalCompleted  GoalStatus = "completed"
)

// Goal is a long-term coaching goal owned by a user.
type Goal struct {
	ID          string     `json:"id"`
	UserID      UserID     `json:"user_id"`
	Description string     `json:"description"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}
