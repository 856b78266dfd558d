package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mentatlabs/mentat/internal/domain"
)

// Validate checks raw model output against the declared contract for kind
// and returns the typed output variant. Side-effect free and deterministic:
// validating the same raw bytes twice yields the same outcome.
//
// Bound violations (an over-long list, an out-of-range confidence) come back
// as StatusRepairable with the repair already applied, so callers never pay
// another model round-trip for them. Missing or unparseable structure and
// categorical violations come back as StatusInvalid.
func Validate(kind AgentKind, raw []byte) (any, Outcome) {
	body := stripFences(raw)

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, invalidf("$", "output is not a JSON object: %v", err)
	}

	switch kind {
	case KindIntentDetection:
		return validateIntent(fields)
	case KindQueryFormulation:
		return validateQueries(fields)
	case KindPersonaSynthesis:
		return validatePersona(fields)
	case KindContextAggregation:
		return validateAggregation(fields)
	case KindCoachingResponse:
		return validateCoach(fields)
	case KindFeedbackQA:
		return validateFeedback(fields)
	default:
		return nil, invalidf("$", "unknown agent kind %q", kind)
	}
}

func validateIntent(fields map[string]any) (any, Outcome) {
	c := &checker{}
	out := IntentOutput{
		Intent:              c.requiredString(fields, "intent"),
		Confidence:          c.boundedInt(fields, "confidence", 0, 100),
		Reasoning:           c.requiredString(fields, "reasoning"),
		ConversationSummary: c.clippedString(fields, "conversation_summary", MaxSummaryChars),
		ResponseOutline:     c.clippedString(fields, "response_outline", MaxSummaryChars),
	}

	if out.Intent != "" && !knownIntent(out.Intent) {
		c.fail("intent", "%q is not in the intent set", out.Intent)
	}

	rawDirectives, _ := fields["directives"].([]any)
	if len(rawDirectives) > MaxDirectives {
		c.repair("directives", "%d directives exceeds the maximum of %d", len(rawDirectives), MaxDirectives)
		rawDirectives = rawDirectives[:MaxDirectives]
	}
	for i, item := range rawDirectives {
		obj, ok := item.(map[string]any)
		if !ok {
			c.fail(fmt.Sprintf("directives[%d]", i), "not an object")
			continue
		}
		d := DirectiveOutput{
			Action:    getString(obj, "action"),
			Directive: getString(obj, "directive"),
			Reasoning: getString(obj, "reasoning"),
		}
		if d.Action == "" {
			c.fail(fmt.Sprintf("directives[%d].action", i), "required field missing")
			continue
		}
		if !domain.ActionKind(d.Action).Valid() {
			c.fail(fmt.Sprintf("directives[%d].action", i), "%q is not in the action set", d.Action)
			continue
		}
		out.Directives = append(out.Directives, d)
	}

	return out, c.outcome()
}

func validateQueries(fields map[string]any) (any, Outcome) {
	c := &checker{}
	out := QueryOutput{
		Queries:   c.cappedStringList(fields, "queries", MaxListItems),
		Reasoning: getString(fields, "reasoning"),
	}
	if _, present := fields["queries"]; !present {
		c.fail("queries", "required field missing")
	} else if len(out.Queries) == 0 {
		c.fail("queries", "must contain at least one query")
	}
	return out, c.outcome()
}

func validatePersona(fields map[string]any) (any, Outcome) {
	c := &checker{}
	for _, field := range []string{"core_values", "strengths", "growth_areas", "motivators"} {
		if _, present := fields[field]; !present {
			c.fail(field, "required field missing")
		}
	}
	for _, field := range []string{"communication_style", "preferred_feedback_style"} {
		if _, present := fields[field]; !present {
			c.fail(field, "required field missing")
		}
	}
	out := PersonaOutput{
		CoreValues:             c.cappedStringList(fields, "core_values", MaxListItems),
		Strengths:              c.cappedStringList(fields, "strengths", MaxListItems),
		GrowthAreas:            c.cappedStringList(fields, "growth_areas", MaxListItems),
		CommunicationStyle:     c.clippedOptionalString(fields, "communication_style", MaxStyleChars),
		PreferredFeedbackStyle: c.clippedOptionalString(fields, "preferred_feedback_style", MaxStyleChars),
		Motivators:             c.cappedStringList(fields, "motivators", MaxListItems),
	}
	return out, c.outcome()
}

func validateAggregation(fields map[string]any) (any, Outcome) {
	c := &checker{}
	out := AggregationOutput{
		ConversationSummary: c.clippedString(fields, "conversation_summary", MaxSummaryChars),
		ResponseInstruction: c.clippedString(fields, "response_instruction", MaxSummaryChars),
	}
	return out, c.outcome()
}

func validateCoach(fields map[string]any) (any, Outcome) {
	c := &checker{}
	out := CoachOutput{
		Response:  c.requiredString(fields, "response"),
		Reasoning: c.requiredString(fields, "reasoning"),
		Insights:  c.cappedStringList(fields, "insights", MaxListItems),
	}
	return out, c.outcome()
}

func validateFeedback(fields map[string]any) (any, Outcome) {
	c := &checker{}
	out := FeedbackOutput{
		Feedback:  getString(fields, "feedback"),
		Reasoning: c.requiredString(fields, "reasoning"),
	}
	v, present := fields["rewrite_response"]
	b, isBool := v.(bool)
	if !present || !isBool {
		c.fail("rewrite_response", "required boolean missing")
	}
	out.RewriteResponse = b
	return out, c.outcome()
}

func knownIntent(s string) bool {
	for _, i := range domain.Intents {
		if string(i) == s {
			return true
		}
	}
	return false
}

// stripFences removes a surrounding markdown code fence, a common model
// habit even when asked for bare JSON.
func stripFences(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// checker accumulates violations, split into fatal ones and repairs.
type checker struct {
	failures []FieldError
	repairs  []FieldError
}

func (c *checker) fail(field, format string, args ...any) {
	c.failures = append(c.failures, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) repair(field, format string, args ...any) {
	c.repairs = append(c.repairs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) outcome() Outcome {
	if len(c.failures) > 0 {
		return Outcome{Status: StatusInvalid, Errors: c.failures}
	}
	if len(c.repairs) > 0 {
		return Outcome{Status: StatusRepairable, Errors: c.repairs}
	}
	return valid()
}

func (c *checker) requiredString(m map[string]any, field string) string {
	s := getString(m, field)
	if strings.TrimSpace(s) == "" {
		c.fail(field, "required field missing or empty")
	}
	return s
}

// clippedString requires the field and truncates it to max characters.
func (c *checker) clippedString(m map[string]any, field string, max int) string {
	s := c.requiredString(m, field)
	return c.clip(field, s, max)
}

// clippedOptionalString truncates without requiring presence content;
// presence itself is checked by the caller.
func (c *checker) clippedOptionalString(m map[string]any, field string, max int) string {
	return c.clip(field, getString(m, field), max)
}

func (c *checker) clip(field, s string, max int) string {
	if len(s) > max {
		c.repair(field, "%d chars exceeds the maximum of %d", len(s), max)
		return strings.TrimSpace(s[:max])
	}
	return s
}

// boundedInt requires a numeric field and clamps it into [lo, hi].
func (c *checker) boundedInt(m map[string]any, field string, lo, hi int) int {
	v, present := m[field]
	f, isNum := v.(float64)
	if !present || !isNum {
		c.fail(field, "required numeric field missing")
		return 0
	}
	n := int(f)
	if n < lo {
		c.repair(field, "%d below the minimum of %d", n, lo)
		return lo
	}
	if n > hi {
		c.repair(field, "%d above the maximum of %d", n, hi)
		return hi
	}
	return n
}

// cappedStringList reads a list of strings, dropping non-string members and
// truncating to max items.
func (c *checker) cappedStringList(m map[string]any, field string, max int) []string {
	raw, ok := m[field].([]any)
	if !ok {
		return nil
	}
	var out []string
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			c.fail(fmt.Sprintf("%s[%d]", field, i), "not a string")
			continue
		}
		out = append(out, s)
	}
	if len(out) > max {
		c.repair(field, "%d items exceeds the maximum of %d", len(out), max)
		out = out[:max]
	}
	return out
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
