package agent

import "encoding/json"

// StepKind discriminates the shapes a reasoning step can take.
type StepKind int

const (
	// StepToolCall carries an action plus its input.
	StepToolCall StepKind = iota
	// StepFinalAnswer terminates the loop with an answer.
	StepFinalAnswer
	// StepMalformed covers replies with neither an action nor an answer.
	StepMalformed
)

// Step is the parsed form of one reasoning reply. Exactly one of the
// action or final-answer fields is meaningful, selected by Kind.
type Step struct {
	Kind        StepKind
	Thought     string
	Action      string
	ActionInput map[string]any
	FinalAnswer string
}

type rawStep struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	ActionInput map[string]any `json:"action_input"`
	FinalAnswer string         `json:"final_answer"`
}

// ParseStep classifies a reasoning reply into its variant. An action wins
// over a final answer when both are present; a reply with neither is
// malformed but still surfaces its thought.
func ParseStep(raw json.RawMessage) Step {
	var rs rawStep
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Step{Kind: StepMalformed}
	}
	switch {
	case rs.Action != "":
		input := rs.ActionInput
		if input == nil {
			input = map[string]any{}
		}
		return Step{Kind: StepToolCall, Thought: rs.Thought, Action: rs.Action, ActionInput: input}
	case rs.FinalAnswer != "":
		return Step{Kind: StepFinalAnswer, Thought: rs.Thought, FinalAnswer: rs.FinalAnswer}
	default:
		return Step{Kind: StepMalformed, Thought: rs.Thought}
	}
}
