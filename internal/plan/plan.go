// ABOUTME: Plan envelope parsing: raw model text to a plan or final answer
// ABOUTME: Tolerates code fences and surrounding prose; coerces single-action shorthand

package plan

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mauromedda/pi-effector/internal/types"
)

// Envelope kinds.
const (
	KindPlan  = "plan"
	KindFinal = "final"
)

// Step is one action of a plan.
type Step struct {
	Action ActionKind     `json:"action"`
	Params map[string]any `json:"params"`
}

// Plan is either an ordered list of steps or a final answer.
type Plan struct {
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
	Actions     []Step `json:"actions,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// IsFinal reports whether p carries an answer instead of steps.
func (p Plan) IsFinal() bool {
	return p.Action == KindFinal
}

type envelope struct {
	Action      string            `json:"action"`
	Reason      string            `json:"reason"`
	Actions     []json.RawMessage `json:"actions"`
	FinalAnswer string            `json:"final_answer"`
	Params      json.RawMessage   `json:"params"`
}

// ParseText extracts the first-to-last brace span of text and decodes it.
func ParseText(text string) (Plan, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimSpace(strings.Trim(text, "`"))
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Plan{}, types.Errorf(types.KindInvalidPlan, "no JSON object found")
	}
	return Decode([]byte(text[start : end+1]))
}

// Decode parses a plan document. A bare {action, params} object is
// coerced into a one-step plan. Non-object entries in actions are dropped.
func Decode(data []byte) (Plan, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Plan{}, types.Wrap(types.KindInvalidPlan, err, "decoding plan")
	}

	switch env.Action {
	case KindFinal:
		return Plan{Action: KindFinal, Reason: env.Reason, FinalAnswer: env.FinalAnswer}, nil

	case KindPlan:
		p := Plan{Action: KindPlan, Reason: env.Reason}
		for _, raw := range env.Actions {
			if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
				continue
			}
			var s Step
			if err := json.Unmarshal(raw, &s); err != nil {
				return Plan{}, types.Wrap(types.KindInvalidPlan, err, "decoding step")
			}
			if s.Params == nil {
				s.Params = map[string]any{}
			}
			p.Actions = append(p.Actions, s)
		}
		return p, nil

	case "":
		return Plan{}, types.Errorf(types.KindInvalidPlan, "missing action")
	}

	params := map[string]any{}
	if len(env.Params) > 0 && string(env.Params) != "null" {
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return Plan{}, types.Errorf(types.KindInvalidPlan, "params must be an object")
		}
	}
	reason := env.Reason
	if reason == "" {
		reason = "single action"
	}
	return Plan{
		Action:  KindPlan,
		Reason:  reason,
		Actions: []Step{{Action: ActionKind(env.Action), Params: params}},
	}, nil
}

// Validate checks that p is executable: a final answer, or a plan with steps.
func (p Plan) Validate() error {
	switch p.Action {
	case KindFinal:
		return nil
	case KindPlan:
		if len(p.Actions) == 0 {
			return types.Errorf(types.KindInvalidPlan, "plan has no actions")
		}
		return nil
	default:
		return types.Errorf(types.KindInvalidPlan, "expected action plan or final, got %q", p.Action)
	}
}
