package agent

import (
	"encoding/json"

	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/llm"
)

// plan runs the planning call and parses its JSON. Any failure substitutes
// the default plan so the turn can still answer directly.
func (r *Reasoner) plan(tc *core.TurnContext) *core.Plan {
	out, err := r.client.GenerateJSON(tc.Context, llm.Request{
		Prompt:       planningPrompt(tc.Query, tc.ClientContext, r.registry.Descriptions(r.catalogLang)),
		SystemPrompt: planningSystemPrompt,
	})
	if err != nil {
		r.logger.Warn("agent.plan.llm_failed", "turn_id", tc.Turn.ID, "error", err)
		r.metrics.RecordLLMRequest("planning", "error", 0, 0)
		return core.DefaultPlan()
	}
	r.recordUsage(tc, "planning", out.Usage, 0)

	var plan core.Plan
	if err := json.Unmarshal(out.Raw, &plan); err != nil {
		r.logger.Warn("agent.plan.unparsable", "turn_id", tc.Turn.ID, "error", err)
		return core.DefaultPlan()
	}
	if plan.Steps == nil {
		plan.Steps = []string{}
	}
	if plan.EstimatedTools == nil {
		plan.EstimatedTools = []string{}
	}
	return &plan
}
