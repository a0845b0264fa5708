package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagesense-ai/pagesense/core"
)

const planningSystemPrompt = `You are the planning stage of a reading assistant. Decide whether the query needs tools. Respond with a JSON object: {"intent": "...", "needs_tools": true|false, "plan": ["step", ...], "estimated_tools": ["tool_name", ...]}`

const thinkSystemPrompt = `You are the reasoning stage of a reading assistant working step by step. Respond with a JSON object, either {"thought": "...", "action": "<tool_name>", "action_input": {...}} to use a tool, or {"thought": "...", "final_answer": "..."} to answer the user.`

// apologyAnswer is substituted when a reasoning call fails; the turn still
// completes so the user gets a reply instead of a dead session.
const apologyAnswer = "I ran into a problem while working on your question and could not finish my reasoning. Please try asking again."

func planningPrompt(query string, clientCtx *core.QueryContext, catalog string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n", query)
	if clientCtx != nil {
		if len(clientCtx.DocumentInfo) > 0 {
			if info, err := json.Marshal(clientCtx.DocumentInfo); err == nil {
				fmt.Fprintf(&b, "Document info: %s\n", info)
			}
		}
		if clientCtx.Selection != "" {
			fmt.Fprintf(&b, "Selected text: %s\n", clientCtx.Selection)
		}
	}
	b.WriteString("\nAvailable tools:\n")
	b.WriteString(catalog)
	b.WriteString("\nProduce the plan now.")
	return b.String()
}

func thinkPrompt(query string, plan *core.Plan, history []core.ReActStep, window int, catalog string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n", query)
	if plan != nil {
		fmt.Fprintf(&b, "Plan (intent %q):\n", plan.Intent)
		for _, step := range plan.Steps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	if len(history) > 0 {
		recent := history
		if window > 0 && len(recent) > window {
			recent = recent[len(recent)-window:]
		}
		b.WriteString("\nPrevious steps:\n")
		for _, step := range recent {
			b.WriteString(formatStep(step))
		}
	}
	b.WriteString("\nAvailable tools:\n")
	b.WriteString(catalog)
	b.WriteString("\nDecide the next step now.")
	return b.String()
}

func answerSystemPrompt(userProfile string) string {
	base := "You are a helpful reading assistant. Answer the user directly and concisely."
	if userProfile == "" {
		return base
	}
	return base + "\n\nWhat you know about this reader:\n" + userProfile
}

func formatStep(step core.ReActStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thought: %s\n", step.Thought)
	if step.Action != "" {
		fmt.Fprintf(&b, "Action: %s\n", step.Action)
	}
	fmt.Fprintf(&b, "Observation: %s\n", step.Observation)
	return b.String()
}

func historyTranscript(history []core.ReActStep) []string {
	out := make([]string, 0, len(history))
	for _, step := range history {
		out = append(out, formatStep(step))
	}
	return out
}
