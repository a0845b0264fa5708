// Package agent implements the reasoning engine behind a session: planning,
// the iterative reason-act loop, tool dispatch and answer production. One
// Reasoner serves one session; each turn runs as a single Run call driven
// by the conductor.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagesense-ai/pagesense/core"
	"github.com/pagesense-ai/pagesense/internal/util"
	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/memory"
	"github.com/pagesense-ai/pagesense/metrics"
	"github.com/pagesense-ai/pagesense/store"
	"github.com/pagesense-ai/pagesense/tool"
	"github.com/pagesense-ai/pagesense/usage"
)

// Default loop bounds and windows.
const (
	DefaultMaxIterations      = 8
	DefaultObservationLimit   = 500
	DefaultThinkHistoryWindow = 3
	DefaultAnswerMaxTokens    = 1000
)

// Options configure a Reasoner.
type Options struct {
	// MaxIterations bounds the reason-act loop.
	MaxIterations int
	// ObservationTruncateChars truncates outbound observation events. The
	// stored execution history keeps the full text.
	ObservationTruncateChars int
	// ThinkHistoryWindow is the number of trailing history steps included
	// in each reasoning prompt.
	ThinkHistoryWindow int
	// AnswerMaxTokens caps direct-answer completions.
	AnswerMaxTokens int
	// CatalogLang selects the language of tool catalog text in prompts.
	CatalogLang string
	// Logger receives reasoning logs.
	Logger logging.Logger
	// Metrics receives turn, tool and LLM instrumentation.
	Metrics *metrics.Metrics
	// Usage receives token accounting records.
	Usage usage.Recorder
}

// Reasoner drives turns for one session.
type Reasoner struct {
	store      store.Store
	client     llm.Client
	registry   *tool.Registry
	supervisor *tool.Supervisor
	memory     *memory.Manager

	maxIterations    int
	observationLimit int
	historyWindow    int
	answerMaxTokens  int
	catalogLang      string

	logger  logging.Logger
	metrics *metrics.Metrics
	usage   usage.Recorder
}

// NewReasoner wires a Reasoner from its collaborators.
func NewReasoner(
	s store.Store,
	client llm.Client,
	registry *tool.Registry,
	supervisor *tool.Supervisor,
	mem *memory.Manager,
	optFns ...func(o *Options),
) *Reasoner {
	opts := Options{
		MaxIterations:            DefaultMaxIterations,
		ObservationTruncateChars: DefaultObservationLimit,
		ThinkHistoryWindow:       DefaultThinkHistoryWindow,
		AnswerMaxTokens:          DefaultAnswerMaxTokens,
		CatalogLang:              "en",
		Logger:                   logging.NoOpLogger{},
		Usage:                    usage.NopRecorder{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &Reasoner{
		store:            s,
		client:           client,
		registry:         registry,
		supervisor:       supervisor,
		memory:           mem,
		maxIterations:    opts.MaxIterations,
		observationLimit: opts.ObservationTruncateChars,
		historyWindow:    opts.ThinkHistoryWindow,
		answerMaxTokens:  opts.AnswerMaxTokens,
		catalogLang:      opts.CatalogLang,
		logger:           logging.OrNoOp(opts.Logger),
		metrics:          opts.Metrics,
		usage:            opts.Usage,
	}
}

// Run executes one turn to a terminal state, emitting events on the turn
// context as it goes. It returns the cancellation error when the turn was
// cancelled; terminal handling (completed, failed) is internal.
func (r *Reasoner) Run(tc *core.TurnContext) error {
	turn := tc.Turn
	started := time.Now()

	if err := tc.Err(); err != nil {
		return r.cancelTurn(tc, started)
	}

	tc.EmitEvent(core.NewStateEvent("loading_memory"))
	memCtx := r.memory.GetContext(tc.Context, tc.Query)
	if err := tc.Err(); err != nil {
		return r.cancelTurn(tc, started)
	}

	tc.EmitEvent(core.NewStateEvent("planning"))
	plan := r.plan(tc)
	if err := tc.Err(); err != nil {
		return r.cancelTurn(tc, started)
	}
	turn.Plan = plan
	tc.EmitEvent(core.NewPlanEvent(plan))

	if !plan.NeedsTools {
		return r.directAnswer(tc, memCtx, started)
	}

	if err := turn.Transition(core.TurnExecuting); err != nil {
		r.logger.Error("agent.turn.transition_failed", "turn_id", turn.ID, "error", err)
	}
	r.persistTurn(turn)

	for i := 1; i <= r.maxIterations; i++ {
		if err := tc.Err(); err != nil {
			return r.cancelTurn(tc, started)
		}
		tc.EmitEvent(core.NewIterationEvent(i, r.maxIterations))

		out, err := r.client.GenerateJSON(tc.Context, llm.Request{
			Prompt:       thinkPrompt(tc.Query, plan, turn.ExecutionHistory, r.historyWindow, r.registry.Descriptions(r.catalogLang)),
			SystemPrompt: thinkSystemPrompt,
		})
		if err != nil {
			if tc.Err() != nil {
				return r.cancelTurn(tc, started)
			}
			// Degraded completion: answer with an apology rather than
			// leaving the turn hanging.
			r.logger.Warn("agent.think.llm_failed", "turn_id", turn.ID, "iteration", i, "error", err)
			r.metrics.RecordLLMRequest("reasoning", "error", 0, 0)
			turn.Iterations = i
			return r.finishAnswer(tc, apologyAnswer, started)
		}
		r.recordUsage(tc, "reasoning", out.Usage, i)

		step := ParseStep(out.Raw)
		tc.EmitEvent(core.NewThoughtEvent(step.Thought))

		switch step.Kind {
		case StepFinalAnswer:
			turn.Iterations = i
			return r.finishAnswer(tc, step.FinalAnswer, started)
		case StepToolCall:
			r.invokeTool(tc, step)
		case StepMalformed:
			r.logger.Warn("agent.think.malformed", "turn_id", turn.ID, "iteration", i)
			turn.AppendStep(core.ReActStep{Thought: step.Thought})
		}
		turn.Iterations = i

		if err := tc.Err(); err != nil {
			return r.cancelTurn(tc, started)
		}
	}

	// Iteration cap reached without a final answer.
	msg := fmt.Sprintf("reached the iteration cap of %d without a final answer", r.maxIterations)
	tc.EmitEvent(core.NewErrorEvent("iteration_cap", msg))
	turn.Error = msg
	if err := turn.Transition(core.TurnFailed); err != nil {
		r.logger.Error("agent.turn.transition_failed", "turn_id", turn.ID, "error", err)
	}
	r.persistTurn(turn)
	r.metrics.RecordTurn("failed", time.Since(started).Seconds(), turn.Iterations)
	r.logger.Warn("agent.turn.iteration_cap", "turn_id", turn.ID, "iterations", turn.Iterations)
	return nil
}

// directAnswer handles turns whose plan needs no tools.
func (r *Reasoner) directAnswer(tc *core.TurnContext, memCtx *memory.Context, started time.Time) error {
	out, err := r.client.Generate(tc.Context, llm.Request{
		Prompt:       tc.Query,
		SystemPrompt: answerSystemPrompt(memCtx.UserProfile),
		MaxTokens:    r.answerMaxTokens,
	})
	if err != nil {
		if tc.Err() != nil {
			return r.cancelTurn(tc, started)
		}
		r.logger.Warn("agent.answer.llm_failed", "turn_id", tc.Turn.ID, "error", err)
		r.metrics.RecordLLMRequest("answer", "error", 0, 0)
		return r.finishAnswer(tc, apologyAnswer, started)
	}
	r.recordUsage(tc, "direct_answer", out.Usage, 0)
	return r.finishAnswer(tc, out.Content, started)
}

// finishAnswer emits the answer, writes memory back and marks the turn
// completed. Writeback happens after the answer event and before the
// terminal transition.
func (r *Reasoner) finishAnswer(tc *core.TurnContext, answer string, started time.Time) error {
	turn := tc.Turn
	tc.EmitEvent(core.NewAnswerEvent(answer))
	turn.Result = answer

	// Detached writeback: a cancel racing in after the answer event must
	// not skip the once-per-completed-turn compression.
	compressCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.memory.CompressAndSaveSession(compressCtx, historyTranscript(turn.ExecutionHistory)); err != nil {
		r.logger.Warn("agent.memory.compress_failed", "turn_id", turn.ID, "error", err)
	}

	if err := turn.Transition(core.TurnCompleted); err != nil {
		r.logger.Error("agent.turn.transition_failed", "turn_id", turn.ID, "error", err)
	}
	r.persistTurn(turn)
	r.metrics.RecordTurn("completed", time.Since(started).Seconds(), turn.Iterations)
	r.logger.Info("agent.turn.completed", "turn_id", turn.ID, "iterations", turn.Iterations)
	return nil
}

// cancelTurn marks the turn cancelled and reports the cancellation to the
// caller, which owns the final cancelled event.
func (r *Reasoner) cancelTurn(tc *core.TurnContext, started time.Time) error {
	turn := tc.Turn
	if err := turn.Transition(core.TurnCancelled); err != nil {
		r.logger.Error("agent.turn.transition_failed", "turn_id", turn.ID, "error", err)
	}
	r.persistTurn(turn)
	r.metrics.RecordTurn("cancelled", time.Since(started).Seconds(), turn.Iterations)
	r.logger.Info("agent.turn.cancelled", "turn_id", turn.ID, "iterations", turn.Iterations)
	return tc.Err()
}

// invokeTool dispatches one tool call through the supervisor, records the
// invocation row and appends the full observation to the history. Only the
// outbound event copy is truncated.
func (r *Reasoner) invokeTool(tc *core.TurnContext, step Step) {
	turn := tc.Turn
	tc.EmitEvent(core.NewActionEvent(step.Action))

	inv := core.NewToolInvocation(turn.ID, step.Action, step.ActionInput)
	inv.Status = core.InvocationRunning
	if err := r.store.CreateToolInvocation(tc.Context, inv); err != nil {
		r.logger.Warn("agent.invocation.create_failed", "turn_id", turn.ID, "tool", step.Action, "error", err)
	}

	res := r.supervisor.Invoke(tc.Context, step.Action, step.ActionInput, tc.UserID)

	status := invocationStatus(res)
	inv.Finish(status, res.Data, res.Error)
	// Detached write: the turn context may already be cancelled, but the
	// audit row must still reach its terminal status.
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.UpdateToolInvocation(updateCtx, inv); err != nil {
		r.logger.Warn("agent.invocation.update_failed", "invocation_id", inv.ID, "error", err)
	}

	observation := renderObservation(res)
	tc.EmitEvent(core.NewObservationEvent(util.Truncate(observation, r.observationLimit), res.Success))
	turn.AppendStep(core.ReActStep{
		Thought:     step.Thought,
		Action:      step.Action,
		ActionInput: step.ActionInput,
		Observation: observation,
	})
	r.metrics.RecordToolExecution(step.Action, string(status), float64(res.ExecutionMS)/1000)
}

// recordUsage forwards token accounting; failures there never touch the turn.
func (r *Reasoner) recordUsage(tc *core.TurnContext, operation string, u *llm.TokenUsage, iteration int) {
	if u == nil {
		r.metrics.RecordLLMRequest(operation, "success", 0, 0)
		return
	}
	r.metrics.RecordLLMRequest(operation, "success", u.PromptTokens, u.CompletionTokens)
	md := map[string]any{
		"operation":       operation,
		"conversation_id": tc.ConversationID,
		"document_id":     tc.DocumentID,
	}
	if iteration > 0 {
		md["iteration"] = iteration
	}
	r.usage.Record(tc.UserID, u.PromptTokens, u.CompletionTokens, "agent_execution", md)
}

// persistTurn writes the turn row on a detached context so terminal states
// survive turn cancellation.
func (r *Reasoner) persistTurn(turn *core.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.UpdateTurn(ctx, turn); err != nil {
		r.logger.Warn("agent.turn.persist_failed", "turn_id", turn.ID, "error", err)
	}
}

// renderObservation turns an envelope into the observation text fed back
// into the loop. Validation messages are surfaced verbatim so the model can
// correct its arguments.
func renderObservation(res *tool.Result) string {
	if res.Success {
		if res.Data == nil {
			return res.LocalizedMessage("en")
		}
		if s, ok := res.Data.(string); ok {
			return s
		}
		b, err := json.Marshal(res.Data)
		if err != nil {
			return fmt.Sprintf("%v", res.Data)
		}
		return string(b)
	}

	msg := res.LocalizedMessage("en")
	for _, ve := range res.ValidationErrors {
		msg += "; " + ve.Message
	}
	return msg
}

func invocationStatus(res *tool.Result) core.InvocationStatus {
	switch {
	case res.Success:
		return core.InvocationSuccess
	case res.Error == tool.CodeTimeout:
		return core.InvocationTimeout
	case res.Error == tool.CodeCancelled:
		return core.InvocationCancelled
	default:
		return core.InvocationFailed
	}
}
