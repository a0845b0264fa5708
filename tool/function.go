package tool

import (
	"context"
	"time"
)

// FunctionTool adapts a plain Go function into a Tool. It has no internal
// mutable state after construction and is safe for concurrent use.
type FunctionTool struct {
	name          string
	category      string
	descriptionEn string
	descriptionZh string
	parameters    *ParameterSpec
	timeout       time.Duration
	maxRetries    int
	async         bool
	wantsUserID   bool
	fn            func(ctx context.Context, args map[string]any) *Result
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
func NewFunctionTool(
	name, category string,
	parameters *ParameterSpec,
	fn func(ctx context.Context, args map[string]any) *Result,
	optFns ...func(t *FunctionTool),
) *FunctionTool {
	t := &FunctionTool{
		name:       name,
		category:   category,
		parameters: parameters,
		timeout:    DefaultTimeout,
		async:      true,
		fn:         fn,
	}
	for _, fn := range optFns {
		fn(t)
	}
	return t
}

// WithDescriptions sets the bilingual catalog descriptions.
func WithDescriptions(en, zh string) func(t *FunctionTool) {
	return func(t *FunctionTool) {
		t.descriptionEn = en
		t.descriptionZh = zh
	}
}

// WithTimeout overrides the per-invocation deadline.
func WithTimeout(d time.Duration) func(t *FunctionTool) {
	return func(t *FunctionTool) { t.timeout = d }
}

// WithMaxRetries sets the advisory self-retry budget.
func WithMaxRetries(n int) func(t *FunctionTool) {
	return func(t *FunctionTool) { t.maxRetries = n }
}

// WithBlocking marks the body CPU/DB-bound so the supervisor offloads it to
// the worker pool.
func WithBlocking() func(t *FunctionTool) {
	return func(t *FunctionTool) { t.async = false }
}

// WithUserIDInjection asks the supervisor to inject the ambient user id.
func WithUserIDInjection() func(t *FunctionTool) {
	return func(t *FunctionTool) { t.wantsUserID = true }
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Category returns the catalog category.
func (t *FunctionTool) Category() string { return t.category }

// Description returns the description for the requested language.
func (t *FunctionTool) Description(lang string) string {
	if lang == "zh" && t.descriptionZh != "" {
		return t.descriptionZh
	}
	return t.descriptionEn
}

// Parameters returns the declared argument spec.
func (t *FunctionTool) Parameters() *ParameterSpec { return t.parameters }

// Timeout returns the per-invocation deadline.
func (t *FunctionTool) Timeout() time.Duration { return t.timeout }

// MaxRetries returns the advisory self-retry budget.
func (t *FunctionTool) MaxRetries() int { return t.maxRetries }

// Async reports whether the body is cooperative.
func (t *FunctionTool) Async() bool { return t.async }

// WantsUserID reports whether the ambient user id should be injected.
func (t *FunctionTool) WantsUserID() bool { return t.wantsUserID }

// Execute runs the wrapped function. A nil envelope from the body is
// normalized to a TOOL_ERROR so callers always receive a usable Result.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) *Result {
	res := t.fn(ctx, args)
	if res == nil {
		return Fail(CodeToolError).WithMessages("工具未返回结果", "tool returned no result")
	}
	return res
}
