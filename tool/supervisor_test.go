package tool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervised(t *testing.T, tools ...Tool) *Supervisor {
	t.Helper()
	r := NewRegistry(nil)
	for _, tl := range tools {
		r.Register(tl)
	}
	return NewSupervisor(r)
}

func TestSupervisorUnknownTool(t *testing.T) {
	s := newSupervised(t)
	res := s.Invoke(context.Background(), "ghost", nil, "u1")
	assert.False(t, res.Success)
	assert.Equal(t, CodeUnknownTool, res.Error)
	assert.Equal(t, "ghost", res.ToolName)
	assert.Contains(t, res.Metadata, "execution_timestamp")
}

func TestSupervisorValidation(t *testing.T) {
	s := newSupervised(t, echoTool("echo", "search"))
	res := s.Invoke(context.Background(), "echo", map[string]any{}, "u1")
	assert.False(t, res.Success)
	assert.Equal(t, CodeValidationError, res.Error)
	require.Len(t, res.ValidationErrors, 1)
	assert.Contains(t, res.ValidationErrors[0].Message, "Missing required parameter: query")
}

func TestSupervisorSuccessStampsEnvelope(t *testing.T) {
	s := newSupervised(t, echoTool("echo", "search"))
	res := s.Invoke(context.Background(), "echo", map[string]any{"query": "flow"}, "u1")
	require.True(t, res.Success)
	assert.Equal(t, "flow", res.Data)
	assert.Equal(t, "echo", res.ToolName)
	assert.GreaterOrEqual(t, res.ExecutionMS, int64(0))
	params, ok := res.Metadata["parameters_used"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "flow", params["query"])
}

func TestSupervisorUserIDInjection(t *testing.T) {
	var seen map[string]any
	spy := NewFunctionTool("spy", "test", &ParameterSpec{},
		func(ctx context.Context, args map[string]any) *Result {
			seen = args
			return Ok(nil)
		},
		WithUserIDInjection())
	s := newSupervised(t, spy)

	s.Invoke(context.Background(), "spy", map[string]any{}, "u42")
	assert.Equal(t, "u42", seen["user_id"])

	// Caller-provided value wins.
	s.Invoke(context.Background(), "spy", map[string]any{"user_id": "explicit"}, "u42")
	assert.Equal(t, "explicit", seen["user_id"])
}

func TestSupervisorTimeout(t *testing.T) {
	slow := NewFunctionTool("slow", "test", &ParameterSpec{},
		func(ctx context.Context, args map[string]any) *Result {
			select {
			case <-time.After(5 * time.Second):
				return Ok("too late")
			case <-ctx.Done():
				return Fail("interrupted")
			}
		},
		WithTimeout(30*time.Millisecond))
	s := newSupervised(t, slow)

	started := time.Now()
	res := s.Invoke(context.Background(), "slow", nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, CodeTimeout, res.Error)
	assert.True(t, strings.Contains(strings.ToLower(res.Error), "timeout"))
	assert.Less(t, time.Since(started), time.Second)
}

func TestSupervisorToolPanic(t *testing.T) {
	bomb := NewFunctionTool("bomb", "test", &ParameterSpec{},
		func(ctx context.Context, args map[string]any) *Result {
			panic("kaboom")
		})
	s := newSupervised(t, bomb)

	res := s.Invoke(context.Background(), "bomb", nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, CodeToolError, res.Error)
	assert.Contains(t, res.MessageEn, "kaboom")
}

func TestSupervisorParentCancellation(t *testing.T) {
	blocked := NewFunctionTool("blocked", "test", &ParameterSpec{},
		func(ctx context.Context, args map[string]any) *Result {
			<-ctx.Done()
			return Fail("interrupted")
		})
	s := newSupervised(t, blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := s.Invoke(ctx, "blocked", nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, CodeCancelled, res.Error)
}

func TestSupervisorBlockingToolRunsOnPool(t *testing.T) {
	blocking := NewFunctionTool("blocking", "test", &ParameterSpec{},
		func(ctx context.Context, args map[string]any) *Result {
			return Ok("done")
		},
		WithBlocking())
	s := newSupervised(t, blocking)

	res := s.Invoke(context.Background(), "blocking", nil, "")
	require.True(t, res.Success)
	assert.Equal(t, "done", res.Data)
}

func TestResultLocalizedMessage(t *testing.T) {
	res := Ok(nil)
	assert.Equal(t, "operation succeeded", res.LocalizedMessage("en"))
	assert.Equal(t, "操作成功", res.LocalizedMessage("zh"))

	res = Fail("TIMEOUT").WithMessages("超时了", "it timed out")
	assert.Equal(t, "it timed out", res.LocalizedMessage("en"))
	assert.Equal(t, "超时了", res.LocalizedMessage("zh"))

	res = Fail("TOOL_ERROR")
	assert.Contains(t, res.LocalizedMessage("en"), "TOOL_ERROR")
}

func TestResultContract(t *testing.T) {
	ok := Ok("data")
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)
	assert.Empty(t, ok.ValidationErrors)

	bad := FailValidation([]ValidationError{{Field: "q", Message: "missing"}})
	assert.False(t, bad.Success)
	assert.NotEmpty(t, bad.ValidationErrors)
}
