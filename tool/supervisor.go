package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/pagesense-ai/pagesense/internal/util"
	"github.com/pagesense-ai/pagesense/logging"
)

// CodeCancelled marks an envelope produced when the enclosing turn was
// cancelled while the tool was in flight. It is not a tool failure.
const CodeCancelled = "CANCELLED"

// Supervisor wraps every tool invocation with lookup, argument validation,
// ambient user id injection, a per-tool deadline and structured error
// capture. Blocking tool bodies are offloaded to a bounded worker pool;
// cooperative bodies run on the calling goroutine's scheduler.
type Supervisor struct {
	registry       *Registry
	defaultTimeout time.Duration
	workers        chan struct{}
	logger         logging.Logger
}

// SupervisorOptions configure a Supervisor.
type SupervisorOptions struct {
	// DefaultTimeout applies when a tool declares no timeout.
	DefaultTimeout time.Duration
	// WorkerPoolSize bounds concurrent blocking (Async()==false) bodies.
	WorkerPoolSize int
	// Logger receives supervision logs.
	Logger logging.Logger
}

// NewSupervisor creates a Supervisor over the registry.
func NewSupervisor(registry *Registry, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		DefaultTimeout: DefaultTimeout,
		WorkerPoolSize: 4,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.WorkerPoolSize < 1 {
		opts.WorkerPoolSize = 1
	}
	return &Supervisor{
		registry:       registry,
		defaultTimeout: opts.DefaultTimeout,
		workers:        make(chan struct{}, opts.WorkerPoolSize),
		logger:         logging.OrNoOp(opts.Logger),
	}
}

// Invoke runs the named tool through the full supervision pipeline and
// always returns a stamped envelope. userID is the ambient identity
// injected when the tool asks for it and the caller did not provide one.
func (s *Supervisor) Invoke(ctx context.Context, name string, args map[string]any, userID string) *Result {
	started := time.Now()
	if args == nil {
		args = map[string]any{}
	}

	t, ok := s.registry.Get(name)
	if !ok {
		s.logger.Warn("tool.invoke.unknown", "tool", name)
		res := Fail(CodeUnknownTool).
			WithMessages(fmt.Sprintf("未知工具: %s", name), fmt.Sprintf("unknown tool: %s", name))
		res.stamp(name, started, args)
		return res
	}

	if errs := util.ValidateParameters(args, t.Parameters()); len(errs) > 0 {
		s.logger.Warn("tool.invoke.validation_failed", "tool", name, "issues", len(errs))
		res := FailValidation(errs).
			WithMessages("参数校验失败", "parameter validation failed")
		res.stamp(name, started, args)
		return res
	}

	if t.WantsUserID() && userID != "" {
		if _, provided := args["user_id"]; !provided {
			args["user_id"] = userID
		}
	}

	timeout := t.Timeout()
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	res := s.run(ctx, t, args, timeout)
	res.stamp(name, started, args)

	if res.Success {
		s.logger.Info("tool.invoke.success", "tool", name, "duration_ms", res.ExecutionMS)
	} else {
		s.logger.Warn("tool.invoke.failed", "tool", name, "error", res.Error, "duration_ms", res.ExecutionMS)
	}
	return res
}

// run executes the tool body under its deadline. The body receives the
// deadline-bound context and is expected to honor it; on expiry the
// supervisor abandons the body rather than waiting it out.
func (s *Supervisor) run(ctx context.Context, t Tool, args map[string]any, timeout time.Duration) *Result {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fail(CodeToolError).
					WithMessages("工具执行异常", fmt.Sprintf("tool panicked: %v", r))
			}
		}()

		if !t.Async() {
			// Blocking body: take a worker slot first.
			select {
			case s.workers <- struct{}{}:
				defer func() { <-s.workers }()
			case <-execCtx.Done():
				return
			}
		}
		done <- t.Execute(execCtx, args)
	}()

	select {
	case res := <-done:
		if res == nil {
			return Fail(CodeToolError).WithMessages("工具未返回结果", "tool returned no result")
		}
		return res
	case <-execCtx.Done():
		if ctx.Err() != nil {
			// Parent cancellation, not a tool timeout.
			return Fail(CodeCancelled).WithMessages("已取消", "cancelled")
		}
		return Fail(CodeTimeout).
			WithMessages(
				fmt.Sprintf("工具 %s 执行超时", t.Name()),
				fmt.Sprintf("tool %s timed out after %s", t.Name(), timeout),
			)
	}
}
