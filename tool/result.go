package tool

import (
	"time"

	"github.com/pagesense-ai/pagesense/internal/util"
)

// Error codes stamped on failed envelopes. The loop and clients branch on
// these, so they are part of the wire contract.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeValidationError = "VALIDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeToolError       = "TOOL_ERROR"
)

// Result is the uniform envelope for tool outputs and internal status
// returns. Invariant: Success implies Error == "" and no ValidationErrors;
// a failed envelope carries at least one of the two.
type Result struct {
	Success          bool                   `json:"success"`
	Data             any                    `json:"data,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ValidationErrors []util.ValidationError `json:"validation_errors,omitempty"`
	ExecutionMS      int64                  `json:"execution_ms"`
	ToolName         string                 `json:"tool_name,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
	MessageZh        string                 `json:"message_zh,omitempty"`
	MessageEn        string                 `json:"message_en,omitempty"`
}

// Ok builds a success envelope carrying data.
func Ok(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a failure envelope with an error code/message.
func Fail(errMsg string) *Result {
	return &Result{Success: false, Error: errMsg}
}

// FailValidation builds a failure envelope listing each validation issue.
func FailValidation(errs []util.ValidationError) *Result {
	return &Result{Success: false, Error: CodeValidationError, ValidationErrors: errs}
}

// WithMessages sets the bilingual preset messages.
func (r *Result) WithMessages(zh, en string) *Result {
	r.MessageZh = zh
	r.MessageEn = en
	return r
}

// LocalizedMessage returns the preset message for lang ("zh" or "en"),
// falling back to a default derived from the outcome.
func (r *Result) LocalizedMessage(lang string) string {
	if lang == "zh" {
		if r.MessageZh != "" {
			return r.MessageZh
		}
		if r.Success {
			return "操作成功"
		}
		if r.Error != "" {
			return "操作失败: " + r.Error
		}
		return "操作失败"
	}
	if r.MessageEn != "" {
		return r.MessageEn
	}
	if r.Success {
		return "operation succeeded"
	}
	if r.Error != "" {
		return "operation failed: " + r.Error
	}
	return "operation failed"
}

// SetMetadata stores a key on the envelope's metadata map, allocating lazily.
func (r *Result) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// stamp annotates the envelope with supervision metadata before return.
func (r *Result) stamp(toolName string, started time.Time, args map[string]any) {
	r.ToolName = toolName
	r.ExecutionMS = time.Since(started).Milliseconds()
	r.SetMetadata("parameters_used", args)
	r.SetMetadata("execution_timestamp", time.Now().UTC().Format(time.RFC3339))
}
