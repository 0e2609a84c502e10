package tool

import (
	"fmt"

	"github.com/flemzord/agentbridge/pkg/message"
)

// Result is the outcome of one tool invocation. Every field is optional.
type Result struct {
	// Output is the primary textual output.
	Output string `json:"output"`

	// Error is a failure description. A non-empty Error marks the result
	// as failed.
	Error string `json:"error"`

	// System is an out-of-band annotation for the model.
	System string `json:"system"`

	// Base64Image is a base64-encoded PNG, typically a screenshot.
	Base64Image string `json:"base64_image"`
}

// ErrorResult builds a failed result from an error.
func ErrorResult(err error) Result {
	return Result{Error: err.Error()}
}

// Errorf builds a failed result from a format string.
func Errorf(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// IsError reports whether the result represents a failure.
func (r Result) IsError() bool {
	return r.Error != ""
}

// Block converts the result into a tool_result content block answering
// toolUseID. A failed result carries only its error text and the is_error
// flag. Otherwise the output text and the image become nested blocks. A
// system annotation is prepended to the text wrapped in <system> tags.
func (r Result) Block(toolUseID string) message.ContentBlock {
	var content []message.ContentBlock

	if r.IsError() {
		content = append(content, message.NewTextBlock(withSystem(r.System, r.Error)))
		return message.NewToolResultBlock(toolUseID, content, true)
	}

	if r.Output != "" {
		content = append(content, message.NewTextBlock(withSystem(r.System, r.Output)))
	}
	if r.Base64Image != "" {
		content = append(content, message.NewImageBlock("image/png", r.Base64Image))
	}
	return message.NewToolResultBlock(toolUseID, content, false)
}

func withSystem(system, text string) string {
	if system == "" {
		return text
	}
	return "<system>" + system + "</system>\n" + text
}
