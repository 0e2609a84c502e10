package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/flemzord/agentbridge/internal/provider"
)

// errorBody is the JSON error envelope of the Messages API.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapError turns an SDK failure into a *provider.APIError. Cancellation is
// returned untouched. raw is the response captured by the transport, used
// when the SDK error does not carry its request.
func mapError(err error, raw *http.Response) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sdkErr *sdkanthropic.Error
	if !errors.As(err, &sdkErr) {
		return &provider.APIError{Request: describeResponse(raw), Err: err}
	}

	var body errorBody
	decoded := json.Unmarshal([]byte(sdkErr.RawJSON()), &body) == nil

	out := &provider.APIError{
		StatusCode: sdkErr.StatusCode,
		Type:       body.Error.Type,
		Request:    describeRequest(sdkErr.Request),
	}
	if out.Request == nil {
		out.Request = describeResponse(raw)
	}
	if sdkErr.Response != nil {
		out.RequestID = sdkErr.Response.Header.Get("request-id")
	}

	detail := body.Error.Message
	if detail == "" {
		detail = sdkErr.Error()
	}

	class := provider.Classify(sdkErr.StatusCode, body.Error.Type)
	if class == nil && sdkErr.StatusCode == http.StatusBadRequest {
		if (!decoded || body.Error.Type == "invalid_request_error") && tooLong(detail) {
			class = provider.ErrContextLength
		}
	}
	if class != nil {
		out.Err = fmt.Errorf("%w: %s", class, detail)
	} else {
		out.Err = fmt.Errorf("anthropic: %w", err)
	}
	return out
}

// tooLong reports whether an invalid request message is about the
// context window.
func tooLong(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"context length", "prompt is too long", "too many tokens", "token limit"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
