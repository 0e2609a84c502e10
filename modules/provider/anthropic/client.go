package anthropic

import (
	"context"
	"net/http"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/pkg/message"
)

// Client is a provider bound to one set of credentials and one platform.
type Client struct {
	sdk    *sdkanthropic.Client
	kind   provider.Kind
	stream bool
}

// Complete sends a synchronous completion request to the Messages API.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params := convertRequest(req)

	var raw *http.Response
	msg, err := c.sdk.Messages.New(ctx, params, option.WithResponseInto(&raw))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err, raw)
	}

	resp := convertResponse(msg)
	resp.Request = describeResponse(raw)
	return resp, nil
}

// Stream implements provider.Streamer. When streaming is disabled in the
// module configuration the blocks of a synchronous call are replayed through
// onBlock instead.
func (c *Client) Stream(ctx context.Context, req provider.CompletionRequest, onBlock func(message.ContentBlock) error) (provider.CompletionResponse, error) {
	if !c.stream {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return resp, err
		}
		for _, b := range resp.Content {
			if err := onBlock(b); err != nil {
				return resp, err
			}
		}
		return resp, nil
	}
	return c.streamBlocks(ctx, req, onBlock)
}
