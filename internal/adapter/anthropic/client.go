// Package anthropic implements the LLM collaborator interfaces (URL
// classification, recipe extraction, video segment mapping) on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic SDK with the model and token settings shared by
// every LLM call in the service.
type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int64
}

// NewClient creates a configured Anthropic client.
func NewClient(apiKey, model string, maxTokens int) *Client {
	api := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Client{
		api:       api,
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// complete issues a single-turn text completion and returns the
// concatenated text blocks of the response.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}
	return collectText(resp)
}

// completeVision issues a single-turn completion whose user message carries
// one or more PNG screenshots ahead of the text prompt.
func (c *Client) completeVision(ctx context.Context, system, user string, screenshots [][]byte) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(screenshots)+1)
	for _, shot := range screenshots {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(shot)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(user))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic vision call failed: %w", err)
	}
	return collectText(resp)
}

func collectText(resp *anthropic.Message) (string, error) {
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no text in model response")
	}
	return out.String(), nil
}
