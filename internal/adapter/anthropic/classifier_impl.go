package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const classifySystemPrompt = `You classify URLs from a food website. For each URL decide, from the URL alone, whether it most likely points at a single recipe page. Respond with ONLY a JSON object mapping each input URL to true or false. No markdown, no explanation.`

// ClassifierImpl implements the URLClassifier interface with a single
// boolean-map classification call per sub-batch.
type ClassifierImpl struct {
	client *Client
}

// NewClassifier creates a new ClassifierImpl.
func NewClassifier(client *Client) *ClassifierImpl {
	return &ClassifierImpl{client: client}
}

// ClassifyURLs asks the model for an is-recipe verdict per URL. URLs absent
// from the response are treated as false rather than failing the batch.
func (c *ClassifierImpl) ClassifyURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}

	var prompt strings.Builder
	prompt.WriteString("URLs:\n")
	for _, u := range urls {
		prompt.WriteString(u)
		prompt.WriteByte('\n')
	}

	raw, err := c.client.complete(ctx, classifySystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	verdicts, err := parseVerdicts(raw)
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool, len(urls))
	for _, u := range urls {
		result[u] = verdicts[u]
	}
	return result, nil
}

// parseVerdicts decodes the model's URL->bool map, falling back to the
// regex-based repair path when the JSON is only nearly valid.
func parseVerdicts(raw string) (map[string]bool, error) {
	var verdicts map[string]bool
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &verdicts); err == nil {
		return verdicts, nil
	}
	if err := json.Unmarshal([]byte(repairJSON(raw)), &verdicts); err != nil {
		return nil, fmt.Errorf("classification response is not valid JSON after repair: %w", err)
	}
	return verdicts, nil
}
