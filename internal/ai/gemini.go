package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type Client struct {
	client *genai.Client
	model  string
}

type cleanTitlesResult struct {
	Titles []string `json:"titles"`
}

// NewClient returns nil when no API key is configured; a nil *Client is safe
// to use and leaves titles untouched.
func NewClient(ctx context.Context, apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, model: modelID}, nil
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"titles": {
					Type:        genai.TypeArray,
					Description: "One cleaned title per input title, in the same order.",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"titles"},
		},
	}
}

// CleanTitles shortens marketplace product titles to readable 3-12 word
// names. The result always has the same length as titles; on any failure the
// input is returned alongside the error.
func (c *Client) CleanTitles(ctx context.Context, titles []string) ([]string, error) {
	if c == nil || c.client == nil || len(titles) == 0 {
		return titles, nil
	}

	input, err := json.Marshal(titles)
	if err != nil {
		return titles, err
	}
	prompt := fmt.Sprintf(`
Clean up these Amazon product titles for a chat notification.

Titles (JSON array): %s

Task:
1. Keep brand, product type and the key distinguishing spec (size, capacity, pack count).
2. Drop keyword stuffing, marketing adjectives and compatibility lists.
3. Return 3-12 words per title, one output per input, same order.

Output JSON adhering to the schema.
`, input)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), generationConfig())
	if err != nil {
		return titles, fmt.Errorf("gemini generation failed: %w", err)
	}

	cleaned, err := parseCleanTitles(resp.Text(), len(titles))
	if err != nil {
		return titles, err
	}
	return cleaned, nil
}

func parseCleanTitles(text string, want int) ([]string, error) {
	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(text)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var result cleanTitlesResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonStr)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if len(result.Titles) != want {
		return nil, fmt.Errorf("gemini returned %d titles, want %d", len(result.Titles), want)
	}
	for i, title := range result.Titles {
		if strings.TrimSpace(title) == "" {
			return nil, fmt.Errorf("gemini returned empty title at index %d", i)
		}
	}
	return result.Titles, nil
}
