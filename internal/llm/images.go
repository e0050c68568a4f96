package llm

import (
	"context"
	"errors"
)

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage calls the images/generations endpoint and returns either the
// hosted image URL or its base64 payload.
func (c *Client) GenerateImage(ctx context.Context, model, prompt, size string) (string, string, error) {
	if c.apiKey == "" {
		return "", "", errors.New("api key not configured")
	}
	var resp imageResponse
	if err := c.postJSON(ctx, "/images/generations", imageRequest{Model: model, Prompt: prompt, N: 1, Size: size}, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Data) == 0 {
		return "", "", errors.New("no image generated")
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}
