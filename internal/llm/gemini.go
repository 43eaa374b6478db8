package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type geminiClient struct {
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	timeout         time.Duration
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details []struct {
		Type       string `json:"@type"`
		RetryDelay string `json:"retryDelay"`
	} `json:"details"`
}

func (c *geminiClient) Provider() string {
	return "gemini"
}

func (c *geminiClient) Model() string {
	return c.model
}

func (c *geminiClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	payload := map[string]any{}

	if strings.TrimSpace(prompt.System) != "" {
		payload["system_instruction"] = map[string]any{
			"parts": []map[string]any{{"text": prompt.System}},
		}
	}
	if strings.TrimSpace(prompt.User) == "" {
		return "", fmt.Errorf("empty prompt")
	}
	payload["contents"] = []map[string]any{{
		"role":  "user",
		"parts": []map[string]any{{"text": prompt.User}},
	}}

	genCfg := map[string]any{}
	if c.temperature > 0 {
		genCfg["temperature"] = c.temperature
	}
	if c.maxOutputTokens > 0 {
		genCfg["maxOutputTokens"] = c.maxOutputTokens
	}
	if len(genCfg) > 0 {
		payload["generationConfig"] = genCfg
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	httpClient := &http.Client{Timeout: c.timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("gemini error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return "", err
	}

	if resp.StatusCode == http.StatusTooManyRequests || (parsed.Error != nil && parsed.Error.Code == http.StatusTooManyRequests) {
		return "", rateLimitFromGemini(resp.StatusCode, parsed.Error, respBody)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return "", fmt.Errorf("gemini error: %s", parsed.Error.Message)
	}

	var sb strings.Builder
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		break
	}
	text := strings.TrimSpace(sb.String())
	if text == "" && len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("gemini response had no candidates")
	}
	return text, nil
}

func rateLimitFromGemini(status int, ge *geminiError, raw []byte) *RateLimitError {
	rle := &RateLimitError{
		Provider:   "gemini",
		StatusCode: status,
		Message:    strings.TrimSpace(string(raw)),
	}
	if ge == nil {
		return rle
	}
	if strings.TrimSpace(ge.Message) != "" {
		rle.Message = ge.Message
	}
	for _, detail := range ge.Details {
		if !strings.HasSuffix(detail.Type, "RetryInfo") {
			continue
		}
		// retryDelay arrives as a proto duration string such as "26s" or "12.5s".
		if d, err := time.ParseDuration(strings.TrimSpace(detail.RetryDelay)); err == nil && d > 0 {
			rle.RetryAfter = d
		}
	}
	return rle
}
