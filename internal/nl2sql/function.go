package nl2sql

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

type FunctionConfig struct {
	URL         string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

// FunctionGenerator invokes a hosted model function over a plain HTTP POST.
// The function wraps a foundation model and answers either
// {"response": {"content": ...}} or {"errorMessage": ...}.
type FunctionGenerator struct {
	url         string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	client      *http.Client
}

func NewFunctionGenerator(cfg FunctionConfig) (*FunctionGenerator, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("function URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	topP := cfg.TopP
	if topP <= 0 {
		topP = 0.9
	}
	return &FunctionGenerator{
		url:         strings.TrimSpace(cfg.URL),
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		topP:        topP,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (g *FunctionGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := checkRequest(req); err != nil {
		return Result{}, err
	}

	payload := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(req)},
		},
		"model_kwargs": map[string]any{
			"maxTokenCount": g.maxTokens,
			"temperature":   g.temperature,
			"topP":          g.topP,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal function payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build function request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("invoke model function: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read function response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("model function failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Response struct {
			Content string `json:"content"`
		} `json:"response"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode function response: %w", err)
	}
	if parsed.ErrorMessage != "" {
		return Result{}, fmt.Errorf("model function error: %s", parsed.ErrorMessage)
	}

	sqlText, explanation := parseCompletion(parsed.Response.Content)
	if sqlText == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:         sqlText,
		Explanation: explanation,
		Provider:    "function",
		Model:       g.model,
	}, nil
}
