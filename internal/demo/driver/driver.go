package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Service periodically asks canned rental-catalog questions against a
// running API instance. It exists to generate realistic traffic for
// local development and load checks.
type Service struct {
	cfg    Config
	log    *slog.Logger
	http   *http.Client
	picker *questionPicker
}

type askRequest struct {
	Question string `json:"question"`
	Explain  bool   `json:"explain,omitempty"`
}

type askResponse struct {
	Generation struct {
		SQLText string `json:"sql_text"`
		IsValid bool   `json:"is_valid"`
	} `json:"generation"`
	Validation struct {
		Passed   bool   `json:"passed"`
		Category string `json:"category,omitempty"`
	} `json:"validation"`
	Result *struct {
		Succeeded bool `json:"succeeded"`
		RowCount  int  `json:"row_count"`
	} `json:"result"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.DriverID) == "" {
		return nil, fmt.Errorf("driver id is required")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:    cfg,
		log:    logger,
		http:   client,
		picker: newQuestionPicker(cfg.Seed),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	ready := false

	for {
		if !ready {
			if err := s.checkReady(ctx); err != nil {
				s.log.Error("api not ready yet", slog.Any("error", err))
			} else {
				ready = true
			}
		} else {
			if err := s.AskOnce(ctx); err != nil {
				s.log.Error("demo question failed", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) checkReady(ctx context.Context) error {
	status, body, err := s.doJSON(ctx, http.MethodGet, "/v1/ready", nil, nil)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("readiness check status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

// AskOnce sends a single question and logs the shape of the answer.
func (s *Service) AskOnce(ctx context.Context) error {
	question := s.picker.Next()
	request := askRequest{
		Question: question,
		Explain:  s.cfg.Explain || s.picker.WantExplanation(s.cfg.ExplainRatio),
	}

	var response askResponse
	status, body, err := s.doJSON(ctx, http.MethodPost, "/v1/ask", request, &response)
	if err != nil {
		return fmt.Errorf("ask request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("ask request status %d: %s", status, strings.TrimSpace(string(body)))
	}

	attrs := []any{
		slog.String("driver_id", s.cfg.DriverID),
		slog.String("question", question),
		slog.Bool("generation_valid", response.Generation.IsValid),
		slog.Bool("validation_passed", response.Validation.Passed),
	}
	if response.Validation.Category != "" {
		attrs = append(attrs, slog.String("validation_category", response.Validation.Category))
	}
	if response.Result != nil {
		attrs = append(attrs,
			slog.Bool("succeeded", response.Result.Succeeded),
			slog.Int("row_count", response.Result.RowCount),
		)
	}
	s.log.Info("demo question answered", attrs...)
	return nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
