package askqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	explain := fs.Bool("explain", false, "request a natural-language explanation (ask/generate)")
	limit := fs.Int("limit", 0, "history entry limit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))

	method := ""
	path := ""
	var body any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "ask":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/ask"
		body = map[string]any{"question": rest, "explain": *explain}
	case "generate":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "generate requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/generate"
		body = map[string]any{"question": rest, "explain": *explain}
	case "validate":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "validate requires a SQL statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/validate"
		body = map[string]any{"sql": rest}
	case "execute":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "execute requires a SQL statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/execute"
		body = map[string]any{"sql": rest}
	case "tables":
		method, path = http.MethodGet, "/v1/schema"
	case "table":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "table requires a table name")
			return 2
		}
		method, path = http.MethodGet, "/v1/schema/tables/"+url.PathEscape(rest)
	case "ddl":
		method, path = http.MethodGet, "/v1/schema/ddl"
	case "examples":
		method, path = http.MethodGet, "/v1/examples"
	case "history":
		method, path = http.MethodGet, "/v1/history"
		if *limit > 0 {
			path += fmt.Sprintf("?limit=%d", *limit)
		}
	case "archive-run":
		method, path = http.MethodPost, "/v1/history/archive"
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health               GET  /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                GET  /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask <question>       POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  generate <question>  POST /v1/generate")
	_, _ = fmt.Fprintln(w, "  validate <sql>       POST /v1/validate")
	_, _ = fmt.Fprintln(w, "  execute <sql>        POST /v1/execute")
	_, _ = fmt.Fprintln(w, "  tables               GET  /v1/schema")
	_, _ = fmt.Fprintln(w, "  table <name>         GET  /v1/schema/tables/{name}")
	_, _ = fmt.Fprintln(w, "  ddl                  GET  /v1/schema/ddl")
	_, _ = fmt.Fprintln(w, "  examples             GET  /v1/examples")
	_, _ = fmt.Fprintln(w, "  history              GET  /v1/history")
	_, _ = fmt.Fprintln(w, "  archive-run          POST /v1/history/archive")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
