package insightbotctl

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
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
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

	fs := flag.NewFlagSet("insightbotctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "insightbot API base URL")
	sessionID := fs.String("session", defaults.SessionID, "session id sent with ask")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")
	rowLimit := fs.Int("row-limit", 0, "row limit for query")

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
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "stats":
		req = request{method: http.MethodGet, path: "/v1/stats"}
	case "schema":
		req = request{method: http.MethodGet, path: "/v1/schema"}
	case "new-session":
		req = request{method: http.MethodPost, path: "/v1/sessions"}
	case "ask":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		body := map[string]any{"question": rest}
		if strings.TrimSpace(*sessionID) != "" {
			body["session_id"] = strings.TrimSpace(*sessionID)
		}
		req = request{method: http.MethodPost, path: "/v1/ask", body: body}
	case "query":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "query requires a SQL statement")
			return 2
		}
		req = request{method: http.MethodPost, path: "/v1/query", body: map[string]any{"sql": rest, "row_limit": *rowLimit}}
	case "history":
		if rest == "" {
			rest = strings.TrimSpace(*sessionID)
		}
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "history requires a session id")
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/sessions/" + url.PathEscape(rest) + "/history"}
	case "flush-cache":
		req = request{method: http.MethodPost, path: "/v1/cache/flush"}
	case "reload":
		req = request{method: http.MethodPost, path: "/v1/reload"}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, req.body)
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

func doRequest(ctx context.Context, client *http.Client, method, endpoint string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
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
	_, _ = fmt.Fprintln(w, "usage: insightbotctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  stats               GET /v1/stats")
	_, _ = fmt.Fprintln(w, "  schema              GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  new-session         POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  ask <question>      POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  query <sql>         POST /v1/query")
	_, _ = fmt.Fprintln(w, "  history <session>   GET /v1/sessions/{session}/history")
	_, _ = fmt.Fprintln(w, "  flush-cache         POST /v1/cache/flush")
	_, _ = fmt.Fprintln(w, "  reload              POST /v1/reload")
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
