// Package exec is a thin client for the remote code-execution engine (a
// Piston-compatible HTTP API). The engine is opaque: one request, one
// response, no state shared with the rooms.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// движок получает таймауты в миллисекундах
	compileTimeoutMs = 10_000
	runTimeoutMs     = 10_000
)

type Client struct {
	url     string
	timeout time.Duration
	hc      *http.Client
}

type Options struct {
	URL     string
	Timeout time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("exec client: empty engine url")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		url:     opts.URL,
		timeout: opts.Timeout,
		hc:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

type request struct {
	Language       string `json:"language"`
	Version        string `json:"version"`
	Files          []file `json:"files"`
	Stdin          string `json:"stdin"`
	CompileTimeout int    `json:"compile_timeout"`
	RunTimeout     int    `json:"run_timeout"`
}

type file struct {
	Content string `json:"content"`
}

type stage struct {
	Output string `json:"output"`
	Code   int    `json:"code"`
}

type response struct {
	Run     *stage `json:"run"`
	Compile *stage `json:"compile"`
	Message string `json:"message"`
}

// Result carries whatever the engine printed. Failed is true when either
// stage exited non-zero; the output is still worth broadcasting.
type Result struct {
	Output string
	Failed bool
}

// Run submits the code and picks the most useful output: run output first,
// then compiler output, then the engine's own message.
func (c *Client) Run(ctx context.Context, language, code string) (Result, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{
		Language:       language,
		Version:        "*",
		Files:          []file{{Content: code}},
		CompileTimeout: compileTimeoutMs,
		RunTimeout:     runTimeoutMs,
	})
	if err != nil {
		return Result{}, fmt.Errorf("exec client: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(rpcCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("exec client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("exec client: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("exec client: engine responded %d", res.StatusCode)
	}

	var er response
	if err := json.NewDecoder(res.Body).Decode(&er); err != nil {
		return Result{}, fmt.Errorf("exec client: decode: %w", err)
	}

	out := Result{Failed: stageFailed(er.Run) || stageFailed(er.Compile)}
	switch {
	case er.Run != nil && er.Run.Output != "":
		out.Output = er.Run.Output
	case er.Compile != nil && er.Compile.Output != "":
		out.Output = er.Compile.Output
	case er.Message != "":
		out.Output = er.Message
	default:
		out.Output = "No output"
	}
	return out, nil
}

func stageFailed(s *stage) bool {
	return s != nil && s.Code != 0
}
