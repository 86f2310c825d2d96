package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/leaderboard"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/pkg/types"
)

// TokenProvider hands out the bearer credential of the signed-in user.
// ok=false means unauthenticated, which is not an error.
type TokenProvider interface {
	Token(ctx context.Context) (token string, ok bool)
}

// StaticToken is a fixed credential; the empty string means signed out.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

type Client struct {
	base   string
	http   *http.Client
	tokens TokenProvider
	log    *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithTokens(tp TokenProvider) Option    { return func(c *Client) { c.tokens = tp } }
func WithLogger(l *zap.Logger) Option       { return func(c *Client) { c.log = l } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// Challenge looks up one challenge. A missing challenge is ErrNotFound.
func (c *Client) Challenge(ctx context.Context, id string) (Challenge, error) {
	var ch Challenge
	err := c.do(ctx, http.MethodGet, "/api/challenges/"+url.PathEscape(id), nil, &ch)
	return ch, err
}

func (c *Client) Challenges(ctx context.Context) ([]Challenge, error) {
	var list []Challenge
	err := c.do(ctx, http.MethodGet, "/api/challenges", nil, &list)
	return list, err
}

// Submit sends the full code for scoring. A response with success=false is a
// *RejectedError; failing to reach the service is a *TransportError.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/submissions", req, &res); err != nil {
		return SubmitResult{}, err
	}
	if !res.Success {
		return SubmitResult{}, &RejectedError{Status: http.StatusOK, Message: res.Feedback}
	}
	return res, nil
}

// Leaderboard fetches the ranked snapshot for a scope: "global" or a challenge id.
func (c *Client) Leaderboard(ctx context.Context, scope string) ([]leaderboard.Entry, error) {
	path := "/api/leaderboard/global"
	if scope != types.ScopeGlobal {
		path = "/api/leaderboard/challenge/" + url.PathEscape(scope)
	}
	var entries []leaderboard.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// BestScores fetches the per-user board, already ordered by the service.
func (c *Client) BestScores(ctx context.Context) ([]BestScore, error) {
	var rows []BestScore
	err := c.do(ctx, http.MethodGet, "/api/leaderboard", nil, &rows)
	return rows, err
}

// UserSubmissions lists the signed-in user's past submissions.
func (c *Client) UserSubmissions(ctx context.Context) ([]Submission, error) {
	var subs []Submission
	err := c.do(ctx, http.MethodGet, "/api/submissions/user", nil, &subs)
	return subs, err
}

func (c *Client) WeeklyHistory(ctx context.Context) ([]WeeklyStat, error) {
	var stats []WeeklyStat
	err := c.do(ctx, http.MethodGet, "/api/user-stats/history", nil, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &RejectedError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: "decode " + path, Err: err}
	}
	return nil
}
