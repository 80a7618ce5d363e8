package punchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	endpointRoster    = "roster"
	endpointRange     = "punches_range"
	endpointSince     = "punches_since"
	pathRoster        = "/api/DownloadEmployeeMaster"
	pathPunchData     = "/api/DownloadPunchData"
	pathLastPunchData = "/api/DownloadLastPunchData"
)

// Client talks to the provider's HTTP API.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	limiter    *rate.Limiter
	location   *time.Location
}

var _ provider.Client = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.ProviderConfig, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: AuthHeader(cfg.CorporateID, cfg.Username, cfg.Password),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		location:   loc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Error bool   `json:"Error"`
	Msg   string `json:"Msg"`
}

type rosterResponse struct {
	envelope
	EmpMaster []json.RawMessage `json:"EmpMaster"`
}

type rosterRow struct {
	Empcode string `json:"Empcode"`
	Name    string `json:"Name"`
	Email   string `json:"Email"`
}

type punchResponse struct {
	envelope
	PunchData  []json.RawMessage `json:"PunchData"`
	LastRecord string            `json:"LastRecord"`
}

type punchRow struct {
	Empcode   string `json:"Empcode"`
	PunchDate string `json:"PunchDate"`
}

// Roster implements provider.Client.
func (c *Client) Roster(ctx context.Context) ([]provider.Employee, error) {
	q := url.Values{}
	q.Set("Empcode", provider.AllEmployees)

	var resp rosterResponse
	if err := c.get(ctx, endpointRoster, pathRoster, q, &resp); err != nil {
		return nil, err
	}

	employees := make([]provider.Employee, 0, len(resp.EmpMaster))
	for _, raw := range resp.EmpMaster {
		var row rosterRow
		// Undecodable rows keep an empty code and are reported by the resolver.
		_ = json.Unmarshal(raw, &row)
		employees = append(employees, provider.Employee{
			Code:  strings.TrimSpace(row.Empcode),
			Name:  strings.TrimSpace(row.Name),
			Email: strings.TrimSpace(row.Email),
			Raw:   raw,
		})
	}
	return employees, nil
}

// PunchesBetween implements provider.Client.
func (c *Client) PunchesBetween(ctx context.Context, from, to time.Time, employeeFilter string) ([]provider.PunchEvent, error) {
	q := url.Values{}
	q.Set("Empcode", filterOrAll(employeeFilter))
	q.Set("FromDate", FormatRangeDate(from, c.location))
	q.Set("ToDate", FormatRangeDate(to, c.location))

	var resp punchResponse
	if err := c.get(ctx, endpointRange, pathPunchData, q, &resp); err != nil {
		return nil, err
	}
	return c.decodePunches(resp.PunchData), nil
}

// PunchesSince implements provider.Client.
func (c *Client) PunchesSince(ctx context.Context, cursor provider.Cursor, employeeFilter string) (provider.PunchPage, error) {
	q := url.Values{}
	q.Set("Empcode", filterOrAll(employeeFilter))
	q.Set("LastRecord", cursor.String())

	var resp punchResponse
	if err := c.get(ctx, endpointSince, pathLastPunchData, q, &resp); err != nil {
		return provider.PunchPage{}, err
	}

	page := provider.PunchPage{
		Events: c.decodePunches(resp.PunchData),
		Next:   cursor,
	}
	if resp.LastRecord != "" {
		next, err := provider.ParseCursor(resp.LastRecord)
		if err != nil {
			return provider.PunchPage{}, &provider.RequestError{StatusCode: http.StatusOK, Message: err.Error()}
		}
		page.Next = next
	}
	return page, nil
}

func (c *Client) decodePunches(rows []json.RawMessage) []provider.PunchEvent {
	events := make([]provider.PunchEvent, 0, len(rows))
	for _, raw := range rows {
		var row punchRow
		_ = json.Unmarshal(raw, &row)
		ts, _ := ParsePunchDate(row.PunchDate, c.location)
		events = append(events, provider.PunchEvent{
			EmployeeCode: strings.TrimSpace(row.Empcode),
			Timestamp:    ts,
			Raw:          raw,
		})
	}
	return events
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &provider.TransportError{Op: endpoint, Err: err}
	}

	reqURL := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &provider.RequestError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return &provider.TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return &provider.TransportError{Op: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if err := classifyStatus(endpoint, resp.StatusCode, body); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(endpoint, outcomeLabel(err)).Inc()
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return &provider.RequestError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var env envelope
	_ = json.Unmarshal(body, &env)
	if env.Error {
		if err := classifyAPIError(env.Msg); err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(endpoint, outcomeLabel(err)).Inc()
			return err
		}
	}

	metrics.ProviderRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	slog.Debug("Provider request completed", "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}

func classifyStatus(endpoint string, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.AuthError{StatusCode: status, Message: snippet(body)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &provider.TransportError{Op: endpoint, StatusCode: status, Err: errors.New(snippet(body))}
	case status >= 400:
		return &provider.RequestError{StatusCode: status, Message: snippet(body)}
	}
	return nil
}

// classifyAPIError maps an {"Error": true} envelope. An empty result is
// reported the same way by the provider and is not an error.
func classifyAPIError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no record"), strings.Contains(lower, "no data"):
		return nil
	case strings.Contains(lower, "auth"), strings.Contains(lower, "credential"),
		strings.Contains(lower, "invalid user"), strings.Contains(lower, "password"):
		return &provider.AuthError{StatusCode: http.StatusOK, Message: msg}
	}
	return &provider.RequestError{StatusCode: http.StatusOK, Message: msg}
}

func outcomeLabel(err error) string {
	switch {
	case provider.IsRetryable(err):
		return "transport_error"
	case errors.As(err, new(*provider.AuthError)):
		return "auth_error"
	default:
		return "request_error"
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func filterOrAll(filter string) string {
	if strings.TrimSpace(filter) == "" {
		return provider.AllEmployees
	}
	return filter
}
