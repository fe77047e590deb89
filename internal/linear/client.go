package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the public Linear GraphQL endpoint.
	DefaultBaseURL = "https://api.linear.app/graphql"

	// DefaultPageSize keeps one issues page comfortably under the
	// upstream complexity budget.
	DefaultPageSize = 50

	defaultTimeout = 30 * time.Second
)

// Rate-limit response headers. Reset is a unix timestamp in milliseconds.
const (
	headerRateLimit     = "X-RateLimit-Requests-Limit"
	headerRateRemaining = "X-RateLimit-Requests-Remaining"
	headerRateReset     = "X-RateLimit-Requests-Reset"
)

// Client talks to the Linear GraphQL API over HTTP. It records the quota
// metadata of the most recent response so the rate limiter can track the
// remaining budget without owning the transport.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.Mutex
	lastRate *RateLimitInfo
}

// NewClient builds a client. The token is mandatory; baseURL and pageSize
// fall back to defaults when zero.
func NewClient(baseURL, token string, pageSize int, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &ConfigError{Reason: "api token is required"}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With().Str("component", "linear-client").Logger(),
	}, nil
}

// LastRateLimit returns the quota metadata from the most recent upstream
// response, if any response carried it.
func (c *Client) LastRateLimit() (RateLimitInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRate == nil {
		return RateLimitInfo{}, false
	}
	return *c.lastRate, true
}

const issuesQuery = `query Issues($first: Int!, $after: String) {
  issues(first: $first, after: $after, orderBy: updatedAt) {
    nodes { id identifier title description priority sortOrder url createdAt updatedAt }
    pageInfo { hasNextPage endCursor }
  }
}`

// Issues fetches one page of the backlog. Pass an empty cursor for the
// first page; the returned EndCursor feeds the next call.
func (c *Client) Issues(ctx context.Context, after string) (*IssuePage, error) {
	variables := map[string]any{"first": c.pageSize}
	if after != "" {
		variables["after"] = after
	}

	var payload struct {
		Issues struct {
			Nodes    []Issue `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"issues"`
	}

	if err := c.do(ctx, "issues", issuesQuery, variables, &payload); err != nil {
		return nil, err
	}

	return &IssuePage{
		Nodes:       payload.Issues.Nodes,
		HasNextPage: payload.Issues.PageInfo.HasNextPage,
		EndCursor:   payload.Issues.PageInfo.EndCursor,
	}, nil
}

// IssueState resolves the issue's workflow state. Nil when unset.
func (c *Client) IssueState(ctx context.Context, issueID string) (*WorkflowState, error) {
	var payload struct {
		Issue struct {
			State *WorkflowState `json:"state"`
		} `json:"issue"`
	}
	query := `query IssueState($id: String!) { issue(id: $id) { state { id name type } } }`
	if err := c.do(ctx, "issueState", query, map[string]any{"id": issueID}, &payload); err != nil {
		return nil, err
	}
	return payload.Issue.State, nil
}

// IssueAssignee resolves the issue's assignee. Nil when unassigned.
func (c *Client) IssueAssignee(ctx context.Context, issueID string) (*User, error) {
	var payload struct {
		Issue struct {
			Assignee *User `json:"assignee"`
		} `json:"issue"`
	}
	query := `query IssueAssignee($id: String!) { issue(id: $id) { assignee { id name displayName } } }`
	if err := c.do(ctx, "issueAssignee", query, map[string]any{"id": issueID}, &payload); err != nil {
		return nil, err
	}
	return payload.Issue.Assignee, nil
}

// IssueProject resolves the issue's project. Nil when the issue has none.
func (c *Client) IssueProject(ctx context.Context, issueID string) (*Project, error) {
	var payload struct {
		Issue struct {
			Project *Project `json:"project"`
		} `json:"issue"`
	}
	query := `query IssueProject($id: String!) { issue(id: $id) { project { id name } } }`
	if err := c.do(ctx, "issueProject", query, map[string]any{"id": issueID}, &payload); err != nil {
		return nil, err
	}
	return payload.Issue.Project, nil
}

// IssueTeam resolves the owning team. Nil only for malformed issues.
func (c *Client) IssueTeam(ctx context.Context, issueID string) (*Team, error) {
	var payload struct {
		Issue struct {
			Team *Team `json:"team"`
		} `json:"issue"`
	}
	query := `query IssueTeam($id: String!) { issue(id: $id) { team { id key name } } }`
	if err := c.do(ctx, "issueTeam", query, map[string]any{"id": issueID}, &payload); err != nil {
		return nil, err
	}
	return payload.Issue.Team, nil
}

// IssueLabels resolves the issue's label set.
func (c *Client) IssueLabels(ctx context.Context, issueID string) ([]Label, error) {
	var payload struct {
		Issue struct {
			Labels struct {
				Nodes []Label `json:"nodes"`
			} `json:"labels"`
		} `json:"issue"`
	}
	query := `query IssueLabels($id: String!) { issue(id: $id) { labels { nodes { id name } } } }`
	if err := c.do(ctx, "issueLabels", query, map[string]any{"id": issueID}, &payload); err != nil {
		return nil, err
	}
	return payload.Issue.Labels.Nodes, nil
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// do executes one GraphQL request and decodes the data envelope into out.
// Every error leaves this method as one of the typed shapes in errors.go.
func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: operation, Err: err}
	}
	defer resp.Body.Close()

	c.storeRateLimit(resp)

	if resp.StatusCode >= 500 {
		return &NetworkError{Op: operation, Err: fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &APIError{Kind: KindAuth, StatusCode: resp.StatusCode, Message: "authentication failed"}
	case http.StatusForbidden:
		return &APIError{Kind: KindPermission, StatusCode: resp.StatusCode, Message: "permission denied"}
	case http.StatusNotFound:
		return &APIError{Kind: KindNotFound, StatusCode: resp.StatusCode, Message: "resource not found"}
	case http.StatusTooManyRequests:
		info, _ := c.LastRateLimit()
		return &APIError{Kind: KindRateLimit, StatusCode: resp.StatusCode, Message: "rate limit exceeded", RateLimit: &info}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: operation, Err: fmt.Errorf("read response: %w", err)}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &NetworkError{Op: operation, Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(envelope.Errors) > 0 {
		return c.graphqlError(operation, envelope.Errors)
	}
	if len(envelope.Data) == 0 {
		return &APIError{Kind: KindGraphQL, StatusCode: resp.StatusCode, Message: "empty response data"}
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &APIError{Kind: KindGraphQL, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode %s payload: %v", operation, err)}
	}
	return nil
}

// graphqlError maps GraphQL error extension codes onto API error kinds.
func (c *Client) graphqlError(operation string, errs []graphqlError) error {
	first := errs[0]
	c.logger.Debug().Str("operation", operation).Str("code", first.Extensions.Code).Msg("graphql error")

	switch first.Extensions.Code {
	case "AUTHENTICATION_ERROR":
		return &APIError{Kind: KindAuth, Message: first.Message}
	case "FORBIDDEN", "PERMISSION_ERROR":
		return &APIError{Kind: KindPermission, Message: first.Message}
	case "RATELIMITED":
		info, _ := c.LastRateLimit()
		return &APIError{Kind: KindRateLimit, Message: first.Message, RateLimit: &info}
	case "ENTITY_NOT_FOUND":
		return &APIError{Kind: KindNotFound, Message: first.Message}
	default:
		return &APIError{Kind: KindGraphQL, Message: first.Message}
	}
}

func (c *Client) storeRateLimit(resp *http.Response) {
	remaining := resp.Header.Get(headerRateRemaining)
	if remaining == "" {
		return
	}

	info := &RateLimitInfo{}
	if v, err := strconv.Atoi(remaining); err == nil {
		info.Remaining = v
	}
	if v, err := strconv.Atoi(resp.Header.Get(headerRateLimit)); err == nil {
		info.Limit = v
	}
	if v, err := strconv.ParseInt(resp.Header.Get(headerRateReset), 10, 64); err == nil {
		info.ResetAt = time.UnixMilli(v)
	}

	c.mu.Lock()
	c.lastRate = info
	c.mu.Unlock()
}
