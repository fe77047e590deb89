package syncer

import (
	"context"

	"trackmirror/internal/domain"
	"trackmirror/internal/linear"
)

// GuardedClient wraps every upstream call in the two retry layers: the
// retry handler is always the outer wrapper ("API is slow or down") and the
// rate limiter the inner one ("API says slow down"), so one logical call
// undergoes both policies independently.
type GuardedClient struct {
	client  domain.UpstreamClient
	retry   *RetryHandler
	limiter *RateLimiter
}

func NewGuardedClient(client domain.UpstreamClient, retry *RetryHandler, limiter *RateLimiter) *GuardedClient {
	return &GuardedClient{client: client, retry: retry, limiter: limiter}
}

func (g *GuardedClient) guard(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return g.retry.ExecuteWithRetry(ctx, operation, func(ctx context.Context) error {
		return g.limiter.ExecuteWithRetry(ctx, operation, fn)
	})
}

func (g *GuardedClient) Issues(ctx context.Context, after string) (*linear.IssuePage, error) {
	var page *linear.IssuePage
	err := g.guard(ctx, "issues", func(ctx context.Context) error {
		var err error
		page, err = g.client.Issues(ctx, after)
		return err
	})
	return page, err
}

func (g *GuardedClient) IssueState(ctx context.Context, issueID string) (*linear.WorkflowState, error) {
	var state *linear.WorkflowState
	err := g.guard(ctx, "issueState", func(ctx context.Context) error {
		var err error
		state, err = g.client.IssueState(ctx, issueID)
		return err
	})
	return state, err
}

func (g *GuardedClient) IssueAssignee(ctx context.Context, issueID string) (*linear.User, error) {
	var user *linear.User
	err := g.guard(ctx, "issueAssignee", func(ctx context.Context) error {
		var err error
		user, err = g.client.IssueAssignee(ctx, issueID)
		return err
	})
	return user, err
}

func (g *GuardedClient) IssueProject(ctx context.Context, issueID string) (*linear.Project, error) {
	var project *linear.Project
	err := g.guard(ctx, "issueProject", func(ctx context.Context) error {
		var err error
		project, err = g.client.IssueProject(ctx, issueID)
		return err
	})
	return project, err
}

func (g *GuardedClient) IssueTeam(ctx context.Context, issueID string) (*linear.Team, error) {
	var team *linear.Team
	err := g.guard(ctx, "issueTeam", func(ctx context.Context) error {
		var err error
		team, err = g.client.IssueTeam(ctx, issueID)
		return err
	})
	return team, err
}

func (g *GuardedClient) IssueLabels(ctx context.Context, issueID string) ([]linear.Label, error) {
	var labels []linear.Label
	err := g.guard(ctx, "issueLabels", func(ctx context.Context) error {
		var err error
		labels, err = g.client.IssueLabels(ctx, issueID)
		return err
	})
	return labels, err
}
