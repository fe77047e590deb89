package syncer

import (
	"context"
	"sync"

	"trackmirror/internal/linear"
)

// fakeUpstream is a scriptable UpstreamClient for tests. Unset functions
// return empty results.
type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int

	issuesFn   func(after string) (*linear.IssuePage, error)
	stateFn    func(issueID string) (*linear.WorkflowState, error)
	assigneeFn func(issueID string) (*linear.User, error)
	projectFn  func(issueID string) (*linear.Project, error)
	teamFn     func(issueID string) (*linear.Team, error)
	labelsFn   func(issueID string) ([]linear.Label, error)
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{calls: make(map[string]int)}
}

func (f *fakeUpstream) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeUpstream) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) Issues(ctx context.Context, after string) (*linear.IssuePage, error) {
	f.record("issues")
	if f.issuesFn != nil {
		return f.issuesFn(after)
	}
	return &linear.IssuePage{}, nil
}

func (f *fakeUpstream) IssueState(ctx context.Context, issueID string) (*linear.WorkflowState, error) {
	f.record("state")
	if f.stateFn != nil {
		return f.stateFn(issueID)
	}
	return nil, nil
}

func (f *fakeUpstream) IssueAssignee(ctx context.Context, issueID string) (*linear.User, error) {
	f.record("assignee")
	if f.assigneeFn != nil {
		return f.assigneeFn(issueID)
	}
	return nil, nil
}

func (f *fakeUpstream) IssueProject(ctx context.Context, issueID string) (*linear.Project, error) {
	f.record("project")
	if f.projectFn != nil {
		return f.projectFn(issueID)
	}
	return nil, nil
}

func (f *fakeUpstream) IssueTeam(ctx context.Context, issueID string) (*linear.Team, error) {
	f.record("team")
	if f.teamFn != nil {
		return f.teamFn(issueID)
	}
	return nil, nil
}

func (f *fakeUpstream) IssueLabels(ctx context.Context, issueID string) ([]linear.Label, error) {
	f.record("labels")
	if f.labelsFn != nil {
		return f.labelsFn(issueID)
	}
	return nil, nil
}
