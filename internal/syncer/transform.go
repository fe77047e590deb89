package syncer

import (
	"context"
	"sync"
	"time"

	"trackmirror/internal/domain"
	"trackmirror/internal/linear"
	"trackmirror/internal/models"

	"github.com/rs/zerolog"
)

// DefaultTransformConcurrency bounds how many issues are flattened at once.
// Each issue fans out into ~5 relation fetches, so this also caps in-flight
// upstream calls at roughly 5x the value.
const DefaultTransformConcurrency = 5

// knownStateTypes are the workflow state types the upstream defines;
// anything else normalizes to the backlog default.
var knownStateTypes = map[string]bool{
	"triage":    true,
	"backlog":   true,
	"unstarted": true,
	"started":   true,
	"completed": true,
	"canceled":  true,
}

// TransformResult is the per-issue outcome. Exactly one of Item or Err is
// set; failures never abort the batch.
type TransformResult struct {
	IssueID string
	Item    *models.BacklogItem
	Err     error
}

// Transformer flattens upstream issues into replica rows, resolving each
// issue's lazy relations concurrently while keeping the batch bounded.
type Transformer struct {
	client      domain.UpstreamClient
	concurrency int
	logger      zerolog.Logger
}

func NewTransformer(client domain.UpstreamClient, concurrency int, logger zerolog.Logger) *Transformer {
	if concurrency <= 0 {
		concurrency = DefaultTransformConcurrency
	}
	return &Transformer{
		client:      client,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "transformer").Logger(),
	}
}

// TransformIssues flattens a page of issues. Results are positionally
// aligned with the input.
func (t *Transformer) TransformIssues(ctx context.Context, issues []linear.Issue) []TransformResult {
	results := make([]TransformResult, len(issues))
	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup

	for i := range issues {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = t.transformOne(ctx, issues[i])
		}(i)
	}
	wg.Wait()

	return results
}

// issueRelations holds the resolved lazy edges of one issue.
type issueRelations struct {
	state    *linear.WorkflowState
	assignee *linear.User
	project  *linear.Project
	team     *linear.Team
	labels   []linear.Label
}

func (t *Transformer) transformOne(ctx context.Context, issue linear.Issue) TransformResult {
	relations, err := t.fetchRelations(ctx, issue.ID)
	if err != nil {
		t.logger.Warn().Err(err).Str("issue_id", issue.ID).Str("identifier", issue.Identifier).Msg("failed to resolve issue relations")
		return TransformResult{IssueID: issue.ID, Err: err}
	}

	item := flattenIssue(issue, relations)
	return TransformResult{IssueID: issue.ID, Item: item}
}

// fetchRelations resolves the five lazy edges of one issue in parallel and
// returns the first error encountered, if any.
func (t *Transformer) fetchRelations(ctx context.Context, issueID string) (*issueRelations, error) {
	relations := &issueRelations{}
	errs := make([]error, 5)
	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		relations.state, errs[0] = t.client.IssueState(ctx, issueID)
	}()
	go func() {
		defer wg.Done()
		relations.assignee, errs[1] = t.client.IssueAssignee(ctx, issueID)
	}()
	go func() {
		defer wg.Done()
		relations.project, errs[2] = t.client.IssueProject(ctx, issueID)
	}()
	go func() {
		defer wg.Done()
		relations.team, errs[3] = t.client.IssueTeam(ctx, issueID)
	}()
	go func() {
		defer wg.Done()
		relations.labels, errs[4] = t.client.IssueLabels(ctx, issueID)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return relations, nil
}

func flattenIssue(issue linear.Issue, relations *issueRelations) *models.BacklogItem {
	priority := issue.Priority
	if _, ok := models.PriorityLabels[priority]; !ok {
		priority = 0
	}

	item := &models.BacklogItem{
		ID:            issue.ID,
		Identifier:    issue.Identifier,
		Title:         issue.Title,
		Description:   issue.Description,
		Priority:      priority,
		PriorityLabel: models.PriorityLabel(issue.Priority),
		Status:        "Backlog",
		StatusType:    models.DefaultStatusType,
		URL:           issue.URL,
		SortOrder:     issue.SortOrder,
		Labels:        []string{},
		CreatedAt:     normalizeTimestamp(issue.CreatedAt),
		UpdatedAt:     normalizeTimestamp(issue.UpdatedAt),
	}

	if relations.state != nil {
		item.Status = relations.state.Name
		if knownStateTypes[relations.state.Type] {
			item.StatusType = relations.state.Type
		}
	}

	if relations.assignee != nil {
		item.AssigneeID = &relations.assignee.ID
		name := relations.assignee.DisplayName
		if name == "" {
			name = relations.assignee.Name
		}
		item.AssigneeName = &name
	}

	if relations.project != nil {
		item.ProjectID = &relations.project.ID
		item.ProjectName = &relations.project.Name
	}

	if relations.team != nil {
		item.TeamID = &relations.team.ID
		item.TeamKey = &relations.team.Key
	}

	for _, label := range relations.labels {
		item.Labels = append(item.Labels, label.Name)
	}

	return item
}

// normalizeTimestamp re-renders an upstream timestamp as RFC3339 UTC.
// Unparseable values pass through untouched rather than failing the item.
func normalizeTimestamp(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.UTC().Format(time.RFC3339)
}
