package linear

// Issue is one upstream backlog entry as returned by the paginated issues
// query. Relations (state, assignee, project, team, labels) are not part of
// the page payload; they are fetched lazily per issue.
type Issue struct {
	ID          string  `json:"id"`
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    int     `json:"priority"`
	SortOrder   float64 `json:"sortOrder"`
	URL         string  `json:"url"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// IssuePage is one page of the issues query.
type IssuePage struct {
	Nodes       []Issue
	HasNextPage bool
	EndCursor   string
}

// WorkflowState is the issue's workflow column (e.g. Todo, In Progress).
type WorkflowState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// User is an upstream workspace member.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Project groups issues under an initiative.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Team owns issues and defines their identifier prefix.
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Label is a free-form issue tag.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
