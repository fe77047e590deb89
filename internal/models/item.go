package models

// BacklogItem is the flattened local representation of one upstream issue.
// Timestamps are kept as RFC3339 strings so the replica row is JSON-safe
// end to end; nothing downstream needs a parsed time.
type BacklogItem struct {
	ID            string   `json:"id"`
	Identifier    string   `json:"identifier"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Priority      int      `json:"priority"`
	PriorityLabel string   `json:"priorityLabel"`
	Status        string   `json:"status"`
	StatusType    string   `json:"statusType"`
	AssigneeID    *string  `json:"assigneeId"`
	AssigneeName  *string  `json:"assigneeName"`
	ProjectID     *string  `json:"projectId"`
	ProjectName   *string  `json:"projectName"`
	TeamID        *string  `json:"teamId"`
	TeamKey       *string  `json:"teamKey"`
	Labels        []string `json:"labels"`
	URL           string   `json:"url"`
	SortOrder     float64  `json:"sortOrder"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

// PriorityLabels maps upstream priority integers to display labels.
var PriorityLabels = map[int]string{
	0: "None",
	1: "Urgent",
	2: "High",
	3: "Normal",
	4: "Low",
}

// PriorityLabel returns the label for an upstream priority value,
// defaulting to None for anything outside the table.
func PriorityLabel(priority int) string {
	if label, ok := PriorityLabels[priority]; ok {
		return label
	}
	return PriorityLabels[0]
}

// DefaultStatusType is the workflow state type used when the upstream
// state is missing or carries an unknown type.
const DefaultStatusType = "backlog"
