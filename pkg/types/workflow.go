package types

// IssueState is the lifecycle state of an issue
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// Issue is a tracked unit of work on the issue host
type Issue struct {
	Number int        `json:"number"`
	Title  string     `json:"title"`
	Body   string     `json:"body"`
	State  IssueState `json:"state"`
	Labels []string   `json:"labels,omitempty"`
	URL    string     `json:"url,omitempty"`
}

// Branch is a feature branch bound to exactly one issue
type Branch struct {
	Name       string `json:"name"`
	BaseCommit string `json:"base_commit"`
	Head       string `json:"head"`
}

// Commit is one entry of a branch history
type Commit struct {
	Hash         string   `json:"hash"`
	Parents      []string `json:"parents"`
	Message      string   `json:"message"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// PRState is the lifecycle state of a pull request
type PRState string

const (
	PROpen   PRState = "open"
	PRClosed PRState = "closed"
	PRMerged PRState = "merged"
)

// ReviewDecision is the aggregated review outcome of a pull request
type ReviewDecision string

const (
	ReviewPending          ReviewDecision = "pending"
	ReviewApproved         ReviewDecision = "approved"
	ReviewChangesRequested ReviewDecision = "changes-requested"
)

// CIState is the state of one CI run
type CIState string

const (
	CIPending CIState = "pending"
	CISuccess CIState = "success"
	CIFailure CIState = "failure"
)

// CIRun is a CI execution attached to a pull request head
type CIRun struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	HeadSHA string  `json:"head_sha"`
	State   CIState `json:"state"`
}

// PullRequest references its branch and issue by identifier only
type PullRequest struct {
	Number         int            `json:"number"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	HeadBranch     string         `json:"head_branch"`
	HeadSHA        string         `json:"head_sha"`
	BaseBranch     string         `json:"base_branch"`
	State          PRState        `json:"state"`
	ReviewDecision ReviewDecision `json:"review_decision"`
	URL            string         `json:"url,omitempty"`
	Runs           []CIRun        `json:"runs,omitempty"`
}
