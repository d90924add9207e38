package types

// CheckOutcome is the exit status of one verification command
type CheckOutcome struct {
	Name     string `json:"name"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// CallFailure records an adapter call that failed while gathering state.
// Message carries the underlying tool's output verbatim.
type CallFailure struct {
	Call    string `json:"call"`
	Message string `json:"message"`
}

// GateContext is everything a phase gate may need. Adapters fill it in and
// rules only read it.
type GateContext struct {
	IssueNumber int    `json:"issue_number"`
	Issue       *Issue `json:"issue,omitempty"`

	LocalTrunkTip   string `json:"local_trunk_tip,omitempty"`
	RemoteTrunkTip  string `json:"remote_trunk_tip,omitempty"`
	FetchedTrunkTip string `json:"fetched_trunk_tip,omitempty"`

	Branch          *Branch  `json:"branch,omitempty"`
	SiblingBranches []string `json:"sibling_branches,omitempty"`
	Commits         []Commit `json:"commits,omitempty"`
	ChangedFiles    []string `json:"changed_files,omitempty"`

	Checks []CheckOutcome `json:"checks,omitempty"`

	PullRequest *PullRequest `json:"pull_request,omitempty"`

	// LeftoverBranches lists refs of the task branch still present after
	// cleanup, local or remote.
	LeftoverBranches []string `json:"leftover_branches,omitempty"`

	Failures []CallFailure `json:"failures,omitempty"`
}

// Fail records a failed adapter call.
func (c *GateContext) Fail(call string, err error) {
	c.Failures = append(c.Failures, CallFailure{Call: call, Message: err.Error()})
}
