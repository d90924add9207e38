package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/clintrovert/trunkgate/internal/host"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// fakeVCS models a repository as a map of refs.
type fakeVCS struct {
	mu         sync.Mutex
	remote     string
	current    string
	refs       map[string]string
	mergeBases map[string]string
	commits    map[string][]types.Commit
	changed    map[string][]string
	errs       map[string]error
	rebasing   bool
	fetches    int
	onFetch    func(n int)
	calls      []string
}

func newFakeVCS(trunk, tip string) *fakeVCS {
	return &fakeVCS{
		remote:     "origin",
		current:    trunk,
		refs:       map[string]string{trunk: tip, "origin/" + trunk: tip},
		mergeBases: make(map[string]string),
		commits:    make(map[string][]types.Commit),
		changed:    make(map[string][]string),
		errs:       make(map[string]error),
	}
}

func (f *fakeVCS) record(call string, args ...string) error {
	f.calls = append(f.calls, strings.TrimSpace(call+" "+strings.Join(args, " ")))
	return f.errs[call]
}

func (f *fakeVCS) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

// commit adds a commit on top of branch.
func (f *fakeVCS) commit(branch, hash, message string, files ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[branch] = append(f.commits[branch], types.Commit{
		Hash:         hash,
		Parents:      []string{f.refs[branch]},
		Message:      message,
		ChangedFiles: files,
	})
	f.changed[branch] = append(f.changed[branch], files...)
	f.refs[branch] = hash
}

func (f *fakeVCS) CurrentBranch(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.errs["CurrentBranch"]
}

func (f *fakeVCS) RevParse(_ context.Context, rev string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev == "HEAD" {
		rev = f.current
	}
	hash, ok := f.refs[rev]
	if !ok {
		return "", fmt.Errorf("unknown revision %s", rev)
	}
	return hash, nil
}

func (f *fakeVCS) MergeBase(_ context.Context, a, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mergeBases[a], nil
}

func (f *fakeVCS) Branches(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.refs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, f.errs["Branches"]
}

func (f *fakeVCS) Commits(_ context.Context, _, head string) ([]types.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[head], nil
}

func (f *fakeVCS) ChangedFiles(_ context.Context, _, head string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed[head], nil
}

func (f *fakeVCS) Checkout(_ context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Checkout", branch); err != nil {
		return err
	}
	f.current = branch
	return nil
}

func (f *fakeVCS) CreateBranch(_ context.Context, name, base string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateBranch", name, base); err != nil {
		return err
	}
	f.refs[name] = f.refs[base]
	f.mergeBases[name] = f.refs[base]
	f.current = name
	return nil
}

func (f *fakeVCS) DeleteBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteBranch", name); err != nil {
		return err
	}
	delete(f.refs, name)
	return nil
}

func (f *fakeVCS) DeleteRemoteBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRemoteBranch", name); err != nil {
		return err
	}
	delete(f.refs, f.remote+"/"+name)
	return nil
}

func (f *fakeVCS) Add(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("Add", paths...)
}

func (f *fakeVCS) Commit(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("Commit", message)
}

func (f *fakeVCS) Fetch(context.Context) error {
	f.mu.Lock()
	f.fetches++
	n, hook := f.fetches, f.onFetch
	err := f.record("Fetch")
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return err
}

func (f *fakeVCS) Pull(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Pull"); err != nil {
		return err
	}
	if tip, ok := f.refs[f.remote+"/"+f.current]; ok {
		f.refs[f.current] = tip
	}
	return nil
}

func (f *fakeVCS) Rebase(_ context.Context, onto string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Rebase", onto); err != nil {
		f.rebasing = true
		return err
	}
	f.mergeBases[f.current] = f.refs[onto]
	f.refs[f.current] = "rebased-" + f.refs[f.current]
	return nil
}

func (f *fakeVCS) RebaseContinue(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RebaseContinue"); err != nil {
		return err
	}
	f.rebasing = false
	return nil
}

func (f *fakeVCS) RebaseAbort(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebasing = false
	return f.record("RebaseAbort")
}

func (f *fakeVCS) RebaseInProgress(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebasing, nil
}

func (f *fakeVCS) Push(_ context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Push", branch); err != nil {
		return err
	}
	f.refs[f.remote+"/"+branch] = f.refs[branch]
	return nil
}

func (f *fakeVCS) PushWithLease(_ context.Context, branch, expected string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PushWithLease", branch, expected); err != nil {
		return err
	}
	f.refs[f.remote+"/"+branch] = f.refs[branch]
	return nil
}

func (f *fakeVCS) setRef(name, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[name] = hash
}

// fakeHost keeps issues and pull requests in memory. Pull request heads
// follow the remote branch of the linked fakeVCS.
type fakeHost struct {
	mu       sync.Mutex
	vcs      *fakeVCS
	issues   map[int]*types.Issue
	prs      map[string]*types.PullRequest
	runs     map[string][]types.CIRun
	errs     map[string]error
	merged   []int
	comments []string
}

func newFakeHost(v *fakeVCS) *fakeHost {
	return &fakeHost{
		vcs:    v,
		issues: make(map[int]*types.Issue),
		prs:    make(map[string]*types.PullRequest),
		runs:   make(map[string][]types.CIRun),
		errs:   make(map[string]error),
	}
}

func (h *fakeHost) head(branch string) string {
	h.vcs.mu.Lock()
	defer h.vcs.mu.Unlock()
	return h.vcs.refs[h.vcs.remote+"/"+branch]
}

func (h *fakeHost) GetIssue(_ context.Context, number int) (*types.Issue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs["GetIssue"]; err != nil {
		return nil, err
	}
	issue, ok := h.issues[number]
	if !ok {
		return nil, host.ErrNotFound
	}
	cp := *issue
	return &cp, nil
}

func (h *fakeHost) ListIssues(context.Context, string) ([]types.Issue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []types.Issue
	for _, issue := range h.issues {
		out = append(out, *issue)
	}
	return out, nil
}

func (h *fakeHost) CreateIssue(_ context.Context, title, body string) (*types.Issue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	issue := &types.Issue{Number: len(h.issues) + 1, Title: title, Body: body, State: types.IssueOpen}
	h.issues[issue.Number] = issue
	return issue, nil
}

func (h *fakeHost) CommentIssue(_ context.Context, number int, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.comments = append(h.comments, fmt.Sprintf("#%d %s", number, body))
	return nil
}

func (h *fakeHost) PullRequestForBranch(_ context.Context, branch string) (*types.PullRequest, error) {
	head := h.head(branch)
	h.mu.Lock()
	defer h.mu.Unlock()
	pr, ok := h.prs[branch]
	if !ok {
		return nil, host.ErrNotFound
	}
	if pr.State == types.PROpen && head != "" {
		pr.HeadSHA = head
	}
	cp := *pr
	return &cp, nil
}

func (h *fakeHost) CreatePullRequest(_ context.Context, opts host.CreatePullRequestOptions) (*types.PullRequest, error) {
	head := h.head(opts.Head)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs["CreatePullRequest"]; err != nil {
		return nil, err
	}
	pr := &types.PullRequest{
		Number:         len(h.prs) + 7,
		Title:          opts.Title,
		Body:           opts.Body,
		HeadBranch:     opts.Head,
		HeadSHA:        head,
		BaseBranch:     opts.Base,
		State:          types.PROpen,
		ReviewDecision: types.ReviewPending,
	}
	h.prs[opts.Head] = pr
	cp := *pr
	return &cp, nil
}

func (h *fakeHost) CommentPullRequest(_ context.Context, number int, body string) error {
	return h.CommentIssue(context.Background(), number, body)
}

func (h *fakeHost) CIRuns(_ context.Context, _, headSHA string) ([]types.CIRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs[headSHA], nil
}

func (h *fakeHost) MergePullRequest(_ context.Context, number int, expectedHead string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs["MergePullRequest"]; err != nil {
		return err
	}
	for _, pr := range h.prs {
		if pr.Number != number {
			continue
		}
		if pr.HeadSHA != expectedHead {
			return fmt.Errorf("head changed: %s", pr.HeadSHA)
		}
		pr.State = types.PRMerged
		h.merged = append(h.merged, number)
		for _, n := range closes(pr.Body) {
			if issue, ok := h.issues[n]; ok {
				issue.State = types.IssueClosed
			}
		}
		return nil
	}
	return host.ErrNotFound
}

func (h *fakeHost) setReview(branch string, decision types.ReviewDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prs[branch].ReviewDecision = decision
}

func closes(body string) []int {
	var n int
	if _, err := fmt.Sscanf(body, "Closes #%d", &n); err != nil {
		return nil
	}
	return []int{n}
}

var (
	_ host.IssueHostClient = (*fakeHost)(nil)
)
