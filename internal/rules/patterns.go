package rules

import (
	"regexp"
	"strconv"
	"strings"
)

// Naming and message conventions. These are matched exactly as written.
const (
	IssueTitlePattern       = `^(feat|fix|chore|refactor|docs): .{10,72}$`
	BranchNamePattern       = `^[0-9]+-(feat|fix|chore|refactor|docs)-[a-z0-9-]{3,30}$`
	CommitMessagePattern    = `^(feat|fix|docs|style|refactor|test|chore)\([a-z0-9-]+\): .{10,72}$`
	ClosingReferencePattern = `Closes #[0-9]+`
)

var (
	IssueTitleRe       = regexp.MustCompile(IssueTitlePattern)
	BranchNameRe       = regexp.MustCompile(BranchNamePattern)
	CommitMessageRe    = regexp.MustCompile(CommitMessagePattern)
	ClosingReferenceRe = regexp.MustCompile(ClosingReferencePattern)

	closingNumberRe = regexp.MustCompile(`Closes #([0-9]+)`)
	checklistItemRe = regexp.MustCompile(`(?m)^\s*[-*] \[[ xX]\] \S`)
)

// DefaultTestFilePatterns match common test file naming conventions.
var DefaultTestFilePatterns = []string{
	`_test\.go$`,
	`(^|/)test_[^/]+\.py$`,
	`[^/]+_test\.py$`,
	`\.(test|spec)\.[jt]sx?$`,
	`(^|/)tests?/`,
}

// DefaultDocFilePatterns match files a docs commit may touch.
var DefaultDocFilePatterns = []string{
	`\.(md|rst|adoc|txt)$`,
	`(^|/)docs?/`,
	`(^|/)(LICENSE|NOTICE|AUTHORS|CHANGELOG)[^/]*$`,
}

// Subject returns the first line of a commit message.
func Subject(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	return strings.TrimRight(subject, "\r")
}

// IssueType returns the type prefix of an issue title, or "" when absent.
func IssueType(title string) string {
	prefix, _, ok := strings.Cut(title, ":")
	if !ok {
		return ""
	}
	return prefix
}

// CommitType returns the type of a conventional commit subject.
func CommitType(subject string) string {
	m := CommitMessageRe.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseBranch splits a branch name into issue number, type and slug.
func ParseBranch(name string) (issue int, typ, slug string, ok bool) {
	if !BranchNameRe.MatchString(name) {
		return 0, "", "", false
	}
	parts := strings.SplitN(name, "-", 3)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", false
	}
	return n, parts[1], parts[2], true
}

// BranchName builds the branch name for an issue.
func BranchName(issue int, typ, slug string) string {
	return strconv.Itoa(issue) + "-" + typ + "-" + slug
}

// Slug derives a branch slug from an issue title: the subject lowercased,
// runs of other characters collapsed to a dash, cut to 30 characters.
// Titles that yield fewer than 3 characters return "".
func Slug(title string) string {
	if i := strings.Index(title, ": "); i >= 0 {
		title = title[i+2:]
	}

	var sb strings.Builder
	dash := true
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
		} else if !dash {
			sb.WriteByte('-')
			dash = true
		}
	}

	slug := strings.Trim(sb.String(), "-")
	if len(slug) > 30 {
		slug = strings.TrimRight(slug[:30], "-")
	}
	if len(slug) < 3 {
		return ""
	}
	return slug
}

// ClosedIssues returns every issue number referenced with a closing keyword.
func ClosedIssues(body string) []int {
	var out []int
	for _, m := range closingNumberRe.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

// HasChecklistItem reports whether body contains at least one checklist item.
func HasChecklistItem(body string) bool {
	return checklistItemRe.MatchString(body)
}

// CountChecklistItems counts checklist items in body.
func CountChecklistItems(body string) int {
	return len(checklistItemRe.FindAllString(body, -1))
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
