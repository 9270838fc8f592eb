package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/flowforge/taskctl/internal/log"
)

// CLIProvider implements Provider by shelling out to the GitHub or GitLab
// CLI (gh/glab), grounded on internal/beads's RealExecutor pattern: each
// call runs one subprocess, captures stdout/stderr separately, and logs
// duration plus a debug line per call.
type CLIProvider struct {
	bin    string // "gh" or "glab"
	repo   string // owner/repo or group/project
	workDir string
}

// NewCLIProvider returns a provider that shells out to bin (gh or glab)
// against repo.
func NewCLIProvider(bin, repo, workDir string) *CLIProvider {
	return &CLIProvider{bin: bin, repo: repo, workDir: workDir}
}

func (c *CLIProvider) run(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args are built from fixed subcommands plus caller-supplied IDs
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.workDir != "" {
		cmd.Dir = c.workDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debug(log.CatTracker, "cli call completed", "bin", c.bin, "args", strings.Join(args, " "), "duration", time.Since(start))
	if err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s %s failed: %s", c.bin, args[0], strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("%s %s failed: %w", c.bin, args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *CLIProvider) EnsureLabel(ctx context.Context, name, color string) error {
	_, err := c.run(ctx, "label", "create", name, "--color", color, "--repo", c.repo, "--force")
	return err
}

func (c *CLIProvider) EnsureAllStateLabels(ctx context.Context, labels []string) error {
	for _, l := range labels {
		if err := c.EnsureLabel(ctx, l, "ededed"); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLIProvider) CreateIssue(ctx context.Context, title, body, label string, assignees []string) (Issue, error) {
	args := []string{"issue", "create", "--repo", c.repo, "--title", title, "--body", body, "--label", label}
	for _, a := range assignees {
		args = append(args, "--assignee", a)
	}
	url, err := c.run(ctx, args...)
	if err != nil {
		return Issue{}, err
	}
	iid := url[strings.LastIndex(url, "/")+1:]
	return c.GetIssue(ctx, iid)
}

func (c *CLIProvider) ListIssuesByLabel(ctx context.Context, label string) ([]Issue, error) {
	out, err := c.run(ctx, "issue", "list", "--repo", c.repo, "--label", label,
		"--json", "number,title,body,url,labels,state,createdAt")
	if err != nil {
		return nil, err
	}
	var raw []cliIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("tracker: parsing issue list: %w", err)
	}
	issues := make([]Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, r.toIssue())
	}
	return issues, nil
}

func (c *CLIProvider) GetIssue(ctx context.Context, iid string) (Issue, error) {
	out, err := c.run(ctx, "issue", "view", iid, "--repo", c.repo,
		"--json", "number,title,body,url,labels,state,createdAt")
	if err != nil {
		return Issue{}, err
	}
	var raw cliIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return Issue{}, fmt.Errorf("tracker: parsing issue %q: %w", iid, err)
	}
	return raw.toIssue(), nil
}

func (c *CLIProvider) ListComments(ctx context.Context, iid string) ([]Comment, error) {
	out, err := c.run(ctx, "issue", "view", iid, "--repo", c.repo, "--json", "comments")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Comments []cliComment `json:"comments"`
	}
	if err := json.Unmarshal([]byte(out), &wrapper); err != nil {
		return nil, fmt.Errorf("tracker: parsing comments for %q: %w", iid, err)
	}
	comments := make([]Comment, 0, len(wrapper.Comments))
	for _, rc := range wrapper.Comments {
		comments = append(comments, rc.toComment())
	}
	return comments, nil
}

// TransitionLabel logs a human-readable diff of the label set change via
// go-diff, then issues the minimum add/remove calls.
func (c *CLIProvider) TransitionLabel(ctx context.Context, iid, from, to string) error {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	log.Debug(log.CatTracker, "label transition", "issue", iid, "from", from, "to", to, "diff", dmp.DiffPrettyText(diffs))

	if from != "" {
		if err := c.RemoveLabels(ctx, iid, []string{from}); err != nil {
			return err
		}
	}
	return c.AddLabel(ctx, iid, to)
}

func (c *CLIProvider) AddLabel(ctx context.Context, iid, label string) error {
	_, err := c.run(ctx, "issue", "edit", iid, "--repo", c.repo, "--add-label", label)
	return err
}

func (c *CLIProvider) RemoveLabels(ctx context.Context, iid string, labels []string) error {
	for _, l := range labels {
		if _, err := c.run(ctx, "issue", "edit", iid, "--repo", c.repo, "--remove-label", l); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLIProvider) CloseIssue(ctx context.Context, iid string) error {
	_, err := c.run(ctx, "issue", "close", iid, "--repo", c.repo)
	return err
}

func (c *CLIProvider) ReopenIssue(ctx context.Context, iid string) error {
	_, err := c.run(ctx, "issue", "reopen", iid, "--repo", c.repo)
	return err
}

func (c *CLIProvider) GetPrStatus(ctx context.Context, iid string) (PrStatus, error) {
	out, err := c.run(ctx, "pr", "view", iid, "--repo", c.repo,
		"--json", "state,url,title,headRefName,mergeable,reviewDecision")
	if err != nil {
		return PrStatus{}, err
	}
	var raw cliPr
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return PrStatus{}, fmt.Errorf("tracker: parsing pr status for %q: %w", iid, err)
	}
	return raw.toPrStatus(), nil
}

func (c *CLIProvider) MergePr(ctx context.Context, iid string) error {
	_, err := c.run(ctx, "pr", "merge", iid, "--repo", c.repo, "--squash")
	return err
}

func (c *CLIProvider) GetPrReviewComments(ctx context.Context, iid string) ([]Comment, error) {
	out, err := c.run(ctx, "pr", "view", iid, "--repo", c.repo, "--json", "comments,reviews")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Comments []cliComment `json:"comments"`
		Reviews  []cliComment `json:"reviews"`
	}
	if err := json.Unmarshal([]byte(out), &wrapper); err != nil {
		return nil, fmt.Errorf("tracker: parsing pr review comments for %q: %w", iid, err)
	}
	comments := make([]Comment, 0, len(wrapper.Comments)+len(wrapper.Reviews))
	for _, rc := range wrapper.Comments {
		rc.kind = CommentPRGeneral
		comments = append(comments, rc.toComment())
	}
	for _, rc := range wrapper.Reviews {
		rc.kind = CommentPRReview
		comments = append(comments, rc.toComment())
	}
	return comments, nil
}

func (c *CLIProvider) ReactToIssue(ctx context.Context, iid, emoji string) error {
	_, err := c.run(ctx, "issue", "comment", iid, "--repo", c.repo, "--body", ":"+emoji+":")
	return err
}
func (c *CLIProvider) ReactToPr(ctx context.Context, iid, emoji string) error {
	_, err := c.run(ctx, "pr", "comment", iid, "--repo", c.repo, "--body", ":"+emoji+":")
	return err
}

// ReactToIssueComment, ReactToPrComment and ReactToPrReview are not exposed
// by the gh/glab CLI at the single-comment level; this adapter degrades
// them to a no-op success rather than failing the pipeline over a
// best-effort acknowledgement (spec §4.5 step 13 treats reactions as
// fire-and-forget).
func (c *CLIProvider) ReactToIssueComment(ctx context.Context, commentID, emoji string) error { return nil }
func (c *CLIProvider) ReactToPrComment(ctx context.Context, commentID, emoji string) error     { return nil }
func (c *CLIProvider) ReactToPrReview(ctx context.Context, reviewID, emoji string) error        { return nil }

func (c *CLIProvider) IssueHasReaction(ctx context.Context, iid, emoji string) (bool, error) {
	return false, nil
}
func (c *CLIProvider) PrHasReaction(ctx context.Context, iid, emoji string) (bool, error) {
	return false, nil
}
func (c *CLIProvider) IssueCommentHasReaction(ctx context.Context, commentID, emoji string) (bool, error) {
	return false, nil
}
func (c *CLIProvider) PrCommentHasReaction(ctx context.Context, commentID, emoji string) (bool, error) {
	return false, nil
}
func (c *CLIProvider) PrReviewHasReaction(ctx context.Context, reviewID, emoji string) (bool, error) {
	return false, nil
}

func (c *CLIProvider) AddComment(ctx context.Context, iid, body string) error {
	_, err := c.run(ctx, "issue", "comment", iid, "--repo", c.repo, "--body", body)
	return err
}

func (c *CLIProvider) HealthCheck(ctx context.Context) bool {
	_, err := c.run(ctx, "auth", "status")
	if err != nil {
		log.Warn(log.CatTracker, "health check failed", "bin", c.bin, "error", err)
		return false
	}
	return true
}

var _ Provider = (*CLIProvider)(nil)

type cliIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (r cliIssue) toIssue() Issue {
	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		labels = append(labels, l.Name)
	}
	return Issue{
		IID:       fmt.Sprintf("%d", r.Number),
		Title:     r.Title,
		Body:      r.Body,
		URL:       r.URL,
		Labels:    labels,
		Open:      strings.EqualFold(r.State, "open"),
		CreatedAt: r.CreatedAt,
	}
}

type cliComment struct {
	ID        string    `json:"id"`
	Author    struct {
		Login string `json:"login"`
	} `json:"author"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	kind      CommentKind
}

func (r cliComment) toComment() Comment {
	kind := r.kind
	if kind == "" {
		kind = CommentIssue
	}
	return Comment{
		ID:        r.ID,
		Kind:      kind,
		Author:    r.Author.Login,
		Body:      r.Body,
		State:     r.State,
		CreatedAt: r.CreatedAt,
	}
}

type cliPr struct {
	State           string `json:"state"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	HeadRefName     string `json:"headRefName"`
	Mergeable       string `json:"mergeable"`
	ReviewDecision  string `json:"reviewDecision"`
}

func (r cliPr) toPrStatus() PrStatus {
	state := PrOpen
	switch {
	case strings.EqualFold(r.State, "MERGED"):
		state = PrMerged
	case strings.EqualFold(r.State, "CLOSED"):
		state = PrClosed
	case strings.EqualFold(r.ReviewDecision, "APPROVED"):
		state = PrApproved
	case strings.EqualFold(r.ReviewDecision, "CHANGES_REQUESTED"):
		state = PrChangesRequested
	}
	return PrStatus{
		State:        state,
		URL:          r.URL,
		Title:        r.Title,
		SourceBranch: r.HeadRefName,
		Mergeable:    strings.EqualFold(r.Mergeable, "MERGEABLE"),
	}
}
