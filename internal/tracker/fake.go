package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeProvider is an in-memory Provider used by the core's own tests
// (dispatch, health, heartbeat) so those packages never depend on a real
// GitHub/GitLab account. It is grounded on internal/beads's in-process
// executor fake from the teacher.
type FakeProvider struct {
	mu sync.Mutex

	nextIID   int
	issues    map[string]*Issue
	comments  map[string][]Comment
	prs       map[string]PrStatus
	reactions map[string]map[string]bool // key -> emoji -> set
	known     []string                   // label, color pairs encoded "name"
	healthy   bool
}

// NewFakeProvider returns an empty, healthy fake tracker.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		issues:    map[string]*Issue{},
		comments:  map[string][]Comment{},
		prs:       map[string]PrStatus{},
		reactions: map[string]map[string]bool{},
		healthy:   true,
	}
}

// SetHealthy controls what HealthCheck reports, for exercising dispatch/
// heartbeat's degraded-provider handling.
func (f *FakeProvider) SetHealthy(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
}

func (f *FakeProvider) EnsureLabel(ctx context.Context, name, color string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.known {
		if l == name {
			return nil
		}
	}
	f.known = append(f.known, name)
	return nil
}

func (f *FakeProvider) EnsureAllStateLabels(ctx context.Context, labels []string) error {
	for _, l := range labels {
		if err := f.EnsureLabel(ctx, l, ""); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeProvider) CreateIssue(ctx context.Context, title, body, label string, assignees []string) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIID++
	iid := fmt.Sprintf("%d", f.nextIID)
	issue := Issue{
		IID:       iid,
		Title:     title,
		Body:      body,
		URL:       "fake://issue/" + iid,
		Labels:    []string{label},
		Open:      true,
		CreatedAt: time.Now(),
	}
	f.issues[iid] = &issue
	return issue, nil
}

func (f *FakeProvider) ListIssuesByLabel(ctx context.Context, label string) ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Issue
	for _, iss := range f.issues {
		for _, l := range iss.Labels {
			if l == label {
				out = append(out, *iss)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IID < out[j].IID })
	return out, nil
}

func (f *FakeProvider) GetIssue(ctx context.Context, iid string) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return Issue{}, fmt.Errorf("tracker: issue %q not found", iid)
	}
	return *iss, nil
}

func (f *FakeProvider) ListComments(ctx context.Context, iid string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Comment(nil), f.comments[iid]...), nil
}

// TransitionLabel removes from (if present) and adds to (if absent). Every
// other label on the issue is left as it is.
func (f *FakeProvider) TransitionLabel(ctx context.Context, iid, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return fmt.Errorf("tracker: issue %q not found", iid)
	}
	filtered := iss.Labels[:0:0]
	for _, l := range iss.Labels {
		if l != from {
			filtered = append(filtered, l)
		}
	}
	hasTo := false
	for _, l := range filtered {
		if l == to {
			hasTo = true
		}
	}
	if !hasTo {
		filtered = append(filtered, to)
	}
	iss.Labels = filtered
	return nil
}

func (f *FakeProvider) AddLabel(ctx context.Context, iid, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return fmt.Errorf("tracker: issue %q not found", iid)
	}
	for _, l := range iss.Labels {
		if l == label {
			return nil
		}
	}
	iss.Labels = append(iss.Labels, label)
	return nil
}

func (f *FakeProvider) RemoveLabels(ctx context.Context, iid string, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return fmt.Errorf("tracker: issue %q not found", iid)
	}
	remove := map[string]bool{}
	for _, l := range labels {
		remove[l] = true
	}
	filtered := iss.Labels[:0:0]
	for _, l := range iss.Labels {
		if !remove[l] {
			filtered = append(filtered, l)
		}
	}
	iss.Labels = filtered
	return nil
}

func (f *FakeProvider) CloseIssue(ctx context.Context, iid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return fmt.Errorf("tracker: issue %q not found", iid)
	}
	iss.Open = false
	return nil
}

func (f *FakeProvider) ReopenIssue(ctx context.Context, iid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.issues[iid]
	if !ok {
		return fmt.Errorf("tracker: issue %q not found", iid)
	}
	iss.Open = true
	return nil
}

func (f *FakeProvider) GetPrStatus(ctx context.Context, iid string) (PrStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.prs[iid]
	if !ok {
		return PrStatus{}, fmt.Errorf("tracker: no pr for issue %q", iid)
	}
	return status, nil
}

// SetPrStatus lets tests stage the PR state an issue's dispatch checks will
// observe.
func (f *FakeProvider) SetPrStatus(iid string, status PrStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[iid] = status
}

func (f *FakeProvider) MergePr(ctx context.Context, iid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.prs[iid]
	if !ok {
		return fmt.Errorf("tracker: no pr for issue %q", iid)
	}
	status.State = PrMerged
	f.prs[iid] = status
	return nil
}

func (f *FakeProvider) GetPrReviewComments(ctx context.Context, iid string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Comment
	for _, c := range f.comments[iid] {
		if c.Kind == CommentPRReview || c.Kind == CommentPRInline {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddCommentAs lets tests seed a comment of a given kind; AddComment (the
// interface method) always adds a plain issue comment.
func (f *FakeProvider) AddCommentAs(iid string, c Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[iid] = append(f.comments[iid], c)
}

func (f *FakeProvider) AddComment(ctx context.Context, iid, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[iid] = append(f.comments[iid], Comment{
		ID:        fmt.Sprintf("c%d", len(f.comments[iid])+1),
		Kind:      CommentIssue,
		Body:      body,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *FakeProvider) reactionKey(kind, id string) string { return kind + ":" + id }

func (f *FakeProvider) react(kind, id, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.reactionKey(kind, id)
	set, ok := f.reactions[key]
	if !ok {
		set = map[string]bool{}
		f.reactions[key] = set
	}
	set[emoji] = true
	return nil
}

func (f *FakeProvider) hasReaction(kind, id, emoji string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reactions[f.reactionKey(kind, id)][emoji], nil
}

func (f *FakeProvider) ReactToIssue(ctx context.Context, iid, emoji string) error {
	return f.react("issue", iid, emoji)
}
func (f *FakeProvider) ReactToPr(ctx context.Context, iid, emoji string) error {
	return f.react("pr", iid, emoji)
}
func (f *FakeProvider) ReactToIssueComment(ctx context.Context, commentID, emoji string) error {
	return f.react("issue_comment", commentID, emoji)
}
func (f *FakeProvider) ReactToPrComment(ctx context.Context, commentID, emoji string) error {
	return f.react("pr_comment", commentID, emoji)
}
func (f *FakeProvider) ReactToPrReview(ctx context.Context, reviewID, emoji string) error {
	return f.react("pr_review", reviewID, emoji)
}

func (f *FakeProvider) IssueHasReaction(ctx context.Context, iid, emoji string) (bool, error) {
	return f.hasReaction("issue", iid, emoji)
}
func (f *FakeProvider) PrHasReaction(ctx context.Context, iid, emoji string) (bool, error) {
	return f.hasReaction("pr", iid, emoji)
}
func (f *FakeProvider) IssueCommentHasReaction(ctx context.Context, commentID, emoji string) (bool, error) {
	return f.hasReaction("issue_comment", commentID, emoji)
}
func (f *FakeProvider) PrCommentHasReaction(ctx context.Context, commentID, emoji string) (bool, error) {
	return f.hasReaction("pr_comment", commentID, emoji)
}
func (f *FakeProvider) PrReviewHasReaction(ctx context.Context, reviewID, emoji string) (bool, error) {
	return f.hasReaction("pr_review", reviewID, emoji)
}

func (f *FakeProvider) HealthCheck(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

var _ Provider = (*FakeProvider)(nil)
