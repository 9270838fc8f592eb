package heartbeat

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// GitPuller is the narrow abstraction the gitPull workflow action needs
// (spec §4.7 step 2.3's "pull base branch (timeout from config)"). Kept
// separate from the tracker/sessions adapters since this is a plain local
// git operation, not a tracker or session-layer call.
type GitPuller interface {
	PullBaseBranch(ctx context.Context, repoPath, baseBranch string, timeoutMs int) error
}

// RealGitPuller shells out to the git binary, grounded on the teacher's
// RealExecutor.runGitOutputWithContext (internal/git/executor_impl.go):
// exec.CommandContext against a working directory, stdout/stderr captured
// for the error path.
type RealGitPuller struct{}

// PullBaseBranch runs `git pull` for baseBranch inside repoPath, bounded by
// timeoutMs (default 15s if unset).
func (RealGitPuller) PullBaseBranch(ctx context.Context, repoPath, baseBranch string, timeoutMs int) error {
	if timeoutMs <= 0 {
		timeoutMs = 15_000
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	//nolint:gosec // G204: repoPath/baseBranch come from the project registry, not user input
	cmd := exec.CommandContext(ctx, "git", "pull", "origin", baseBranch)
	cmd.Dir = repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git pull origin %s in %s: %w: %s", baseBranch, repoPath, err, stderr.String())
	}
	return nil
}
