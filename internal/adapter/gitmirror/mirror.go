// Package gitmirror publishes the snapshot by committing it to a downstream
// git repository, the handoff point for the dashboard build.
package gitmirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Mirror clones the downstream repository, replaces the snapshot file, and
// pushes a commit. Each run clones fresh into a temp directory; nothing is
// cached between runs.
type Mirror struct {
	repoURL     string
	branch      string
	token       string
	targetPath  string
	authorName  string
	authorEmail string
	logger      *slog.Logger
}

func New(repoURL, branch, token, targetPath, authorName, authorEmail string, logger *slog.Logger) *Mirror {
	return &Mirror{
		repoURL:     repoURL,
		branch:      branch,
		token:       token,
		targetPath:  targetPath,
		authorName:  authorName,
		authorEmail: authorEmail,
		logger:      logger,
	}
}

func (m *Mirror) auth() transport.AuthMethod {
	if m.token == "" {
		return nil
	}
	// GitHub accepts any username with a token password over HTTPS.
	return &githttp.BasicAuth{Username: "x-access-token", Password: m.token}
}

// Publish commits snapshotPath into the mirror as targetPath and pushes. When
// the snapshot is byte-identical to what the mirror already holds, no commit
// is made and the push is skipped, so re-runs are idempotent.
func (m *Mirror) Publish(ctx context.Context, snapshotPath string) error {
	workDir, err := os.MkdirTemp("", "crash-mirror-*")
	if err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: err}
	}
	defer os.RemoveAll(workDir)

	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           m.repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(m.branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          m.auth(),
	})
	if err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: fmt.Errorf("clone: %w", err)}
	}

	if err := copyFile(snapshotPath, filepath.Join(workDir, m.targetPath)); err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: err}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: err}
	}
	if _, err := wt.Add(m.targetPath); err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: fmt.Errorf("stage %s: %w", m.targetPath, err)}
	}

	status, err := wt.Status()
	if err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: err}
	}
	if status.IsClean() {
		m.logger.Info("mirror already current, skipping push", "target", m.targetPath)
		return nil
	}

	commit, err := wt.Commit(fmt.Sprintf("Update %s", m.targetPath), &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.authorName,
			Email: m.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: fmt.Errorf("commit: %w", err)}
	}

	if err := repo.PushContext(ctx, &git.PushOptions{Auth: m.auth()}); err != nil {
		return &domain.PublishError{Target: m.repoURL, Err: fmt.Errorf("push: %w", err)}
	}

	m.logger.Info("mirror updated",
		"target", m.targetPath,
		"branch", m.branch,
		"commit", commit.String(),
	)
	return nil
}

func copyFile(src, dst string) error {
	body, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare mirror path: %w", err)
	}
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return fmt.Errorf("copy snapshot: %w", err)
	}
	return nil
}
