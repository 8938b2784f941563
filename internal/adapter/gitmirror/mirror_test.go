package gitmirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedMirror creates a bare repository with one commit on master and returns
// its path.
func seedMirror(t *testing.T) string {
	t.Helper()

	bareDir := t.TempDir()
	_, err := git.PlainInit(bareDir, true)
	require.NoError(t, err)

	seedDir := t.TempDir()
	seed, err := git.PlainInit(seedDir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "README.md"), []byte("# mirror\n"), 0o644))

	wt, err := seed.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = seed.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{bareDir}})
	require.NoError(t, err)
	require.NoError(t, seed.Push(&git.PushOptions{}))

	return bareDir
}

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crashes.parquet")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestMirror(repoURL string) *Mirror {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repoURL, "master", "", "crashes.parquet", "crash-injury-etl", "etl@example.com", logger)
}

// headCommit returns the tip of master in the bare repository.
func headCommit(t *testing.T, bareDir string) *object.Commit {
	t.Helper()
	repo, err := git.PlainOpen(bareDir)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return commit
}

func TestPublish_PushesSnapshot(t *testing.T) {
	bareDir := seedMirror(t)
	snapshot := writeSnapshot(t, "snapshot-v1")

	require.NoError(t, newTestMirror(bareDir).Publish(context.Background(), snapshot))

	commit := headCommit(t, bareDir)
	assert.Equal(t, "Update crashes.parquet", commit.Message)
	assert.Equal(t, "crash-injury-etl", commit.Author.Name)

	f, err := commit.File("crashes.parquet")
	require.NoError(t, err)
	body, err := f.Contents()
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v1", body)
}

func TestPublish_UnchangedSnapshotSkipsCommit(t *testing.T) {
	bareDir := seedMirror(t)
	snapshot := writeSnapshot(t, "snapshot-v1")
	m := newTestMirror(bareDir)

	require.NoError(t, m.Publish(context.Background(), snapshot))
	first := headCommit(t, bareDir)

	require.NoError(t, m.Publish(context.Background(), snapshot))
	second := headCommit(t, bareDir)

	assert.Equal(t, first.Hash, second.Hash)
}

func TestPublish_NewContentCommitsAgain(t *testing.T) {
	bareDir := seedMirror(t)
	m := newTestMirror(bareDir)

	require.NoError(t, m.Publish(context.Background(), writeSnapshot(t, "snapshot-v1")))
	require.NoError(t, m.Publish(context.Background(), writeSnapshot(t, "snapshot-v2")))

	commit := headCommit(t, bareDir)
	f, err := commit.File("crashes.parquet")
	require.NoError(t, err)
	body, err := f.Contents()
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v2", body)
}

func TestPublish_CloneFailure(t *testing.T) {
	snapshot := writeSnapshot(t, "snapshot-v1")

	err := newTestMirror(filepath.Join(t.TempDir(), "missing")).Publish(context.Background(), snapshot)
	require.Error(t, err)

	var pubErr *domain.PublishError
	assert.ErrorAs(t, err, &pubErr)
}

func TestPublish_MissingSnapshot(t *testing.T) {
	bareDir := seedMirror(t)

	err := newTestMirror(bareDir).Publish(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)

	var pubErr *domain.PublishError
	assert.ErrorAs(t, err, &pubErr)
}
