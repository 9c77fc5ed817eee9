package source

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate(t *testing.T) *git.Repository {
	t.Helper()
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	return repo
}

// testCommit writes a file and commits it, returning the commit hash
func testCommit(t *testing.T, repo *git.Repository, filename string) plumbing.Hash {
	t.Helper()
	workTree, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, writeFile(workTree.Filesystem, filename, "Content for "+filename))

	_, err = workTree.Add(filename)
	require.NoError(t, err)

	hash, err := workTree.Commit("Commit "+filename, &git.CommitOptions{Author: testSignature})
	require.NoError(t, err)
	return hash
}

// testCommits adds n commits and returns their hashes in order
func testCommits(t *testing.T, repo *git.Repository, prefix string, n int) []plumbing.Hash {
	t.Helper()
	hashes := make([]plumbing.Hash, 0, n)
	for i := 0; i < n; i++ {
		hashes = append(hashes, testCommit(t, repo, prefix+"-"+string(rune('a'+i))+".txt"))
	}
	return hashes
}

// testTag creates a lightweight tag, or an annotated one when message is set
func testTag(t *testing.T, repo *git.Repository, name string, hash plumbing.Hash, message string) {
	t.Helper()
	var opts *git.CreateTagOptions
	if message != "" {
		opts = &git.CreateTagOptions{Tagger: testSignature, Message: message}
	}
	_, err := repo.CreateTag(name, hash, opts)
	require.NoError(t, err)
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}
