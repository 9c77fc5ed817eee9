// Package source gathers the facts a deployment version is computed from:
// git repository state, the package manifest and the CI environment.
package source

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/jaxxstorm/deployver"
)

// Options configures how git facts are collected
type Options struct {
	// Repository is the Git repository to analyze
	Repository *git.Repository

	// Commitish specifies which commit to analyze (default: "HEAD")
	Commitish plumbing.Revision

	// Branch overrides the branch name read from HEAD
	Branch string

	// TagFilter allows filtering which tags to consider
	TagFilter func(string) bool

	// TagPattern is a regex pattern to filter tags (alternative to TagFilter)
	TagPattern string
}

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// Collect reads commit hash, branch, tag and commit counts for a commit.
// Tag is only set when the commit itself is tagged; otherwise the distance to
// the nearest reachable tag is reported as commits since tag.
func Collect(opts Options) (deployver.GitInfo, error) {
	if opts.Repository == nil {
		return deployver.GitInfo{}, fmt.Errorf("repository is required")
	}

	if opts.Commitish == "" {
		opts.Commitish = "HEAD"
	}

	// Apply tag pattern filter if specified
	if opts.TagPattern != "" && opts.TagFilter == nil {
		re, err := regexp.Compile(opts.TagPattern)
		if err != nil {
			return deployver.GitInfo{}, fmt.Errorf("invalid tag pattern: %w", err)
		}
		opts.TagFilter = func(tag string) bool {
			return re.MatchString(tag)
		}
	}

	revision, err := opts.Repository.ResolveRevision(opts.Commitish)
	if err != nil {
		return deployver.GitInfo{}, fmt.Errorf("resolving commitish: %w", err)
	}

	commit, err := opts.Repository.CommitObject(*revision)
	if err != nil {
		return deployver.GitInfo{}, fmt.Errorf("getting commit object: %w", err)
	}

	tags, err := tagIndex(opts.Repository, opts.TagFilter)
	if err != nil {
		return deployver.GitInfo{}, fmt.Errorf("indexing tags: %w", err)
	}

	count, sinceTag, err := walkHistory(commit, tags)
	if err != nil {
		return deployver.GitInfo{}, fmt.Errorf("walking history: %w", err)
	}

	branch := opts.Branch
	if branch == "" {
		branch, err = currentBranch(opts.Repository)
		if err != nil {
			return deployver.GitInfo{}, fmt.Errorf("reading branch: %w", err)
		}
	}

	props := deployver.GitInfoProps{
		CommitHash:  revision.String(),
		Branch:      branch,
		Tag:         tags[commit.Hash],
		CommitCount: count,
	}
	if props.Tag == "" && sinceTag >= 0 {
		props.CommitsSinceTag = &sinceTag
	}

	return deployver.NewGitInfo(props)
}

// currentBranch returns the short branch name HEAD points at, or "HEAD" when
// HEAD is detached
func currentBranch(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

// tagIndex maps tagged commit hashes to tag names. When several tags point
// at the same commit the highest semantic version wins.
func tagIndex(repo *git.Repository, tagFilter func(string) bool) (map[plumbing.Hash]string, error) {
	tags, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	index := make(map[plumbing.Hash]string)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		name := ref.Name().Short()
		if tagFilter != nil && !tagFilter(name) {
			return nil
		}

		target := ref.Hash()
		obj, err := repo.TagObject(ref.Hash())
		switch err {
		case nil:
			// Annotated tag
			target = obj.Target
		case plumbing.ErrObjectNotFound:
			// Lightweight tag
		default:
			return err
		}

		index[target] = preferTag(index[target], name)
		return nil
	})

	return index, err
}

// walkHistory counts every commit reachable from commit and the number of
// commits walked before reaching the nearest tagged commit (-1 if none).
func walkHistory(commit *object.Commit, tags map[plumbing.Hash]string) (int, int, error) {
	count := 0
	sinceTag := -1

	walker := object.NewCommitPreorderIter(commit, nil, nil)
	err := walker.ForEach(func(c *object.Commit) error {
		if sinceTag < 0 {
			if _, ok := tags[c.Hash]; ok {
				sinceTag = count
			}
		}
		count++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return count, sinceTag, nil
}

// preferTag picks between two tags on the same commit, preferring the one
// that parses as the higher semantic version
func preferTag(current, candidate string) string {
	if current == "" {
		return candidate
	}

	a, errA := semver.ParseTolerant(stripModuleTagPrefixes(current))
	b, errB := semver.ParseTolerant(stripModuleTagPrefixes(candidate))
	switch {
	case errA == nil && errB == nil:
		if b.GT(a) || b.EQ(a) && candidate > current {
			return candidate
		}
		return current
	case errB == nil:
		return candidate
	case errA == nil:
		return current
	}

	if candidate > current {
		return candidate
	}
	return current
}

func stripModuleTagPrefixes(tag string) string {
	_, versionComponent := path.Split(tag)
	return strings.TrimPrefix(versionComponent, "v")
}

// IsDirty reports whether the worktree has uncommitted changes
func IsDirty(repo *git.Repository) (bool, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}
