// Package deployver computes deterministic deployment version strings from
// source-control, package and CI pipeline facts.
package deployver

import (
	"fmt"
	"strings"
)

// DefaultShortHashLength is the length of GitInfo.ShortCommitHash
const DefaultShortHashLength = 8

const unknown = "unknown"

// GitInfo contains the source-control facts a version is computed from.
// Values are copied, never shared, so a GitInfo can be passed around freely.
type GitInfo struct {
	CommitHash      string
	ShortCommitHash string
	Branch          string

	// Tag is set only when the commit is exactly tagged. Empty means no tag.
	Tag string

	CommitCount int

	commitsSinceTag    int
	hasCommitsSinceTag bool
}

// GitInfoProps are the inputs to NewGitInfo
type GitInfoProps struct {
	CommitHash  string
	Branch      string
	Tag         string
	CommitCount int

	// CommitsSinceTag is optional; nil means the distance to the last tag is unknown.
	CommitsSinceTag *int
}

// NewGitInfo builds a GitInfo and derives the short commit hash
func NewGitInfo(props GitInfoProps) (GitInfo, error) {
	if props.CommitCount < 0 {
		return GitInfo{}, fmt.Errorf("%w: commit count %d is negative", ErrInvalidGitInfo, props.CommitCount)
	}

	info := GitInfo{
		CommitHash:      props.CommitHash,
		ShortCommitHash: ShortenHash(props.CommitHash, DefaultShortHashLength),
		Branch:          props.Branch,
		Tag:             props.Tag,
		CommitCount:     props.CommitCount,
	}

	if props.CommitsSinceTag != nil {
		if *props.CommitsSinceTag < 0 {
			return GitInfo{}, fmt.Errorf("%w: commits since tag %d is negative", ErrInvalidGitInfo, *props.CommitsSinceTag)
		}
		info.commitsSinceTag = *props.CommitsSinceTag
		info.hasCommitsSinceTag = true
	}

	return info, nil
}

// SinceTag returns the number of commits since the last tag and whether it is known
func (g GitInfo) SinceTag() (int, bool) {
	return g.commitsSinceTag, g.hasCommitsSinceTag
}

// ShortenHash truncates hash to at most length characters. Short input is
// returned unchanged.
func ShortenHash(hash string, length int) string {
	if length < 0 {
		length = 0
	}
	if length >= len(hash) {
		return hash
	}
	return hash[:length]
}

// IsMainBranch reports whether branch is exactly "main" or "master"
func IsMainBranch(branch string) bool {
	return branch == "main" || branch == "master"
}

// IsTaggedRelease reports whether the commit carries a tag
func IsTaggedRelease(info GitInfo) bool {
	return info.Tag != ""
}

// ExtractBranchName derives a branch name from a CI ref such as
// "refs/heads/main". A non-empty headRef (the source branch of a pull
// request) always wins. Pull request merge refs are returned unchanged.
func ExtractBranchName(ref, headRef string) string {
	if headRef != "" {
		return headRef
	}

	if branch, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return branch
	}

	if strings.Contains(ref, "/pull/") {
		return ref
	}

	if ref == "" {
		return unknown
	}
	return ref
}

// ExtractTagName returns the tag named by a "refs/tags/..." ref, or an empty
// string when ref does not point at a tag.
func ExtractTagName(ref string) string {
	tag, ok := strings.CutPrefix(ref, "refs/tags/")
	if !ok {
		return ""
	}
	return tag
}
