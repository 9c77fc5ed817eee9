package source

import (
	"fmt"
	"strconv"

	"github.com/jaxxstorm/deployver"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Pipeline holds the CI facts that are not source-control metadata
type Pipeline struct {
	BuildNumber     string
	PipelineVersion string
	RepositoryURL   string
	DeploymentUser  string
	PackageVersion  string
	DeploymentTime  string
}

// first returns the first non-empty variable among keys
func (l LookupFunc) first(keys ...string) string {
	for _, key := range keys {
		if v, ok := l(key); ok && v != "" {
			return v
		}
	}
	return ""
}

// GitInfoFromEnv reads git facts exported by GitHub Actions, GitLab CI or a
// generic CI system. The boolean is false when no commit hash is available.
func GitInfoFromEnv(lookup LookupFunc) (deployver.GitInfo, bool, error) {
	var props deployver.GitInfoProps

	switch {
	case lookup.first("GITHUB_SHA") != "":
		ref := lookup.first("GITHUB_REF")
		props.CommitHash = lookup.first("GITHUB_SHA")
		props.Branch = deployver.ExtractBranchName(ref, lookup.first("GITHUB_HEAD_REF"))
		props.Tag = deployver.ExtractTagName(ref)
	case lookup.first("CI_COMMIT_SHA") != "":
		props.CommitHash = lookup.first("CI_COMMIT_SHA")
		props.Branch = lookup.first("CI_COMMIT_REF_NAME")
		props.Tag = lookup.first("CI_COMMIT_TAG")
	default:
		props.CommitHash = lookup.first("GIT_COMMIT", "COMMIT_SHA")
		props.Branch = lookup.first("GIT_BRANCH", "BRANCH")
		props.Tag = lookup.first("GIT_TAG")
	}

	if props.CommitHash == "" {
		return deployver.GitInfo{}, false, nil
	}
	if props.Branch == "" {
		props.Branch = "unknown"
	}

	var err error
	if v := lookup.first("COMMIT_COUNT"); v != "" {
		props.CommitCount, err = strconv.Atoi(v)
		if err != nil {
			return deployver.GitInfo{}, false, fmt.Errorf("parsing COMMIT_COUNT: %w", err)
		}
	}

	if v := lookup.first("COMMITS_SINCE_TAG"); v != "" {
		since, err := strconv.Atoi(v)
		if err != nil {
			return deployver.GitInfo{}, false, fmt.Errorf("parsing COMMITS_SINCE_TAG: %w", err)
		}
		props.CommitsSinceTag = &since
	}

	info, err := deployver.NewGitInfo(props)
	if err != nil {
		return deployver.GitInfo{}, false, err
	}
	return info, true, nil
}

// ReadPipeline reads build and deployment facts from CI variables
func ReadPipeline(lookup LookupFunc) Pipeline {
	p := Pipeline{
		BuildNumber:     lookup.first("BUILD_NUMBER", "GITHUB_RUN_NUMBER", "CI_PIPELINE_IID"),
		PipelineVersion: lookup.first("PIPELINE_VERSION", "CODEBUILD_BUILD_ID", "CI_PIPELINE_ID"),
		RepositoryURL:   lookup.first("REPOSITORY_URL"),
		DeploymentUser:  lookup.first("GITHUB_ACTOR", "GITLAB_USER_LOGIN", "USER"),
		PackageVersion:  lookup.first("PACKAGE_VERSION"),
		DeploymentTime:  lookup.first("DEPLOYMENT_TIME"),
	}

	if p.RepositoryURL == "" {
		if repo := lookup.first("GITHUB_REPOSITORY"); repo != "" {
			server := lookup.first("GITHUB_SERVER_URL")
			if server == "" {
				server = "https://github.com"
			}
			p.RepositoryURL = server + "/" + repo
		} else {
			p.RepositoryURL = lookup.first("CI_PROJECT_URL")
		}
	}

	return p
}
