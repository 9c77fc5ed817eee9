package deployver

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the ISO-8601 layout used for default deployment times
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// now is replaced in tests
var now = time.Now

// VersionInfo is the computed version record for a deployment. It holds its
// own copy of every git fact it needs.
type VersionInfo struct {
	Version         string `json:"version"`
	CommitHash      string `json:"commitHash"`
	ShortCommitHash string `json:"shortCommitHash"`
	Branch          string `json:"branch"`
	Tag             string `json:"tag,omitempty"`
	CommitCount     int    `json:"commitCount"`
	PackageVersion  string `json:"packageVersion,omitempty"`
	DeploymentTime  string `json:"deploymentTime"`
	DeploymentUser  string `json:"deploymentUser"`
	Environment     string `json:"environment"`
	RepositoryURL   string `json:"repositoryUrl,omitempty"`
	BuildNumber     string `json:"buildNumber,omitempty"`
	PipelineVersion string `json:"pipelineVersion,omitempty"`
}

// VersionInfoProps are the inputs to NewVersionInfo. Version, GitInfo and
// Environment are required.
type VersionInfoProps struct {
	Version         string
	GitInfo         *GitInfo
	PackageVersion  string
	DeploymentTime  string
	DeploymentUser  string
	Environment     string
	RepositoryURL   string
	BuildNumber     string
	PipelineVersion string
}

// NewVersionInfo validates props and builds a VersionInfo. Every missing
// required field is reported as a *ValidationError.
func NewVersionInfo(props VersionInfoProps) (VersionInfo, error) {
	var errs []error
	if props.Version == "" {
		errs = append(errs, &ValidationError{Field: "version"})
	}
	if props.GitInfo == nil {
		errs = append(errs, &ValidationError{Field: "gitInfo"})
	}
	if props.Environment == "" {
		errs = append(errs, &ValidationError{Field: "environment"})
	}
	if len(errs) > 0 {
		return VersionInfo{}, errors.Join(errs...)
	}

	info := VersionInfo{
		Version:         props.Version,
		CommitHash:      props.GitInfo.CommitHash,
		ShortCommitHash: props.GitInfo.ShortCommitHash,
		Branch:          props.GitInfo.Branch,
		Tag:             props.GitInfo.Tag,
		CommitCount:     props.GitInfo.CommitCount,
		PackageVersion:  props.PackageVersion,
		DeploymentTime:  props.DeploymentTime,
		DeploymentUser:  props.DeploymentUser,
		Environment:     props.Environment,
		RepositoryURL:   props.RepositoryURL,
		BuildNumber:     props.BuildNumber,
		PipelineVersion: props.PipelineVersion,
	}

	if info.DeploymentTime == "" {
		info.DeploymentTime = now().UTC().Format(TimeFormat)
	}
	if info.DeploymentUser == "" {
		info.DeploymentUser = unknown
	}

	return info, nil
}

// Fallback returns the record used when no source-control facts are
// available at all
func Fallback(environment string) VersionInfo {
	return VersionInfo{
		Version:         "0.0.0",
		CommitHash:      unknown,
		ShortCommitHash: unknown,
		Branch:          unknown,
		PackageVersion:  "0.0.0",
		DeploymentTime:  now().UTC().Format(TimeFormat),
		DeploymentUser:  unknown,
		Environment:     orDefault(environment, unknown),
	}
}

// FromJSON parses a record produced by VersionInfo.JSON
func FromJSON(data []byte) (VersionInfo, error) {
	var info VersionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return VersionInfo{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return info, nil
}

// Compare orders records by commit count, then by version string. It
// returns a negative number when a sorts before b, zero when equal and a
// positive number otherwise.
func Compare(a, b VersionInfo) int {
	if c := cmp.Compare(a.CommitCount, b.CommitCount); c != 0 {
		return c
	}
	return strings.Compare(a.Version, b.Version)
}

// DisplayVersion prefers the tag over the computed version
func (v VersionInfo) DisplayVersion() string {
	if v.Tag != "" {
		return v.Tag
	}
	return v.Version
}

// IsTaggedRelease reports whether the deployment was built from a tagged commit
func (v VersionInfo) IsTaggedRelease() bool {
	return IsTaggedRelease(v.GitInfo())
}

// IsMainBranch reports whether the deployment was built from main or master
func (v VersionInfo) IsMainBranch() bool {
	return IsMainBranch(v.Branch)
}

// GitInfo returns the git facts stored on the record. The distance to the
// last tag is not part of the record and is reported as unknown.
func (v VersionInfo) GitInfo() GitInfo {
	return GitInfo{
		CommitHash:      v.CommitHash,
		ShortCommitHash: v.ShortCommitHash,
		Branch:          v.Branch,
		Tag:             v.Tag,
		CommitCount:     v.CommitCount,
	}
}

// JSON encodes the record as indented JSON
func (v VersionInfo) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding version info: %w", err)
	}
	return data, nil
}

// ToMap returns the record as a plain map keyed by JSON field name. Optional
// fields that are not set are left out.
func (v VersionInfo) ToMap() map[string]any {
	m := map[string]any{
		"version":         v.Version,
		"commitHash":      v.CommitHash,
		"shortCommitHash": v.ShortCommitHash,
		"branch":          v.Branch,
		"commitCount":     v.CommitCount,
		"deploymentTime":  v.DeploymentTime,
		"deploymentUser":  v.DeploymentUser,
		"environment":     v.Environment,
	}

	optional := map[string]string{
		"tag":             v.Tag,
		"packageVersion":  v.PackageVersion,
		"repositoryUrl":   v.RepositoryURL,
		"buildNumber":     v.BuildNumber,
		"pipelineVersion": v.PipelineVersion,
	}
	for key, value := range optional {
		if value != "" {
			m[key] = value
		}
	}

	return m
}

// ParameterName fills a parameter-store name template such as
// "/app/{environment}/{version}"
func (v VersionInfo) ParameterName(template string) string {
	return v.substitute(template)
}

// ExportName fills a stack export name template such as "{environment}-{commit-hash}"
func (v VersionInfo) ExportName(template string) string {
	return v.substitute(template)
}

func (v VersionInfo) substitute(template string) string {
	r := strings.NewReplacer(
		"{version}", v.Version,
		"{environment}", v.Environment,
		"{branch}", v.Branch,
		"{commit-hash}", v.ShortCommitHash,
		"{tag}", v.Tag,
		"{commit-count}", strconv.Itoa(v.CommitCount),
	)
	return r.Replace(template)
}
