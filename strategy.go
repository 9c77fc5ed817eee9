package deployver

import (
	"fmt"
	"sort"
)

// CommitCountMode selects which commit count a {commit-count} placeholder reads
type CommitCountMode string

const (
	CommitCountAll      CommitCountMode = "all"
	CommitCountBranch   CommitCountMode = "branch"
	CommitCountSinceTag CommitCountMode = "since-tag"
)

// GitTagConfig configures the {git-tag} placeholder
type GitTagConfig struct {
	// Prefix is stripped from the start of the tag (e.g. "v" for "v1.2.3")
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Pattern describes the expected tag shape. It is informational and is
	// not consulted during resolution.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// CountCommitsSince emits dev.<n> when the commit is not tagged
	CountCommitsSince bool `json:"countCommitsSince,omitempty" yaml:"countCommitsSince,omitempty"`
}

// PackageJSONConfig configures the {package-version} placeholder
type PackageJSONConfig struct {
	IncludePrerelease bool `json:"includePrerelease,omitempty" yaml:"includePrerelease,omitempty"`
}

// CommitCountConfig configures the {commit-count} placeholder
type CommitCountConfig struct {
	Mode CommitCountMode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Padding left-pads the count with zeros to at least this many digits
	Padding int `json:"padding,omitempty" yaml:"padding,omitempty"`
}

// BuildNumberConfig records where a build number came from. Resolution reads
// the build number from the ComputationContext.
type BuildNumberConfig struct {
	EnvVar string `json:"envVar,omitempty" yaml:"envVar,omitempty"`
}

// Components holds the optional per-placeholder configuration of a Strategy.
// A nil section means the placeholder uses its built-in behaviour.
type Components struct {
	GitTag      *GitTagConfig      `json:"gitTag,omitempty" yaml:"gitTag,omitempty"`
	PackageJSON *PackageJSONConfig `json:"packageJson,omitempty" yaml:"packageJson,omitempty"`
	CommitCount *CommitCountConfig `json:"commitCount,omitempty" yaml:"commitCount,omitempty"`
	BuildNumber *BuildNumberConfig `json:"buildNumber,omitempty" yaml:"buildNumber,omitempty"`
}

func (c Components) clone() Components {
	var out Components
	if c.GitTag != nil {
		v := *c.GitTag
		out.GitTag = &v
	}
	if c.PackageJSON != nil {
		v := *c.PackageJSON
		out.PackageJSON = &v
	}
	if c.CommitCount != nil {
		v := *c.CommitCount
		out.CommitCount = &v
	}
	if c.BuildNumber != nil {
		v := *c.BuildNumber
		out.BuildNumber = &v
	}
	return out
}

// padding returns the configured commit count padding, never negative
func (c Components) padding() int {
	if c.CommitCount == nil || c.CommitCount.Padding < 0 {
		return 0
	}
	return c.CommitCount.Padding
}

// Strategy is an immutable format string plus the options used to resolve
// its placeholders.
type Strategy struct {
	format     string
	components Components
}

// Format returns the strategy's format string
func (s Strategy) Format() string {
	return s.format
}

// Components returns a copy of the strategy's placeholder configuration
func (s Strategy) Components() Components {
	return s.components.clone()
}

// Option overrides part of a preset's configuration
type Option func(*Components)

// WithTagPrefix sets the prefix stripped from git tags
func WithTagPrefix(prefix string) Option {
	return func(c *Components) {
		gitTagSection(c).Prefix = prefix
	}
}

// WithTagPattern sets the informational tag pattern
func WithTagPattern(pattern string) Option {
	return func(c *Components) {
		gitTagSection(c).Pattern = pattern
	}
}

// WithCommitsSinceTag toggles dev.<n> versions for untagged commits
func WithCommitsSinceTag(enabled bool) Option {
	return func(c *Components) {
		gitTagSection(c).CountCommitsSince = enabled
	}
}

// WithCommitCountMode selects the commit count source
func WithCommitCountMode(mode CommitCountMode) Option {
	return func(c *Components) {
		commitCountSection(c).Mode = mode
	}
}

// WithPadding sets the default zero padding for commit counts
func WithPadding(padding int) Option {
	return func(c *Components) {
		commitCountSection(c).Padding = padding
	}
}

// WithPrerelease toggles the package prerelease flag
func WithPrerelease(include bool) Option {
	return func(c *Components) {
		if c.PackageJSON == nil {
			c.PackageJSON = &PackageJSONConfig{}
		}
		c.PackageJSON.IncludePrerelease = include
	}
}

// WithBuildNumberEnvVar records the variable the build number is read from
func WithBuildNumberEnvVar(name string) Option {
	return func(c *Components) {
		if c.BuildNumber == nil {
			c.BuildNumber = &BuildNumberConfig{}
		}
		c.BuildNumber.EnvVar = name
	}
}

func gitTagSection(c *Components) *GitTagConfig {
	if c.GitTag == nil {
		c.GitTag = &GitTagConfig{}
	}
	return c.GitTag
}

func commitCountSection(c *Components) *CommitCountConfig {
	if c.CommitCount == nil {
		c.CommitCount = &CommitCountConfig{Mode: CommitCountAll}
	}
	return c.CommitCount
}

// NewStrategy creates a custom strategy. Placeholders the resolver does not
// know are left in the output verbatim.
func NewStrategy(format string, components Components) Strategy {
	return Strategy{format: format, components: components.clone()}
}

func preset(format string, defaults Components, opts []Option) Strategy {
	for _, opt := range opts {
		if opt != nil {
			opt(&defaults)
		}
	}
	return Strategy{format: format, components: defaults}
}

// GitTag uses the git tag as the version: {git-tag}
func GitTag(opts ...Option) Strategy {
	return preset("{git-tag}", Components{
		GitTag: &GitTagConfig{Prefix: "v", Pattern: "*.*.*", CountCommitsSince: true},
	}, opts)
}

// GitTagWithDevVersions uses the git tag, or dev.<commits since tag> for
// untagged commits: {git-tag}
func GitTagWithDevVersions(opts ...Option) Strategy {
	s := preset("{git-tag}", Components{
		GitTag:      &GitTagConfig{Prefix: "v", Pattern: "*.*.*", CountCommitsSince: true},
		CommitCount: &CommitCountConfig{Mode: CommitCountSinceTag},
	}, opts)
	s.components.GitTag.CountCommitsSince = true
	return s
}

// PackageJSON uses the package version: {package-version}
func PackageJSON(opts ...Option) Strategy {
	return preset("{package-version}", Components{
		PackageJSON: &PackageJSONConfig{IncludePrerelease: true},
	}, opts)
}

// CommitCount uses the commit count as the patch number: 0.0.{commit-count}
func CommitCount(opts ...Option) Strategy {
	return preset("0.0.{commit-count}", Components{
		CommitCount: &CommitCountConfig{Mode: CommitCountAll},
	}, opts)
}

// CommitHash uses the first length characters of the commit hash. A
// non-positive length selects the default of 8.
func CommitHash(length int) Strategy {
	if length <= 0 {
		length = DefaultShortHashLength
	}
	return Strategy{format: fmt.Sprintf("{commit-hash:%d}", length)}
}

// BuildNumber combines commit count and hash: build-{commit-count}-{commit-hash:8}
func BuildNumber(opts ...Option) Strategy {
	return preset("build-{commit-count}-{commit-hash:8}", Components{
		BuildNumber: &BuildNumberConfig{},
		CommitCount: &CommitCountConfig{Mode: CommitCountAll},
	}, opts)
}

// PackageWithBranch combines package version, branch and commit count:
// {package-version}-{branch}.{commit-count}
func PackageWithBranch(opts ...Option) Strategy {
	return preset("{package-version}-{branch}.{commit-count}", Components{
		PackageJSON: &PackageJSONConfig{IncludePrerelease: true},
		CommitCount: &CommitCountConfig{Mode: CommitCountAll},
	}, opts)
}

// SemanticWithPatch appends the commit count to the package version:
// {package-version}.{commit-count}
func SemanticWithPatch(opts ...Option) Strategy {
	return preset("{package-version}.{commit-count}", Components{
		PackageJSON: &PackageJSONConfig{IncludePrerelease: false},
		CommitCount: &CommitCountConfig{Mode: CommitCountAll},
	}, opts)
}

func commitHashPreset(opts ...Option) Strategy {
	return preset(CommitHash(DefaultShortHashLength).format, Components{}, opts)
}

var presets = map[string]func(...Option) Strategy{
	"git-tag":             GitTag,
	"git-tag-dev":         GitTagWithDevVersions,
	"package-json":        PackageJSON,
	"commit-count":        CommitCount,
	"commit-hash":         commitHashPreset,
	"build-number":        BuildNumber,
	"package-with-branch": PackageWithBranch,
	"semantic-with-patch": SemanticWithPatch,
}

// Preset looks up a named preset such as "git-tag" or "build-number" and
// applies opts to its components. The "commit-hash" preset always uses an
// 8 character hash; opts only change the components it carries.
func Preset(name string, opts ...Option) (Strategy, error) {
	fn, ok := presets[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return fn(opts...), nil
}

// PresetNames returns the names accepted by Preset, sorted
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
