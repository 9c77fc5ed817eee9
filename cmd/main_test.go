package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/jaxxstorm/deployver"
)

func emptyLookup(string) (string, bool) { return "", false }

// quietCLI returns a CLI that ignores the process environment and discards logs
func quietCLI(cli *CLI) *CLI {
	if cli.lookup == nil {
		cli.lookup = emptyLookup
	}
	cli.logger = newLogger(io.Discard, log.DebugLevel)
	return cli
}

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, runErr)
	return string(output)
}

// initRepo creates a repository on disk with one commit per message
func initRepo(t *testing.T, files map[string]string, messages ...string) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	for i, msg := range messages {
		name := filepath.Join(dir, "history.txt")
		require.NoError(t, os.WriteFile(name, []byte(strings.Repeat("x", i+1)), 0o644))
		_, err = wt.Add("history.txt")
		require.NoError(t, err)

		_, err = wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test User",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		require.NoError(t, err)
	}

	return dir, repo
}

func tagHead(t *testing.T, repo *git.Repository, name string) {
	t.Helper()

	head, err := repo.Head()
	require.NoError(t, err)
	_, err = repo.CreateTag(name, head.Hash(), nil)
	require.NoError(t, err)
}

func TestCLIShowVersion(t *testing.T) {
	cli := quietCLI(&CLI{ShowVersion: true})

	output := captureStdout(t, cli.showVersion)

	require.Contains(t, output, "deployver version")
	require.Contains(t, output, "dev") // Default version should be "dev"
}

func TestCLIShowVersionJSON(t *testing.T) {
	cli := quietCLI(&CLI{ShowVersion: true, JSON: true})

	output := captureStdout(t, cli.showVersion)

	var versionInfo map[string]string
	require.NoError(t, json.Unmarshal([]byte(output), &versionInfo))
	require.Equal(t, "dev", versionInfo["version"])
	require.Equal(t, "deployver", versionInfo["name"])
}

func TestCLIStrategy(t *testing.T) {
	t.Run("Default preset", func(t *testing.T) {
		s, err := (&CLI{}).strategy()
		require.NoError(t, err)
		require.Equal(t, "0.0.{commit-count}", s.Format())
	})

	t.Run("Named preset", func(t *testing.T) {
		s, err := (&CLI{Strategy: "build-number"}).strategy()
		require.NoError(t, err)
		require.Equal(t, "build-{commit-count}-{commit-hash:8}", s.Format())
	})

	t.Run("Unknown preset", func(t *testing.T) {
		_, err := (&CLI{Strategy: "calver"}).strategy()
		require.ErrorIs(t, err, deployver.ErrUnknownStrategy)
	})

	t.Run("Format overrides preset", func(t *testing.T) {
		s, err := (&CLI{Strategy: "git-tag", Format: "{branch}-{commit-hash}"}).strategy()
		require.NoError(t, err)
		require.Equal(t, "{branch}-{commit-hash}", s.Format())
	})

	t.Run("Config file overrides format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("preset: git-tag-dev\n"), 0o644))

		s, err := (&CLI{Format: "{branch}", Config: path}).strategy()
		require.NoError(t, err)
		require.Equal(t, "{git-tag}", s.Format())
		require.Equal(t, deployver.CommitCountSinceTag, s.Components().CommitCount.Mode)
	})

	t.Run("Missing config file", func(t *testing.T) {
		_, err := (&CLI{Config: filepath.Join(t.TempDir(), "missing.yaml")}).strategy()
		require.Error(t, err)
		require.Contains(t, err.Error(), "reading strategy file")
	})
}

func TestParseStrategy(t *testing.T) {
	t.Run("YAML format with components", func(t *testing.T) {
		s, err := parseStrategy([]byte(`
format: "{package-version}-{branch}.{commit-count}"
components:
  commitCount:
    mode: all
    padding: 3
`))
		require.NoError(t, err)
		require.Equal(t, "{package-version}-{branch}.{commit-count}", s.Format())

		components := s.Components()
		require.NotNil(t, components.CommitCount)
		require.Equal(t, deployver.CommitCountAll, components.CommitCount.Mode)
		require.Equal(t, 3, components.CommitCount.Padding)
		require.Nil(t, components.GitTag)
	})

	t.Run("JSON document", func(t *testing.T) {
		s, err := parseStrategy([]byte(`{"format": "{git-tag}", "components": {"gitTag": {"prefix": "release-"}}}`))
		require.NoError(t, err)
		require.Equal(t, "{git-tag}", s.Format())
		require.Equal(t, "release-", s.Components().GitTag.Prefix)
	})

	t.Run("Unknown preset", func(t *testing.T) {
		_, err := parseStrategy([]byte("preset: nightly\n"))
		require.ErrorIs(t, err, deployver.ErrUnknownStrategy)
	})

	t.Run("Empty document", func(t *testing.T) {
		_, err := parseStrategy([]byte("components: {}\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "preset or format")
	})

	t.Run("Malformed document", func(t *testing.T) {
		_, err := parseStrategy([]byte("format: [unterminated"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "parsing strategy file")
	})
}

func TestCLIComputeVersionNonGitRepo(t *testing.T) {
	cli := quietCLI(&CLI{Repo: t.TempDir()})

	output := captureStdout(t, cli.computeVersion)

	require.Equal(t, "0.0.0\n", output)
}

func TestCLIComputeVersionNonGitRepoJSON(t *testing.T) {
	cli := quietCLI(&CLI{Repo: t.TempDir(), JSON: true, Environment: "staging"})

	output := captureStdout(t, cli.computeVersion)

	record, err := deployver.FromJSON([]byte(output))
	require.NoError(t, err)

	// Should get the fallback record
	require.Equal(t, "0.0.0", record.Version)
	require.Equal(t, "unknown", record.CommitHash)
	require.Equal(t, "unknown", record.Branch)
	require.Equal(t, "0.0.0", record.PackageVersion)
	require.Equal(t, "staging", record.Environment)
}

func TestCLIComputeVersionFromEnvironment(t *testing.T) {
	cli := quietCLI(&CLI{
		Repo:     t.TempDir(),
		Strategy: "build-number",
		JSON:     true,
		lookup: func(key string) (string, bool) {
			v, ok := map[string]string{
				"GITHUB_SHA":        "abcdef1234567890",
				"GITHUB_REF":        "refs/heads/main",
				"COMMIT_COUNT":      "42",
				"GITHUB_RUN_NUMBER": "7",
				"GITHUB_ACTOR":      "octocat",
			}[key]
			return v, ok
		},
	})

	output := captureStdout(t, cli.computeVersion)

	record, err := deployver.FromJSON([]byte(output))
	require.NoError(t, err)
	require.Equal(t, "build-42-abcdef12", record.Version)
	require.Equal(t, "main", record.Branch)
	require.Equal(t, "7", record.BuildNumber)
	require.Equal(t, "octocat", record.DeploymentUser)
	require.Equal(t, "unknown", record.Environment)
}

func TestCLIComputeVersionGitRepo(t *testing.T) {
	t.Run("Commit count", func(t *testing.T) {
		dir, _ := initRepo(t, nil, "first", "second", "third")
		cli := quietCLI(&CLI{Repo: dir})

		output := captureStdout(t, cli.computeVersion)
		require.Equal(t, "0.0.3\n", output)
	})

	t.Run("Tagged release", func(t *testing.T) {
		dir, repo := initRepo(t, nil, "first", "second")
		tagHead(t, repo, "v1.2.3")
		cli := quietCLI(&CLI{Repo: dir, Strategy: "git-tag"})

		output := captureStdout(t, cli.computeVersion)
		require.Equal(t, "1.2.3\n", output)
	})

	t.Run("Package with branch", func(t *testing.T) {
		dir, _ := initRepo(t, map[string]string{
			"package.json": `{"name": "app", "version": "2.1.0"}`,
		}, "first", "second")
		cli := quietCLI(&CLI{Repo: dir, Strategy: "package-with-branch", JSON: true, Environment: "production"})

		output := captureStdout(t, cli.computeVersion)

		record, err := deployver.FromJSON([]byte(output))
		require.NoError(t, err)
		require.Equal(t, "2.1.0-master.2", record.Version)
		require.Equal(t, "2.1.0", record.PackageVersion)
		require.Equal(t, "master", record.Branch)
		require.Equal(t, 2, record.CommitCount)
		require.Len(t, record.CommitHash, 40)
		require.Equal(t, "production", record.Environment)
	})

	t.Run("Explicit package version", func(t *testing.T) {
		dir, _ := initRepo(t, map[string]string{
			"package.json": `{"version": "2.1.0"}`,
		}, "first")
		cli := quietCLI(&CLI{
			Repo:   dir,
			Format: "{package-version}+{commit-count}",
			lookup: func(key string) (string, bool) {
				if key == "PACKAGE_VERSION" {
					return "9.9.9", true
				}
				return "", false
			},
		})

		output := captureStdout(t, cli.computeVersion)
		require.Equal(t, "9.9.9+1\n", output)
	})

	t.Run("Invalid tag pattern", func(t *testing.T) {
		dir, _ := initRepo(t, nil, "first")
		cli := quietCLI(&CLI{Repo: dir, TagPattern: "["})

		// Collection fails and no CI facts exist, so the fallback is used
		output := captureStdout(t, cli.computeVersion)
		require.Equal(t, "0.0.0\n", output)
	})
}

func TestCLIOutputFile(t *testing.T) {
	dir, _ := initRepo(t, nil, "first", "second")
	out := filepath.Join(t.TempDir(), "version.json")
	cli := quietCLI(&CLI{Repo: dir, Output: out})

	output := captureStdout(t, cli.computeVersion)
	require.Equal(t, "0.0.2\n", output)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	record, err := deployver.FromJSON(data)
	require.NoError(t, err)
	require.Equal(t, "0.0.2", record.Version)
	require.Equal(t, 2, record.CommitCount)
}

func TestCLIRun(t *testing.T) {
	t.Run("Show version", func(t *testing.T) {
		cli := quietCLI(&CLI{ShowVersion: true})

		output := captureStdout(t, cli.Run)
		require.Contains(t, output, "deployver version")
	})

	t.Run("Compute version in non-git directory", func(t *testing.T) {
		cli := quietCLI(&CLI{Repo: t.TempDir()})

		output := captureStdout(t, cli.Run)
		require.Equal(t, "0.0.0\n", output)
	})

	t.Run("Unknown strategy", func(t *testing.T) {
		cli := quietCLI(&CLI{Repo: t.TempDir(), Strategy: "nightly"})

		err := cli.Run()
		require.ErrorIs(t, err, deployver.ErrUnknownStrategy)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)

	logger.Debug("hidden")
	logger.Info("Version computed", "version", "1.2.3")

	output := buf.String()
	require.NotContains(t, output, "hidden")
	require.Contains(t, output, "Version computed")
	require.Contains(t, output, "version=1.2.3")
	require.Contains(t, output, "deployver")
}
