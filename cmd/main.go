package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jaxxstorm/deployver"
	"github.com/jaxxstorm/deployver/source"
)

// Version will be set by build process
var Version = "dev"

const defaultStrategy = "commit-count"

type CLI struct {
	Commitish   string `arg:"" optional:"" help:"Git commitish to analyze (default: HEAD)"`
	Strategy    string `short:"s" env:"DEPLOYVER_STRATEGY" default:"commit-count" enum:"${strategies}" help:"Versioning strategy preset (${strategies})"`
	Format      string `short:"f" env:"DEPLOYVER_FORMAT" help:"Custom format string, overrides --strategy (e.g. '{package-version}-{branch}.{commit-count:3}')"`
	Config      string `short:"c" type:"path" env:"DEPLOYVER_CONFIG" help:"YAML or JSON strategy file, overrides --strategy and --format"`
	Environment string `short:"e" env:"STAGE,ENVIRONMENT" default:"unknown" help:"Deployment environment name"`
	Repo        string `short:"r" help:"Repository path (default: current directory)"`
	PackageFile string `default:"package.json" help:"Package manifest path, relative to the repository"`
	TagPattern  string `help:"Regex pattern to filter tags (e.g., '^sdk/')"`
	Output      string `short:"o" type:"path" help:"Also write the version record as JSON to this file"`
	JSON        bool   `short:"j" help:"Output the full version record as JSON"`
	Verbose     bool   `short:"v" help:"Enable debug logging"`
	ShowVersion bool   `help:"Show version information" name:"version"`

	lookup source.LookupFunc
	logger *log.Logger
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("deployver"),
		kong.Description("Compute a deployment version from git, package and CI pipeline facts"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version":    Version,
			"strategies": strings.Join(deployver.PresetNames(), ","),
		},
	)

	err := cli.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	if c.lookup == nil {
		c.lookup = os.LookupEnv
	}
	if c.logger == nil {
		level := log.InfoLevel
		if c.Verbose {
			level = log.DebugLevel
		}
		c.logger = newLogger(os.Stderr, level)
	}

	if c.ShowVersion {
		return c.showVersion()
	}

	return c.computeVersion()
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "deployver",
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(versionInfo)
	}

	fmt.Printf("deployver version %s\n", Version)
	return nil
}

func (c *CLI) computeVersion() error {
	strategy, err := c.strategy()
	if err != nil {
		return err
	}

	repoPath := c.Repo
	if repoPath == "" {
		repoPath, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
	}

	environment := c.Environment
	if environment == "" {
		environment = "unknown"
	}

	gitInfo, found, err := c.gitInfo(repoPath)
	if err != nil {
		return err
	}

	var record deployver.VersionInfo
	if !found {
		// No git history and no CI facts: emit the fallback record
		c.logger.Warn("no git information available, using fallback version", "path", repoPath)
		record = deployver.Fallback(environment)
	} else {
		pipeline := source.ReadPipeline(c.lookup)
		ctx := deployver.ComputationContext{
			GitInfo:         gitInfo,
			PackageVersion:  c.packageVersion(repoPath, pipeline),
			Environment:     environment,
			RepositoryURL:   pipeline.RepositoryURL,
			BuildNumber:     pipeline.BuildNumber,
			PipelineVersion: pipeline.PipelineVersion,
			DeploymentTime:  pipeline.DeploymentTime,
			DeploymentUser:  pipeline.DeploymentUser,
		}

		record, err = deployver.NewComputer(strategy).Compute(ctx)
		if err != nil {
			return fmt.Errorf("computing version: %w", err)
		}
	}

	c.logger.Info("Version computed", "version", record.Version, "commit", record.ShortCommitHash)

	if c.Output != "" {
		if err := writeRecord(c.Output, record); err != nil {
			return err
		}
		c.logger.Debug("wrote version record", "path", c.Output)
	}

	if c.JSON {
		data, err := record.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(record.Version)
	return nil
}

// strategy picks the strategy from --config, --format or --strategy, in that order
func (c *CLI) strategy() (deployver.Strategy, error) {
	if c.Config != "" {
		return loadStrategyFile(c.Config)
	}

	if c.Format != "" {
		return deployver.NewStrategy(c.Format, deployver.Components{}), nil
	}

	name := c.Strategy
	if name == "" {
		name = defaultStrategy
	}
	return deployver.Preset(name)
}

// gitInfo reads git facts from the repository, falling back to CI variables
func (c *CLI) gitInfo(repoPath string) (deployver.GitInfo, bool, error) {
	repo, err := source.OpenRepository(repoPath)
	if err == nil {
		info, err := source.Collect(source.Options{
			Repository: repo,
			Commitish:  plumbing.Revision(c.Commitish),
			TagPattern: c.TagPattern,
		})
		if err == nil {
			if dirty, err := source.IsDirty(repo); err == nil && dirty {
				c.logger.Warn("working tree has uncommitted changes", "commit", info.ShortCommitHash)
			}
			return info, true, nil
		}
		c.logger.Debug("collecting git information failed", "err", err)
	} else {
		c.logger.Debug("opening repository failed", "path", repoPath, "err", err)
	}

	info, ok, err := source.GitInfoFromEnv(c.lookup)
	if err != nil {
		return deployver.GitInfo{}, false, fmt.Errorf("reading git information from environment: %w", err)
	}
	if ok {
		c.logger.Debug("using git information from CI environment", "commit", info.ShortCommitHash)
	}
	return info, ok, nil
}

// packageVersion prefers an explicit PACKAGE_VERSION over the package manifest
func (c *CLI) packageVersion(repoPath string, pipeline source.Pipeline) string {
	if pipeline.PackageVersion != "" {
		return pipeline.PackageVersion
	}

	version, err := source.PackageVersion(osfs.New(repoPath), c.PackageFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("no package manifest found", "file", c.PackageFile)
		} else {
			c.logger.Warn("ignoring package manifest", "err", err)
		}
		return ""
	}
	return version
}

func writeRecord(path string, record deployver.VersionInfo) error {
	data, err := record.JSON()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing version record: %w", err)
	}
	return nil
}
