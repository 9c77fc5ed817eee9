package deployver

// ComputationContext is the read-only bundle of facts a version is computed
// from. Only Environment is required; empty strings mean "not available".
type ComputationContext struct {
	GitInfo GitInfo

	PackageVersion  string
	Environment     string
	RepositoryURL   string
	BuildNumber     string
	PipelineVersion string

	// DeploymentTime is an ISO-8601 timestamp. It defaults to the time the
	// VersionInfo is built, so set it when results must be reproducible.
	DeploymentTime string
	DeploymentUser string
}

// Computer resolves a Strategy against computation contexts
type Computer struct {
	strategy Strategy
}

// NewComputer returns a Computer for strategy
func NewComputer(strategy Strategy) *Computer {
	return &Computer{strategy: strategy}
}

// Strategy returns the strategy the computer resolves
func (c *Computer) Strategy() Strategy {
	return c.strategy
}

// ComputeVersionString resolves the strategy's format string against ctx
func (c *Computer) ComputeVersionString(ctx ComputationContext) string {
	return resolve(c.strategy.format, c.strategy.components, ctx)
}

// Compute resolves the version string and builds the full VersionInfo record
func (c *Computer) Compute(ctx ComputationContext) (VersionInfo, error) {
	gitInfo := ctx.GitInfo

	return NewVersionInfo(VersionInfoProps{
		Version:         c.ComputeVersionString(ctx),
		GitInfo:         &gitInfo,
		PackageVersion:  ctx.PackageVersion,
		DeploymentTime:  ctx.DeploymentTime,
		DeploymentUser:  ctx.DeploymentUser,
		Environment:     ctx.Environment,
		RepositoryURL:   ctx.RepositoryURL,
		BuildNumber:     ctx.BuildNumber,
		PipelineVersion: ctx.PipelineVersion,
	})
}
