package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/blang/semver"
	"github.com/go-git/go-billy/v5"
)

// DefaultPackageFile is the manifest read by PackageVersion when no path is given
const DefaultPackageFile = "package.json"

// ErrNoPackageVersion is returned when the manifest has no version field
var ErrNoPackageVersion = errors.New("package manifest has no version")

type packageManifest struct {
	Version string `json:"version"`
}

// PackageVersion reads the version field of a package.json manifest. The
// version must be a valid semantic version; a leading "v" is tolerated and
// kept as written.
func PackageVersion(fs billy.Filesystem, path string) (string, error) {
	if path == "" {
		path = DefaultPackageFile
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}

	if manifest.Version == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoPackageVersion)
	}

	if _, err := semver.ParseTolerant(manifest.Version); err != nil {
		return "", fmt.Errorf("invalid package version %q: %w", manifest.Version, err)
	}

	return manifest.Version, nil
}
