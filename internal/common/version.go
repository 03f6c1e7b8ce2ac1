package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
)

// Version information, set with -ldflags "-X github.com/ternarybob/extracta/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

var buildInfoOnce sync.Once

// fillFromBuildInfo uses the module version and VCS stamp embedded by the go
// tool for binaries built without ldflags (go install, go run)
func fillFromBuildInfo() {
	buildInfoOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = strings.TrimPrefix(info.Main.Version, "v")
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "unknown" && len(setting.Value) >= 7 {
					GitCommit = setting.Value[:7]
				}
			case "vcs.time":
				if Build == "unknown" {
					Build = setting.Value
				}
			}
		}
	})
}

// GetVersion returns the current version string
func GetVersion() string {
	fillFromBuildInfo()
	return Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	fillFromBuildInfo()
	return Build
}

// GetGitCommit returns the short commit hash
func GetGitCommit() string {
	fillFromBuildInfo()
	return GitCommit
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", GetVersion(), GetBuild(), GetGitCommit())
}

// LoadVersionFromFile overrides Version from a .version file next to the executable,
// written by the release packaging
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return GetVersion()
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(exePath), ".version"))
	if err != nil {
		return GetVersion()
	}

	if version := strings.TrimSpace(string(data)); version != "" {
		fillFromBuildInfo()
		Version = version
	}
	return Version
}
