package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the resolved filesystem locations used by the application.
// Everything is anchored at the executable directory so the installed copy
// is fully self-contained.
type Paths struct {
	ExecutableDir string
	DataDir       string
	LogsDir       string
	SessionFile   string
	LicenseFile   string
	SeedFile      string
}

// ResolvePaths resolves all application paths against the executable
// directory, honoring absolute overrides from the configuration.
func ResolvePaths(cfg PathsConfig) (*Paths, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	execDir := filepath.Dir(execPath)

	dataDir := resolveDir(execDir, cfg.DataDir)
	logsDir := resolveDir(execDir, cfg.LogsDir)

	return &Paths{
		ExecutableDir: execDir,
		DataDir:       dataDir,
		LogsDir:       logsDir,
		SessionFile:   filepath.Join(dataDir, "session.dat"),
		LicenseFile:   filepath.Join(dataDir, "license.dat"),
		SeedFile:      filepath.Join(dataDir, cfg.SeedFile),
	}, nil
}

// EnsureDirectories creates the data and logs directories if missing
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func resolveDir(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}
