package discovery

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/daemonlink-go/internal/errors"
)

// VersionCheckTimeout bounds the "<executable> --version" probe.
const VersionCheckTimeout = 2 * time.Second

var versionPattern = regexp.MustCompile(`([0-9]+)\.([0-9]+)\.([0-9]+)`)

// Config holds configuration for executable discovery.
type Config struct {
	// Executable is a path or a bare command name.
	Executable string

	// MinimumVersion, when set, is compared with the version the executable
	// prints for --version. An older daemon is logged as a warning.
	MinimumVersion string

	// Logger is an optional logger. If nil, logs are discarded.
	Logger *slog.Logger
}

// Discoverer resolves the daemon executable to a path.
type Discoverer interface {
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg *Config
	log *slog.Logger

	// commonDirs are searched after PATH for bare names.
	commonDirs []string
}

var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a discoverer for cfg.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	dirs := []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}

	return &discoverer{
		cfg:        cfg,
		log:        log.With("component", "discovery"),
		commonDirs: dirs,
	}
}

// Discover locates the executable and runs the optional version check.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	name := strings.TrimSpace(d.cfg.Executable)
	if name == "" {
		return "", errors.ErrMissingExecutable
	}

	path, err := d.find(name)
	if err != nil {
		d.log.Error("Daemon executable not found", "executable", name, "error", err)

		return "", err
	}

	d.log.Debug("Found daemon executable", "path", path)

	if d.cfg.MinimumVersion != "" {
		d.checkVersion(ctx, path)
	}

	return path, nil
}

func (d *discoverer) find(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutable(name) {
			return name, nil
		}

		return "", &errors.ExecutableNotFoundError{Name: name, SearchedPaths: []string{name}}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	searched := []string{"$PATH"}

	for _, dir := range d.commonDirs {
		candidate := filepath.Join(dir, name)
		searched = append(searched, candidate)

		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", &errors.ExecutableNotFoundError{Name: name, SearchedPaths: searched}
}

// checkVersion warns when the daemon reports a version older than the
// configured minimum. Probe failures are only logged.
func (d *discoverer) checkVersion(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(ctx, VersionCheckTimeout)
	defer cancel()

	//nolint:gosec // G204: the executable comes from trusted configuration.
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		d.log.Debug("Version check failed", "path", path, "error", err)

		return
	}

	version := versionPattern.FindString(string(output))
	if version == "" {
		d.log.Debug("Could not parse daemon version", "output", strings.TrimSpace(string(output)))

		return
	}

	if compareVersions(version, d.cfg.MinimumVersion) < 0 {
		d.log.Warn("Daemon version is older than required",
			"version", version,
			"minimum_required", d.cfg.MinimumVersion,
		)

		return
	}

	d.log.Debug("Version check passed", "version", version, "minimum", d.cfg.MinimumVersion)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode().Perm()&0o111 != 0
}

// compareVersions compares two dotted versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i := range max(len(aParts), len(bParts)) {
		var aNum, bNum int

		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}

		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}

		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		}
	}

	return 0
}
