package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultPath is where Load looks when no path is given.
	DefaultPath = "~/.config/daemonlink/config.toml"

	defaultRestartIntervalMS = 5000
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// File is the on-disk TOML configuration used by the daemonlink command.
type File struct {
	Daemon  Daemon  `toml:"daemon"`
	Logging Logging `toml:"logging"`
}

// Daemon describes how the supervised process is launched.
type Daemon struct {
	Executable        string            `toml:"executable"`
	MinVersion        string            `toml:"min_version,omitempty"`
	Args              []string          `toml:"args"`
	Verbosity         string            `toml:"verbosity"`
	WorkingDir        string            `toml:"working_dir"`
	UID               *uint32           `toml:"uid,omitempty"`
	GID               *uint32           `toml:"gid,omitempty"`
	RestartIntervalMS int               `toml:"restart_interval_ms"`
	Env               map[string]string `toml:"env,omitempty"`
}

// Logging controls the command's slog handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a File populated with default values.
func Default() File {
	return File{
		Daemon: Daemon{
			WorkingDir:        ".",
			RestartIntervalMS: defaultRestartIntervalMS,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load reads the configuration at path, falling back to DefaultPath when
// path is empty. A missing file is not an error: defaults are returned and
// the exists result is false. The resolved path is returned either way.
func Load(path string) (*File, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Encode renders the configuration as TOML.
func (f *File) Encode() ([]byte, error) {
	data, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	return data, nil
}

// Validate reports the first invalid setting.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Daemon.Executable) == "" {
		return errors.New("daemon.executable is required")
	}

	if f.Daemon.RestartIntervalMS < 0 {
		return fmt.Errorf("daemon.restart_interval_ms must not be negative, got %d", f.Daemon.RestartIntervalMS)
	}

	if (f.Daemon.UID == nil) != (f.Daemon.GID == nil) {
		return errors.New("daemon.uid and daemon.gid must be set together")
	}

	if _, err := ParseLevel(f.Logging.Level); err != nil {
		return err
	}

	switch f.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", f.Logging.Format)
	}

	return nil
}

// Options converts the file into supervisor options.
func (f *File) Options(log *slog.Logger) *Options {
	opts := &Options{
		Logger:          log,
		ExecutablePath:  f.Daemon.Executable,
		Args:            f.Daemon.Args,
		Verbosity:       f.Daemon.Verbosity,
		WorkingDir:      f.Daemon.WorkingDir,
		Env:             f.Daemon.Env,
		RestartInterval: time.Duration(f.Daemon.RestartIntervalMS) * time.Millisecond,
	}

	if f.Daemon.UID != nil && f.Daemon.GID != nil {
		opts.Credential = &Credential{UID: *f.Daemon.UID, GID: *f.Daemon.GID}
	}

	return opts.Clone()
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}

func (f *File) normalize() error {
	f.Daemon.Executable = strings.TrimSpace(f.Daemon.Executable)
	f.Logging.Level = strings.ToLower(strings.TrimSpace(f.Logging.Level))
	f.Logging.Format = strings.ToLower(strings.TrimSpace(f.Logging.Format))

	if f.Logging.Level == "" {
		f.Logging.Level = defaultLogLevel
	}

	if f.Logging.Format == "" {
		f.Logging.Format = defaultLogFormat
	}

	if f.Daemon.Executable != "" {
		expanded, err := expandPath(f.Daemon.Executable)
		if err != nil {
			return err
		}

		f.Daemon.Executable = expanded
	}

	workingDir := strings.TrimSpace(f.Daemon.WorkingDir)
	if workingDir == "" {
		workingDir = "."
	}

	expanded, err := expandPath(workingDir)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("resolve working_dir: %w", err)
	}

	f.Daemon.WorkingDir = abs

	return nil
}

func resolvePath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}

		return "", false, fmt.Errorf("stat config: %w", err)
	}

	return expanded, true, nil
}

func expandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
