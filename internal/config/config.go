package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535

	minWindowEdge       = 320
	minWatchDebounceMS  = 10
	maxWatchDebounceMS  = 10_000
	maxRecentEntries    = 100
	maxLogSizeMB        = 1024
	maxExcludePatterns  = 256
	appDirName          = "mini-ide"
	configFileName      = "config.yaml"
	defaultLogLevelName = "info"
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var windowsEnvTokenPattern = regexp.MustCompile(`%[A-Za-z_][A-Za-z0-9_]*%`)
var posixEnvTokenPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)
var yamlUnmarshalConfigMetadataFn = func(raw []byte, out *map[string]any) error {
	return yaml.Unmarshal(raw, out)
}
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is the mini-ide runtime configuration.
type Config struct {
	Window   WindowConfig   `yaml:"window" json:"window"`
	Explorer ExplorerConfig `yaml:"explorer" json:"explorer"`
	Editor   EditorConfig   `yaml:"editor" json:"editor"`
	Recent   RecentConfig   `yaml:"recent" json:"recent"`
	// WebSocketPort is the port for the local WebSocket server that streams
	// tree and tab projections to the page. 0 (default) lets the OS assign
	// an available port.
	WebSocketPort int       `yaml:"websocket_port" json:"websocket_port"`
	Log           LogConfig `yaml:"log" json:"log"`
	// DefaultWorkspace is opened at startup when set and readable.
	DefaultWorkspace string `yaml:"default_workspace,omitempty" json:"default_workspace,omitempty"`
}

// WindowConfig holds the initial main window geometry.
type WindowConfig struct {
	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	MinWidth  int `yaml:"min_width" json:"min_width"`
	MinHeight int `yaml:"min_height" json:"min_height"`
}

// ExplorerConfig controls the workspace tree.
// Exclude patterns are doublestar globs matched against workspace-relative
// slash paths; matching entries never reach the listing cache.
type ExplorerConfig struct {
	Exclude         []string `yaml:"exclude" json:"exclude"`
	Watch           bool     `yaml:"watch" json:"watch"`
	WatchDebounceMS int      `yaml:"watch_debounce_ms" json:"watch_debounce_ms"`
}

// WatchDebounce returns WatchDebounceMS as a duration.
func (e ExplorerConfig) WatchDebounce() time.Duration {
	return time.Duration(e.WatchDebounceMS) * time.Millisecond
}

// EditorConfig holds document session settings.
type EditorConfig struct {
	// ConfirmCloseDirty asks Save / Don't Save / Cancel before closing a
	// document with unsaved edits.
	ConfirmCloseDirty bool `yaml:"confirm_close_dirty" json:"confirm_close_dirty"`
}

// RecentConfig controls the recent workspace list.
type RecentConfig struct {
	MaxEntries       int  `yaml:"max_entries" json:"max_entries"`
	RestoreExpansion bool `yaml:"restore_expansion" json:"restore_expansion"`
}

// LogConfig controls the rotating process log.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel maps Level to a slog level. Unknown names map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	if level, ok := logLevels[strings.ToLower(strings.TrimSpace(l.Level))]; ok {
		return level
	}
	return slog.LevelInfo
}

// DefaultExcludePatterns are the version-control and OS metadata entries
// hidden from the explorer by default.
func DefaultExcludePatterns() []string {
	return []string{"**/.git", "**/.svn", "**/.hg", "**/.DS_Store"}
}

// DefaultConfig returns default values.
func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Width:     1200,
			Height:    800,
			MinWidth:  800,
			MinHeight: 600,
		},
		Explorer: ExplorerConfig{
			Exclude:         DefaultExcludePatterns(),
			Watch:           true,
			WatchDebounceMS: 150,
		},
		Editor: EditorConfig{
			ConfirmCloseDirty: true,
		},
		Recent: RecentConfig{
			MaxEntries:       10,
			RestoreExpansion: true,
		},
		Log: LogConfig{
			Level:      defaultLogLevelName,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appDirName, configFileName)
}

// DataDir returns the directory holding the config file, the recent
// workspace database and the logs directory.
func DataDir(configPath string) string {
	return filepath.Dir(configPath)
}

// Load reads config file. If file does not exist, defaults are returned.
// Keys absent from the file keep their default values, so boolean options
// that default to true stay on unless the file turns them off.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}

	rawMap, metadataErr := parseRawConfigMetadata(raw)
	if metadataErr != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config metadata", "error", metadataErr)
	} else {
		// yaml.Unmarshal silently ignores keys that no field maps to.
		warnUnknownFields(rawMap)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	dst.Explorer.Exclude = cloneStringSlice(src.Explorer.Exclude)
	return dst
}

func cloneStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	if isZeroConfig(*cfg) {
		*cfg = DefaultConfig()
		return nil
	}
	defaults := DefaultConfig()

	normalizeWindow(&cfg.Window, defaults.Window)
	if err := normalizeExplorer(&cfg.Explorer, defaults.Explorer); err != nil {
		return err
	}
	normalizeRecent(&cfg.Recent, defaults.Recent)
	normalizeLog(&cfg.Log, defaults.Log)
	validateWebSocketPort(cfg)
	validateDefaultWorkspace(cfg)
	return nil
}

// normalizeWindow replaces missing or unusable sizes with defaults and keeps
// the initial size at least as large as the minimum size.
func normalizeWindow(w *WindowConfig, defaults WindowConfig) {
	if w.MinWidth < minWindowEdge {
		w.MinWidth = defaults.MinWidth
	}
	if w.MinHeight < minWindowEdge {
		w.MinHeight = defaults.MinHeight
	}
	if w.Width <= 0 {
		w.Width = defaults.Width
	}
	if w.Height <= 0 {
		w.Height = defaults.Height
	}
	w.Width = max(w.Width, w.MinWidth)
	w.Height = max(w.Height, w.MinHeight)
}

// normalizeExplorer validates exclude globs and clamps the watch debounce.
// A nil exclude list means "defaults"; an empty list means "exclude nothing".
func normalizeExplorer(e *ExplorerConfig, defaults ExplorerConfig) error {
	if e.Exclude == nil {
		e.Exclude = cloneStringSlice(defaults.Exclude)
	}
	patterns, err := sanitizeExcludePatterns(e.Exclude)
	if err != nil {
		return err
	}
	e.Exclude = patterns

	if e.WatchDebounceMS == 0 {
		e.WatchDebounceMS = defaults.WatchDebounceMS
	}
	if e.WatchDebounceMS < minWatchDebounceMS || e.WatchDebounceMS > maxWatchDebounceMS {
		slog.Warn("[WARN-CONFIG] explorer.watch_debounce_ms out of range, clamping",
			"configured", e.WatchDebounceMS, "min", minWatchDebounceMS, "max", maxWatchDebounceMS)
		e.WatchDebounceMS = min(max(e.WatchDebounceMS, minWatchDebounceMS), maxWatchDebounceMS)
	}
	return nil
}

// sanitizeExcludePatterns trims and deduplicates patterns, dropping blank
// entries with a warning. Syntactically invalid globs are an error.
func sanitizeExcludePatterns(patterns []string) ([]string, error) {
	if len(patterns) > maxExcludePatterns {
		return nil, fmt.Errorf("explorer.exclude: at most %d patterns allowed, got %d", maxExcludePatterns, len(patterns))
	}
	out := make([]string, 0, len(patterns))
	for i, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			slog.Warn("[WARN-CONFIG] explorer.exclude: dropped empty pattern", "index", i)
			continue
		}
		// Patterns always match slash paths, whatever the host separator.
		pattern = strings.ReplaceAll(pattern, `\`, "/")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("explorer.exclude[%d]: invalid glob %q", i, pattern)
		}
		if slices.Contains(out, pattern) {
			continue
		}
		out = append(out, pattern)
	}
	return out, nil
}

func normalizeRecent(r *RecentConfig, defaults RecentConfig) {
	if r.MaxEntries <= 0 {
		r.MaxEntries = defaults.MaxEntries
	}
	if r.MaxEntries > maxRecentEntries {
		slog.Warn("[WARN-CONFIG] recent.max_entries too large, clamping",
			"configured", r.MaxEntries, "max", maxRecentEntries)
		r.MaxEntries = maxRecentEntries
	}
}

func normalizeLog(l *LogConfig, defaults LogConfig) {
	level := strings.ToLower(strings.TrimSpace(l.Level))
	if _, ok := logLevels[level]; !ok {
		if level != "" {
			slog.Warn("[WARN-CONFIG] log.level unknown, falling back to default",
				"configured", l.Level, "default", defaults.Level)
		}
		level = defaults.Level
	}
	l.Level = level
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = defaults.MaxSizeMB
	}
	l.MaxSizeMB = min(l.MaxSizeMB, maxLogSizeMB)
	if l.MaxBackups < 0 {
		l.MaxBackups = defaults.MaxBackups
	}
	if l.MaxAgeDays < 0 {
		l.MaxAgeDays = defaults.MaxAgeDays
	}
}

// validateWebSocketPort checks that WebSocketPort is within the valid TCP port
// range (0-65535). Port 0 means "let the OS auto-assign an available port".
// Invalid values are logged and reset to 0 (auto-assign) to keep the
// application startable even with a misconfigured config file.
func validateWebSocketPort(cfg *Config) {
	if cfg.WebSocketPort < 0 || cfg.WebSocketPort > maxValidPort {
		slog.Warn("[WARN-CONFIG] websocket_port out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", cfg.WebSocketPort, "max", maxValidPort)
		cfg.WebSocketPort = 0
	}
}

// validateDefaultWorkspace normalizes DefaultWorkspace in place.
// Expands ~ prefix to the user's home directory, applies filepath.Clean,
// and clears non-absolute paths with a warning log (non-fatal).
// Readability is checked at startup, not here.
func validateDefaultWorkspace(cfg *Config) {
	dir := strings.TrimSpace(cfg.DefaultWorkspace)
	if dir == "" {
		cfg.DefaultWorkspace = ""
		return
	}
	if strings.HasPrefix(dir, "~") {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] default_workspace: failed to expand ~, ignoring",
				"path", dir, "error", err)
			cfg.DefaultWorkspace = ""
			return
		}
		dir = filepath.Join(home, dir[1:])
	}
	dir = expandPathEnv(dir)
	dir = filepath.Clean(dir)
	if !filepath.IsAbs(dir) {
		slog.Warn("[WARN-CONFIG] default_workspace is not an absolute path, ignoring", "path", dir)
		cfg.DefaultWorkspace = ""
		return
	}
	cfg.DefaultWorkspace = dir
}

func expandPathEnv(dir string) string {
	if dir == "" {
		return ""
	}
	// Expand Windows-style %VAR% tokens on all platforms for portability.
	expanded := windowsEnvTokenPattern.ReplaceAllStringFunc(dir, func(token string) string {
		key := token[1 : len(token)-1]
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return token
	})
	// '$' is a valid character in Windows file paths, so POSIX-style
	// expansion only runs elsewhere.
	if runtime.GOOS == "windows" {
		return expanded
	}
	expanded = posixEnvTokenPattern.ReplaceAllStringFunc(expanded, func(token string) string {
		key := strings.TrimPrefix(token, "$")
		key = strings.TrimPrefix(key, "{")
		key = strings.TrimSuffix(key, "}")
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return token
	})
	return expanded
}

// parseRawConfigMetadata unmarshals raw YAML into a generic map used only
// for metadata checks (unknown field detection).
func parseRawConfigMetadata(raw []byte) (map[string]any, error) {
	var rawMap map[string]any
	if err := yamlUnmarshalConfigMetadataFn(raw, &rawMap); err != nil {
		return nil, err
	}
	return rawMap, nil
}

// knownConfigKeys lists the yaml keys of Config, derived from its tags.
func knownConfigKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeFor[Config]()
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
}

func warnUnknownFields(rawMap map[string]any) {
	known := knownConfigKeys()
	unknown := make([]string, 0)
	for key := range rawMap {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	for _, key := range unknown {
		slog.Warn("[WARN-CONFIG] unknown field ignored", "field", key)
	}
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
