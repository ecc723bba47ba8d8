// Package config loads helper and client configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

const (
	defaultSocketMode        = 0o666
	defaultIdleTimeout       = 60 * time.Second
	defaultCallTimeout       = 150 * time.Second
	defaultSystemProfileDir  = "/etc/cpupower_gui.d"
	defaultNATSStream        = "CPUPOWER_HELPER"
	defaultNATSSubjectPrefix = "cpupower.helper"
	userConfigSubdir         = "cpupower_gui"
)

// Helper holds privileged helper configuration values.
type Helper struct {
	SocketPath string
	SocketMode os.FileMode
	SysfsRoot  string
	LogLevel   string
	ActionID   string

	DevMode        bool
	MetricsEnabled bool
	PolkitEnabled  bool

	// IdleTimeout of zero disables idle shutdown.
	IdleTimeout time.Duration
	AuthTimeout time.Duration

	NATSURL           string
	NATSStream        string
	NATSSubjectPrefix string
}

// LoadHelper reads helper configuration from environment variables.
func LoadHelper() (Helper, error) {
	cfg := Helper{
		SocketPath:        envOrDefault("CPUPOWER_HELPER_SOCKET", types.DefaultSocketPath),
		SysfsRoot:         envOrDefault("CPUPOWER_HELPER_SYSFS_ROOT", sysfs.DefaultRoot),
		LogLevel:          strings.ToLower(envOrDefault("CPUPOWER_HELPER_LOG_LEVEL", "info")),
		ActionID:          strings.TrimSpace(envOrDefault("CPUPOWER_HELPER_ACTION_ID", authz.DefaultActionID)),
		DevMode:           envBool("CPUPOWER_HELPER_DEV_MODE", false),
		MetricsEnabled:    envBool("CPUPOWER_HELPER_METRICS_ENABLED", true),
		PolkitEnabled:     envBool("CPUPOWER_HELPER_POLKIT_ENABLED", true),
		IdleTimeout:       envNonNegativeDuration("CPUPOWER_HELPER_IDLE_TIMEOUT", defaultIdleTimeout),
		AuthTimeout:       envPositiveDuration("CPUPOWER_HELPER_AUTH_TIMEOUT", authz.DefaultQueryTimeout),
		NATSURL:           strings.TrimSpace(envOrDefault("CPUPOWER_HELPER_NATS_URL", "")),
		NATSStream:        strings.TrimSpace(envOrDefault("CPUPOWER_HELPER_NATS_STREAM", defaultNATSStream)),
		NATSSubjectPrefix: strings.TrimSpace(envOrDefault("CPUPOWER_HELPER_NATS_SUBJECT_PREFIX", defaultNATSSubjectPrefix)),
	}

	mode, err := envFileMode("CPUPOWER_HELPER_SOCKET_MODE", defaultSocketMode)
	if err != nil {
		return Helper{}, err
	}
	cfg.SocketMode = mode

	if strings.TrimSpace(cfg.SocketPath) == "" {
		return Helper{}, fmt.Errorf("CPUPOWER_HELPER_SOCKET is required")
	}
	if cfg.ActionID == "" {
		cfg.ActionID = authz.DefaultActionID
	}
	if cfg.NATSStream == "" {
		cfg.NATSStream = defaultNATSStream
	}
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = defaultNATSSubjectPrefix
	}

	return cfg, nil
}

// Client holds cpupowerctl configuration values.
type Client struct {
	SocketPath       string
	SysfsRoot        string
	LogLevel         string
	DevMode          bool
	CallTimeout      time.Duration
	SystemProfileDir string
	UserConfigDir    string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (Client, error) {
	cfg := Client{
		SocketPath:       envOrDefault("CPUPOWERCTL_SOCKET", types.DefaultSocketPath),
		SysfsRoot:        envOrDefault("CPUPOWERCTL_SYSFS_ROOT", sysfs.DefaultRoot),
		LogLevel:         strings.ToLower(envOrDefault("CPUPOWERCTL_LOG_LEVEL", "warn")),
		DevMode:          envBool("CPUPOWERCTL_DEV_MODE", true),
		CallTimeout:      envPositiveDuration("CPUPOWERCTL_CALL_TIMEOUT", defaultCallTimeout),
		SystemProfileDir: envOrDefault("CPUPOWERCTL_SYSTEM_PROFILE_DIR", defaultSystemProfileDir),
		UserConfigDir:    envOrDefault("CPUPOWERCTL_USER_CONFIG_DIR", ""),
	}

	if cfg.UserConfigDir == "" {
		dir, err := userConfigDir()
		if err != nil {
			return Client{}, err
		}
		cfg.UserConfigDir = dir
	}

	return cfg, nil
}

func userConfigDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, userConfigSubdir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(home, ".config", userConfigSubdir), nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

// envNonNegativeDuration accepts "0" (and any zero duration) as an explicit
// value. A bare integer is read as seconds.
func envNonNegativeDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return defaultVal
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

func envFileMode(key string, defaultVal os.FileMode) (os.FileMode, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseUint(v, 8, 32)
	if err != nil || parsed > 0o777 {
		return 0, fmt.Errorf("%s must be an octal permission mode, got %q", key, v)
	}
	return os.FileMode(parsed), nil
}
