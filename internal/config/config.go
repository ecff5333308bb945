// Package config handles loading and saving nga configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gyokusei/nga-cli/internal/fileutil"
)

// Display modes.
const (
	ModeShell       = "shell"
	ModeInteractive = "interactive"
)

// Cookies the forum requires for an authenticated session.
var requiredCookies = []string{"ngaPassportUid", "ngaPassportCid"}

// ErrCookieMissing is returned by ValidateCookie when no cookie is configured.
var ErrCookieMissing = errors.New("cookie not configured")

// Config represents the nga configuration.
type Config struct {
	Auth      AuthConfig    `toml:"auth"`
	Network   NetworkConfig `toml:"network"`
	Display   DisplayConfig `toml:"display"`
	Shell     ShellConfig   `toml:"shell"`
	Favorites []Favorite    `toml:"favorites"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// AuthConfig holds the browser cookie used to talk to the forum.
type AuthConfig struct {
	Cookie string `toml:"cookie"`
}

// NetworkConfig holds HTTP client settings.
type NetworkConfig struct {
	BaseURL        string  `toml:"base_url"`
	HTTPProxy      string  `toml:"http_proxy"`
	HTTPSProxy     string  `toml:"https_proxy"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimitQPS   float64 `toml:"rate_limit_qps"`
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	Mode           string `toml:"mode"`            // "shell" or "interactive"
	ShowSignatures bool   `toml:"show_signatures"` // append user signatures to posts
	RichStyle      bool   `toml:"rich_style"`      // colors and borders
}

// ShellConfig holds line-editor settings.
type ShellConfig struct {
	HistorySize     int `toml:"history_size"`
	CompletionLimit int `toml:"completion_limit"`
}

// Favorite is a saved board.
type Favorite struct {
	Name string `toml:"name"`
	FID  int    `toml:"fid"`
}

// DefaultHome returns the default nga home directory.
// Respects NGA_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("NGA_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nga-cli"
	}
	return filepath.Join(home, ".config", "nga-cli")
}

// NewDefault returns a configuration holding only defaults.
func NewDefault(homeDir string) *Config {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	return &Config{
		HomeDir: homeDir,
		Network: NetworkConfig{
			BaseURL:        "https://bbs.nga.cn",
			TimeoutSeconds: 30,
			RateLimitQPS:   2,
		},
		Display: DisplayConfig{
			Mode:      ModeInteractive,
			RichStyle: true,
		},
		Shell: ShellConfig{
			HistorySize:     1000,
			CompletionLimit: 50,
		},
		Favorites: []Favorite{},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses <home>/config.toml. A non-empty homeDir overrides
// NGA_HOME. A missing file yields the defaults.
func Load(path, homeDir string) (*Config, error) {
	if homeDir != "" {
		homeDir = expandPath(homeDir)
	}
	cfg := NewDefault(homeDir)

	if path == "" {
		path = filepath.Join(cfg.HomeDir, "config.toml")
	}
	cfg.configPath = expandPath(path)

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(cfg.configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(cfg.configPath, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	switch c.Display.Mode {
	case ModeShell, ModeInteractive:
	default:
		return fmt.Errorf("display.mode must be %q or %q, got %q", ModeShell, ModeInteractive, c.Display.Mode)
	}
	for _, p := range []string{c.Network.HTTPProxy, c.Network.HTTPSProxy} {
		if p == "" {
			continue
		}
		if _, err := url.Parse(p); err != nil {
			return fmt.Errorf("invalid proxy %q: %w", p, err)
		}
	}
	if c.Network.TimeoutSeconds < 0 {
		return fmt.Errorf("network.timeout_seconds must not be negative")
	}
	return nil
}

// Save writes the configuration to its file, creating the home directory
// when needed. The file holds a cookie, so it is written 0600.
func (c *Config) Save() error {
	if err := c.EnsureHomeDir(); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}
	path := c.ConfigFilePath()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := fileutil.SecureChmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ConfigFilePath returns the path of the loaded (or to-be-written) config file.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory if it doesn't exist.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.HomeDir, 0700)
}

// DatabasePath returns the path to the SQLite database holding shell
// history and the last recorded exchange.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.HomeDir, "nga-cli.db")
}

// LogFilePath returns the path of the log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.HomeDir, "nga-cli.log")
}

// ValidateCookie checks that the configured cookie carries the passport
// cookies the forum needs.
func (c *Config) ValidateCookie() error {
	return ValidateCookie(c.Auth.Cookie)
}

// ValidateCookie checks a raw Cookie header value.
func ValidateCookie(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrCookieMissing
	}
	have := ParseCookie(raw)
	var missing []string
	for _, name := range requiredCookies {
		if have[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cookie is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParseCookie splits a raw "a=b; c=d" header value into a map.
func ParseCookie(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out
}

// FavoriteByFID returns the favorite with the given board id.
func (c *Config) FavoriteByFID(fid int) (Favorite, bool) {
	for _, f := range c.Favorites {
		if f.FID == fid {
			return f, true
		}
	}
	return Favorite{}, false
}

// AddFavorite adds or renames a favorite. It reports whether the set changed.
func (c *Config) AddFavorite(name string, fid int) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strconv.Itoa(fid)
	}
	for i := range c.Favorites {
		if c.Favorites[i].FID == fid {
			if c.Favorites[i].Name == name {
				return false
			}
			c.Favorites[i].Name = name
			return true
		}
	}
	c.Favorites = append(c.Favorites, Favorite{Name: name, FID: fid})
	return true
}

// RemoveFavorite removes the favorite with the given board id.
func (c *Config) RemoveFavorite(fid int) bool {
	for i, f := range c.Favorites {
		if f.FID == fid {
			c.Favorites = append(c.Favorites[:i], c.Favorites[i+1:]...)
			return true
		}
	}
	return false
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
