package bandit

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables read by the client.
const (
	EnvUsername  = "BANDIT_CLIENT_USERNAME"
	EnvAPIKey    = "BANDIT_CLIENT_APIKEY"
	EnvURL       = "BANDIT_CLIENT_URL"
	EnvJobID     = "BANDIT_JOB_ID"
	EnvJobStatus = "BANDIT_JOB_STATUS"
)

// DefaultJobRoot is where a worker container mounts the job volume.
const DefaultJobRoot = "/job"

// Mode says whether the client talks to a Bandit server.
type Mode string

const (
	// ModeLocal degrades every network operation to a printed dry run.
	ModeLocal Mode = "local"
	// ModeRemote talks to the server with full credentials.
	ModeRemote Mode = "remote"
)

// Paths are the well-known files of a job volume.
type Paths struct {
	Root         string
	MetadataDir  string
	MetadataFile string
	ChartsFile   string
	EmailFile    string
	OutputDir    string
}

// NewPaths lays out the job volume under root.
func NewPaths(root string) Paths {
	if root == "" {
		root = DefaultJobRoot
	}
	metadataDir := filepath.Join(root, "metadata")
	return Paths{
		Root:         root,
		MetadataDir:  metadataDir,
		MetadataFile: filepath.Join(metadataDir, "metadata.json"),
		ChartsFile:   filepath.Join(metadataDir, "charts.ndjson"),
		EmailFile:    filepath.Join(metadataDir, "email.json"),
		OutputDir:    filepath.Join(root, "output-files") + string(filepath.Separator),
	}
}

// Options are the constructor arguments of a client. Environment variables
// take precedence over them.
type Options struct {
	Username string
	APIKey   string
	URL      string
	// JobRoot overrides DefaultJobRoot. In local mode an empty JobRoot roots
	// the job files in the scratch directory instead.
	JobRoot string
}

// Config is the resolved, read-only view of a client's settings.
type Config struct {
	Username  string
	APIKey    string
	URL       string
	JobID     string
	Mode      Mode
	OutputDir string
	Paths     Paths
}

// IsLocal reports whether the client runs without a server.
func (c Config) IsLocal() bool { return c.Mode == ModeLocal }

// HasJob reports whether the client runs inside a live remote job.
func (c Config) HasJob() bool { return c.Mode == ModeRemote && c.JobID != "" }

// RequireRemote fails with ErrConfig when the client is in local mode.
func (c Config) RequireRemote() error {
	if c.Mode == ModeRemote {
		return nil
	}
	var missing []string
	if c.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.URL == "" {
		missing = append(missing, EnvURL)
	}
	return fmt.Errorf("%w: operation requires remote mode, missing %s", ErrConfig, strings.Join(missing, ", "))
}

// Resolve determines credentials and mode. Environment variables win over
// opts; empty values count as unset. Missing credentials select local mode,
// which allocates a private scratch output directory. Unless opts names a job
// root, local mode also lays out the job files under that directory, so a
// stray /job on the host is never written to.
func Resolve(opts Options) (Config, error) {
	v := viper.New()
	v.SetDefault("username", opts.Username)
	v.SetDefault("apikey", opts.APIKey)
	v.SetDefault("url", opts.URL)
	for key, env := range map[string]string{
		"username": EnvUsername,
		"apikey":   EnvAPIKey,
		"url":      EnvURL,
		"job_id":   EnvJobID,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("%w: failed to bind %s: %v", ErrConfig, env, err)
		}
	}

	cfg := Config{
		Username: strings.TrimSpace(v.GetString("username")),
		APIKey:   strings.TrimSpace(v.GetString("apikey")),
		URL:      strings.TrimSpace(v.GetString("url")),
		JobID:    strings.TrimSpace(v.GetString("job_id")),
		Paths:    NewPaths(opts.JobRoot),
	}

	if cfg.URL != "" {
		if _, err := parseBaseURL(cfg.URL); err != nil {
			return Config{}, err
		}
	}

	if cfg.Username == "" || cfg.APIKey == "" || cfg.URL == "" {
		cfg.Mode = ModeLocal
		dir, err := os.MkdirTemp("", "tmp-bandit-")
		if err != nil {
			return Config{}, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		cfg.OutputDir = dir + string(filepath.Separator)
		if opts.JobRoot == "" {
			cfg.Paths = NewPaths(dir)
			cfg.Paths.OutputDir = cfg.OutputDir
		}
	} else {
		cfg.Mode = ModeRemote
		cfg.OutputDir = cfg.Paths.OutputDir
	}

	return cfg, nil
}

// parseBaseURL validates the server URL and makes its path a directory so
// relative API paths resolve below it.
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse url %q: %v", ErrConfig, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q must be an absolute http(s) url", ErrConfig, raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
