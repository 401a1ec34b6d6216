package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/custody-cli/internal/id"
)

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	Retries     int
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	Timeout      time.Duration
	Retries      int

	AggregatorURL    string
	AggregatorAPIKey string
	StreamURL        string

	KeystoreDir    string
	OpsDBPath      string
	OpsLockPath    string
	CursorDBPath   string
	CursorLockPath string

	DomainSuffix string
	AutoConfirm  bool

	PollInterval      time.Duration
	MaxPolls          int
	MonitorMaxBackoff time.Duration
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`

	Aggregator struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		StreamURL string `yaml:"stream_url"`
	} `yaml:"aggregator"`

	Keystore struct {
		Dir string `yaml:"dir"`
	} `yaml:"keystore"`

	Operations struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"operations"`

	Monitor struct {
		CursorPath     string `yaml:"cursor_path"`
		CursorLockPath string `yaml:"cursor_lock_path"`
		MaxBackoff     string `yaml:"max_backoff"`
	} `yaml:"monitor"`

	Gate struct {
		AutoConfirm *bool `yaml:"auto_confirm"`
	} `yaml:"gate"`

	Tracker struct {
		PollInterval string `yaml:"poll_interval"`
		MaxPolls     *int   `yaml:"max_polls"`
	} `yaml:"tracker"`

	DomainSuffix string `yaml:"domain_suffix"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 3 * time.Second
	}
	if settings.MaxPolls <= 0 {
		settings.MaxPolls = 40
	}
	if settings.MonitorMaxBackoff <= 0 {
		settings.MonitorMaxBackoff = 30 * time.Second
	}
	if settings.DomainSuffix == "" {
		settings.DomainSuffix = id.DefaultDomainSuffix
	}
	if settings.StreamURL == "" {
		settings.StreamURL = strings.TrimRight(settings.AggregatorURL, "/") + "/v1/events/stream"
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           15 * time.Second,
		Retries:           2,
		AggregatorURL:     "https://api.aggregator.example",
		KeystoreDir:       filepath.Join(dataDir, "wallets"),
		OpsDBPath:         filepath.Join(dataDir, "operations.db"),
		OpsLockPath:       filepath.Join(dataDir, "operations.lock"),
		CursorDBPath:      filepath.Join(dataDir, "monitor.db"),
		CursorLockPath:    filepath.Join(dataDir, "monitor.lock"),
		DomainSuffix:      id.DefaultDomainSuffix,
		PollInterval:      3 * time.Second,
		MaxPolls:          40,
		MonitorMaxBackoff: 30 * time.Second,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "custody", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "custody"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Aggregator.URL != "" {
		settings.AggregatorURL = cfg.Aggregator.URL
	}
	if cfg.Aggregator.APIKey != "" {
		settings.AggregatorAPIKey = cfg.Aggregator.APIKey
	}
	if cfg.Aggregator.APIKeyEnv != "" {
		settings.AggregatorAPIKey = os.Getenv(cfg.Aggregator.APIKeyEnv)
	}
	if cfg.Aggregator.StreamURL != "" {
		settings.StreamURL = cfg.Aggregator.StreamURL
	}
	if cfg.Keystore.Dir != "" {
		settings.KeystoreDir = cfg.Keystore.Dir
	}
	if cfg.Operations.Path != "" {
		settings.OpsDBPath = cfg.Operations.Path
	}
	if cfg.Operations.LockPath != "" {
		settings.OpsLockPath = cfg.Operations.LockPath
	}
	if cfg.Monitor.CursorPath != "" {
		settings.CursorDBPath = cfg.Monitor.CursorPath
	}
	if cfg.Monitor.CursorLockPath != "" {
		settings.CursorLockPath = cfg.Monitor.CursorLockPath
	}
	if cfg.Monitor.MaxBackoff != "" {
		d, err := time.ParseDuration(cfg.Monitor.MaxBackoff)
		if err != nil {
			return fmt.Errorf("config monitor.max_backoff: %w", err)
		}
		settings.MonitorMaxBackoff = d
	}
	if cfg.Gate.AutoConfirm != nil {
		settings.AutoConfirm = *cfg.Gate.AutoConfirm
	}
	if cfg.Tracker.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Tracker.PollInterval)
		if err != nil {
			return fmt.Errorf("config tracker.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Tracker.MaxPolls != nil {
		settings.MaxPolls = *cfg.Tracker.MaxPolls
	}
	if cfg.DomainSuffix != "" {
		settings.DomainSuffix = cfg.DomainSuffix
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("CUSTODY_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("CUSTODY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("CUSTODY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("CUSTODY_AGGREGATOR_URL"); v != "" {
		settings.AggregatorURL = v
	}
	if v := os.Getenv("CUSTODY_AGGREGATOR_API_KEY"); v != "" {
		settings.AggregatorAPIKey = v
	}
	if v := os.Getenv("CUSTODY_STREAM_URL"); v != "" {
		settings.StreamURL = v
	}
	if v := os.Getenv("CUSTODY_KEYSTORE_DIR"); v != "" {
		settings.KeystoreDir = v
	}
	if v := os.Getenv("CUSTODY_OPS_PATH"); v != "" {
		settings.OpsDBPath = v
	}
	if v := os.Getenv("CUSTODY_OPS_LOCK_PATH"); v != "" {
		settings.OpsLockPath = v
	}
	if v := os.Getenv("CUSTODY_CURSOR_PATH"); v != "" {
		settings.CursorDBPath = v
	}
	if v := os.Getenv("CUSTODY_CURSOR_LOCK_PATH"); v != "" {
		settings.CursorLockPath = v
	}
	if v := os.Getenv("CUSTODY_AUTO_CONFIRM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.AutoConfirm = b
		}
	}
	if v := os.Getenv("CUSTODY_DOMAIN_SUFFIX"); v != "" {
		settings.DomainSuffix = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
