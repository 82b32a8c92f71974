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
)

type GlobalFlags struct {
	ConfigPath    string
	JSON          bool
	Plain         bool
	Select        string
	ResultsOnly   bool
	Timeout       string
	Retries       int
	EnableVenues  string
	Slippage      string
	AutoSlippage  bool
	IncludeGasFee bool
	MEVGuarded    bool
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	Timeout      time.Duration
	Retries      int

	// Quote lifecycle tuning.
	Debounce     time.Duration
	QuoteExpiry  time.Duration
	FeeRate      float64
	EnableVenues []string

	// Slippage, in percent (0.5 means 0.5%).
	Slippage      float64
	AutoSlippage  bool
	IncludeGasFee bool

	// Execution preferences.
	MEVGuarded         bool
	UnlimitedAllowance bool

	// Upstream services.
	ChainDataBase  string
	ChainDataKey   string
	OneInchAPIKey  string
	ZeroXAPIKey    string
	ParaswapAPIKey string

	// Local stores.
	HistoryStorePath string
	HistoryLockPath  string
	GasPrefsPath     string
	GasPrefsLockPath string

	// Signing.
	KeystorePath string
	RPCEndpoints map[int64]string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Quotes  struct {
		Debounce      string   `yaml:"debounce"`
		Expiry        string   `yaml:"expiry"`
		FeeRate       *float64 `yaml:"fee_rate"`
		EnableVenues  []string `yaml:"enable_venues"`
		Slippage      *float64 `yaml:"slippage"`
		AutoSlippage  *bool    `yaml:"auto_slippage"`
		IncludeGasFee *bool    `yaml:"include_gas_fee"`
	} `yaml:"quotes"`
	Execution struct {
		MEVGuarded         *bool  `yaml:"mev_guarded"`
		UnlimitedAllowance *bool  `yaml:"unlimited_allowance"`
		KeystorePath       string `yaml:"keystore_path"`
	} `yaml:"execution"`
	Services struct {
		ChainDataBase string `yaml:"chain_data_base"`
		ChainDataKey  string `yaml:"chain_data_key"`
		OneInch       struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"oneinch"`
		ZeroX struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"zerox"`
		Paraswap struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"paraswap"`
	} `yaml:"services"`
	Stores struct {
		HistoryPath     string `yaml:"history_path"`
		HistoryLockPath string `yaml:"history_lock_path"`
		GasPrefsPath    string `yaml:"gas_prefs_path"`
		GasPrefsLock    string `yaml:"gas_prefs_lock_path"`
	} `yaml:"stores"`
	RPC map[string]string `yaml:"rpc"`
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
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.Debounce <= 0 {
		settings.Debounce = 300 * time.Millisecond
	}
	if settings.QuoteExpiry <= 0 {
		settings.QuoteExpiry = 30 * time.Second
	}
	if settings.Slippage <= 0 {
		settings.Slippage = 0.5
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultStateDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:         "json",
		Timeout:            10 * time.Second,
		Retries:            1,
		Debounce:           300 * time.Millisecond,
		QuoteExpiry:        30 * time.Second,
		FeeRate:            0.0025,
		Slippage:           0.5,
		IncludeGasFee:      true,
		UnlimitedAllowance: false,
		ChainDataBase:      "https://api.rabby.io",
		HistoryStorePath:   filepath.Join(dir, "history.db"),
		HistoryLockPath:    filepath.Join(dir, "history.lock"),
		GasPrefsPath:       filepath.Join(dir, "gasprefs.db"),
		GasPrefsLockPath:   filepath.Join(dir, "gasprefs.lock"),
		RPCEndpoints:       map[int64]string{},
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
	return filepath.Join(base, "swap", "config.yaml"), nil
}

func defaultStateDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "swap"), nil
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
	if cfg.Quotes.Debounce != "" {
		d, err := time.ParseDuration(cfg.Quotes.Debounce)
		if err != nil {
			return fmt.Errorf("config quotes.debounce: %w", err)
		}
		settings.Debounce = d
	}
	if cfg.Quotes.Expiry != "" {
		d, err := time.ParseDuration(cfg.Quotes.Expiry)
		if err != nil {
			return fmt.Errorf("config quotes.expiry: %w", err)
		}
		settings.QuoteExpiry = d
	}
	if cfg.Quotes.FeeRate != nil {
		settings.FeeRate = *cfg.Quotes.FeeRate
	}
	if len(cfg.Quotes.EnableVenues) > 0 {
		settings.EnableVenues = cfg.Quotes.EnableVenues
	}
	if cfg.Quotes.Slippage != nil {
		settings.Slippage = *cfg.Quotes.Slippage
	}
	if cfg.Quotes.AutoSlippage != nil {
		settings.AutoSlippage = *cfg.Quotes.AutoSlippage
	}
	if cfg.Quotes.IncludeGasFee != nil {
		settings.IncludeGasFee = *cfg.Quotes.IncludeGasFee
	}
	if cfg.Execution.MEVGuarded != nil {
		settings.MEVGuarded = *cfg.Execution.MEVGuarded
	}
	if cfg.Execution.UnlimitedAllowance != nil {
		settings.UnlimitedAllowance = *cfg.Execution.UnlimitedAllowance
	}
	if cfg.Execution.KeystorePath != "" {
		settings.KeystorePath = cfg.Execution.KeystorePath
	}
	if cfg.Services.ChainDataBase != "" {
		settings.ChainDataBase = cfg.Services.ChainDataBase
	}
	if cfg.Services.ChainDataKey != "" {
		settings.ChainDataKey = cfg.Services.ChainDataKey
	}
	if cfg.Services.OneInch.APIKey != "" {
		settings.OneInchAPIKey = cfg.Services.OneInch.APIKey
	}
	if cfg.Services.OneInch.APIKeyEnv != "" {
		settings.OneInchAPIKey = os.Getenv(cfg.Services.OneInch.APIKeyEnv)
	}
	if cfg.Services.ZeroX.APIKey != "" {
		settings.ZeroXAPIKey = cfg.Services.ZeroX.APIKey
	}
	if cfg.Services.ZeroX.APIKeyEnv != "" {
		settings.ZeroXAPIKey = os.Getenv(cfg.Services.ZeroX.APIKeyEnv)
	}
	if cfg.Services.Paraswap.APIKey != "" {
		settings.ParaswapAPIKey = cfg.Services.Paraswap.APIKey
	}
	if cfg.Services.Paraswap.APIKeyEnv != "" {
		settings.ParaswapAPIKey = os.Getenv(cfg.Services.Paraswap.APIKeyEnv)
	}
	if cfg.Stores.HistoryPath != "" {
		settings.HistoryStorePath = cfg.Stores.HistoryPath
	}
	if cfg.Stores.HistoryLockPath != "" {
		settings.HistoryLockPath = cfg.Stores.HistoryLockPath
	}
	if cfg.Stores.GasPrefsPath != "" {
		settings.GasPrefsPath = cfg.Stores.GasPrefsPath
	}
	if cfg.Stores.GasPrefsLock != "" {
		settings.GasPrefsLockPath = cfg.Stores.GasPrefsLock
	}
	for key, url := range cfg.RPC {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("config rpc: chain key %q must be a numeric chain id", key)
		}
		settings.RPCEndpoints[chainID] = url
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SWAP_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SWAP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SWAP_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SWAP_QUOTE_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.QuoteExpiry = d
		}
	}
	if v := os.Getenv("SWAP_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Debounce = d
		}
	}
	if v := os.Getenv("SWAP_CHAIN_DATA_BASE"); v != "" {
		settings.ChainDataBase = v
	}
	if v := os.Getenv("SWAP_CHAIN_DATA_KEY"); v != "" {
		settings.ChainDataKey = v
	}
	if v := os.Getenv("SWAP_1INCH_API_KEY"); v != "" {
		settings.OneInchAPIKey = v
	}
	if v := os.Getenv("SWAP_0X_API_KEY"); v != "" {
		settings.ZeroXAPIKey = v
	}
	if v := os.Getenv("SWAP_PARASWAP_API_KEY"); v != "" {
		settings.ParaswapAPIKey = v
	}
	if v := os.Getenv("SWAP_HISTORY_PATH"); v != "" {
		settings.HistoryStorePath = v
	}
	if v := os.Getenv("SWAP_HISTORY_LOCK_PATH"); v != "" {
		settings.HistoryLockPath = v
	}
	if v := os.Getenv("SWAP_GAS_PREFS_PATH"); v != "" {
		settings.GasPrefsPath = v
	}
	if v := os.Getenv("SWAP_GAS_PREFS_LOCK_PATH"); v != "" {
		settings.GasPrefsLockPath = v
	}
	if v := os.Getenv("SWAP_KEYSTORE_PATH"); v != "" {
		settings.KeystorePath = v
	}
	if v := os.Getenv("SWAP_UNLIMITED_ALLOWANCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.UnlimitedAllowance = b
		}
	}
	if v := os.Getenv("SWAP_MEV_GUARDED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.MEVGuarded = b
		}
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
	if flags.ResultsOnly {
		settings.ResultsOnly = true
	}
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
	if strings.TrimSpace(flags.EnableVenues) != "" {
		parts := strings.Split(flags.EnableVenues, ",")
		venues := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.ToLower(strings.TrimSpace(part))
			if v != "" {
				venues = append(venues, v)
			}
		}
		settings.EnableVenues = venues
	}
	if strings.TrimSpace(flags.Slippage) != "" {
		v, err := strconv.ParseFloat(flags.Slippage, 64)
		if err != nil {
			return fmt.Errorf("parse --slippage: %w", err)
		}
		if v <= 0 || v >= 50 {
			return fmt.Errorf("--slippage must be between 0 and 50 percent")
		}
		settings.Slippage = v
	}
	if flags.AutoSlippage {
		settings.AutoSlippage = true
	}
	if flags.IncludeGasFee {
		settings.IncludeGasFee = true
	}
	if flags.MEVGuarded {
		settings.MEVGuarded = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
