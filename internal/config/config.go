package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	Contract          string
	ABIPath           string
	TelegramToken     string
	ChatID            string
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	MaxBackoff        time.Duration
	BatchSize         uint64
	StartBlock        uint64
	DedupWindow       int
	Checkpoint        string
	CheckpointEnabled bool
	Out               string
	PGDSN             string
	MetricsAddr       string
	IPFSGateway       string
	QueueSize         int
	CommandRate       int
	TransfersWindow   uint64
	TransfersLimit    int
	MaxListedTokens   int
	CommandsEnabled   bool
	LogLevel          string
}

// envAliases maps keys to the plain variable names older deployments use.
var envAliases = map[string]string{
	"rpc":            "WEB3_PROVIDER",
	"contract":       "CONTRACT_ADDRESS",
	"telegram-token": "TELEGRAM_TOKEN",
	"chat-id":        "TELEGRAM_CHAT_ID",
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MINTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		envKey := "MINTWATCH_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("request-timeout", 15*time.Second)
	v.SetDefault("max-backoff", 2*time.Minute)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("start-block", uint64(0))
	v.SetDefault("dedup-window", 10000)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("out", "./data/mints.jsonl")
	v.SetDefault("ipfs-gateway", "https://ipfs.io/ipfs/")
	v.SetDefault("queue-size", 64)
	v.SetDefault("command-rate", 10)
	v.SetDefault("transfers-window", uint64(5000))
	v.SetDefault("transfers-limit", 5)
	v.SetDefault("max-listed-tokens", 50)
	v.SetDefault("commands-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            strings.TrimSpace(v.GetString("rpc")),
		Contract:          strings.TrimSpace(v.GetString("contract")),
		ABIPath:           v.GetString("abi"),
		TelegramToken:     strings.TrimSpace(v.GetString("telegram-token")),
		ChatID:            strings.TrimSpace(v.GetString("chat-id")),
		PollInterval:      v.GetDuration("poll-interval"),
		RequestTimeout:    v.GetDuration("request-timeout"),
		MaxBackoff:        v.GetDuration("max-backoff"),
		BatchSize:         v.GetUint64("batch-size"),
		StartBlock:        v.GetUint64("start-block"),
		DedupWindow:       v.GetInt("dedup-window"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		Out:               v.GetString("out"),
		PGDSN:             v.GetString("pg-dsn"),
		MetricsAddr:       v.GetString("metrics-addr"),
		IPFSGateway:       v.GetString("ipfs-gateway"),
		QueueSize:         v.GetInt("queue-size"),
		CommandRate:       v.GetInt("command-rate"),
		TransfersWindow:   v.GetUint64("transfers-window"),
		TransfersLimit:    v.GetInt("transfers-limit"),
		MaxListedTokens:   v.GetInt("max-listed-tokens"),
		CommandsEnabled:   v.GetBool("commands-enabled"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values needed to talk to the chain. Telegram
// settings are only checked when requireTelegram is set.
func (c Config) Validate(requireTelegram bool) error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("rpc url is required"))
	}
	if c.Contract == "" {
		errs = append(errs, fmt.Errorf("contract address is required"))
	} else if !common.IsHexAddress(c.Contract) {
		errs = append(errs, fmt.Errorf("invalid contract address: %q", c.Contract))
	}
	if requireTelegram {
		if c.TelegramToken == "" {
			errs = append(errs, fmt.Errorf("telegram token is required"))
		}
		if c.ChatID == "" {
			errs = append(errs, fmt.Errorf("chat id is required"))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.MaxBackoff < c.PollInterval {
		errs = append(errs, fmt.Errorf("max backoff must be >= poll interval"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive"))
	}
	if c.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("dedup window must be greater than zero"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be greater than zero"))
	}
	if c.CommandRate < 0 {
		errs = append(errs, fmt.Errorf("command rate must not be negative"))
	}
	return errors.Join(errs...)
}

// ContractAddress returns the validated contract address.
func (c Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract)
}
