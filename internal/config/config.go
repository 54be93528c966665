// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	RPCList          []string `mapstructure:"rpc_list"`
	Commitment       string   `mapstructure:"commitment"`
	RecipientWallet  string   `mapstructure:"recipient_wallet"`
	PaymentAmountSOL float64  `mapstructure:"payment_amount_sol"`
	PaymentLabel     string   `mapstructure:"payment_label"`
	PaymentMessage   string   `mapstructure:"payment_message"`
	TraderPrivateKey string   `mapstructure:"trader_private_key"`
	BirdeyeURL       string   `mapstructure:"birdeye_url"`
	BirdeyeAPIKey    string   `mapstructure:"birdeye_api_key"`
	JupiterURL       string   `mapstructure:"jupiter_url"`
	SlippageBps      int      `mapstructure:"slippage_bps"`
	ProfitThreshold  float64  `mapstructure:"profit_threshold"`
	Workers          int      `mapstructure:"workers"`
	TelegramToken    string   `mapstructure:"telegram_token"`
	TelegramChatID   string   `mapstructure:"telegram_chat_id"`
	PostgresURL      string   `mapstructure:"postgres_url"`
	ListenAddr       string   `mapstructure:"listen_addr"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
}

const (
	DefaultCommitment      = "confirmed"
	DefaultPaymentAmount   = 0.0001
	DefaultPaymentLabel    = "SolAI PayHub"
	DefaultPaymentMessage  = "AI Insight unlock"
	DefaultBirdeyeURL      = "https://public-api.birdeye.so"
	DefaultJupiterURL      = "https://quote-api.jup.ag/v6"
	DefaultSlippageBps     = 50
	DefaultProfitThreshold = 5.0
	DefaultWorkers         = 4
	DefaultListenAddr      = ":8080"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"commitment":         DefaultCommitment,
		"payment_amount_sol": DefaultPaymentAmount,
		"payment_label":      DefaultPaymentLabel,
		"payment_message":    DefaultPaymentMessage,
		"birdeye_url":        DefaultBirdeyeURL,
		"jupiter_url":        DefaultJupiterURL,
		"slippage_bps":       DefaultSlippageBps,
		"profit_threshold":   DefaultProfitThreshold,
		"workers":            DefaultWorkers,
		"listen_addr":        DefaultListenAddr,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validate(&cfg)
}

// validate fails fast on missing or malformed required settings so a
// misconfigured deployment never silently defaults.
func validate(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.RecipientWallet == "" {
		return errors.New("missing recipient_wallet in configuration")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.RecipientWallet); err != nil {
		return fmt.Errorf("invalid recipient_wallet: %w", err)
	}
	if cfg.PaymentAmountSOL <= 0 {
		return errors.New("payment_amount_sol must be positive")
	}
	if cfg.Commitment != "processed" && cfg.Commitment != "confirmed" && cfg.Commitment != "finalized" {
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	if err := validateURL(cfg.BirdeyeURL, "http"); err != nil {
		return fmt.Errorf("invalid birdeye_url: %w", err)
	}
	if err := validateURL(cfg.JupiterURL, "http"); err != nil {
		return fmt.Errorf("invalid jupiter_url: %w", err)
	}
	if cfg.SlippageBps <= 0 || cfg.SlippageBps > 10000 {
		return errors.New("invalid slippage_bps")
	}
	if cfg.ProfitThreshold <= 0 {
		return errors.New("profit_threshold must be positive")
	}
	if cfg.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if cfg.ListenAddr == "" {
		return errors.New("missing listen_addr")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// loadEnvironmentVariables overrides file values from PAYHUB_* env
// variables. Secrets (trader key, API keys, telegram token) are
// expected to arrive only this way.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("PAYHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		var cleanRPCs []string
		for _, rpc := range strings.Split(envRPCList, ",") {
			if clean := strings.TrimSpace(rpc); clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	if envWallet := v.GetString("RECIPIENT_WALLET"); envWallet != "" {
		cfg.RecipientWallet = envWallet
	}
	if envKey := v.GetString("TRADER_PRIVATE_KEY"); envKey != "" {
		cfg.TraderPrivateKey = envKey
	}
	if envKey := v.GetString("BIRDEYE_API_KEY"); envKey != "" {
		cfg.BirdeyeAPIKey = envKey
	}
	if envToken := v.GetString("TELEGRAM_TOKEN"); envToken != "" {
		cfg.TelegramToken = envToken
	}
	if envChat := v.GetString("TELEGRAM_CHAT_ID"); envChat != "" {
		cfg.TelegramChatID = envChat
	}
	if envPostgres := v.GetString("POSTGRES_URL"); envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}
}
