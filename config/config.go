package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"stakeauction/native/auction"
)

// Config is the on-disk service configuration.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	OpsAddress     string `toml:"OpsAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	RPCAuthToken   string `toml:"RPCAuthToken"`
	LogFile        string `toml:"LogFile"`
	AuditDB        string `toml:"AuditDB"`
	Owner          string `toml:"Owner"`
	EscrowAdmin    string `toml:"EscrowAdmin"`
	EscrowReceiver string `toml:"EscrowReceiver"`

	Auction AuctionConfig `toml:"auction"`
	Oracle  OracleConfig  `toml:"oracle"`
}

// AuctionConfig seeds the engine economics on first start. Wei amounts are
// decimal strings because TOML integers cannot carry 18-decimal values.
type AuctionConfig struct {
	ExpectedDailyReturnWei string `toml:"ExpectedDailyReturnWei"`
	MaxDiscountRateBps     uint64 `toml:"MaxDiscountRateBps"`
	MinDurationDays        uint64 `toml:"MinDurationDays"`
	ClusterSize            uint64 `toml:"ClusterSize"`
}

// OracleConfig controls the freshness window applied to push-feed adapters.
type OracleConfig struct {
	MaxQuoteAgeSeconds int64 `toml:"MaxQuoteAgeSeconds"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		c.OpsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stakeauction-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Oracle.MaxQuoteAgeSeconds <= 0 {
		c.Oracle.MaxQuoteAgeSeconds = 3600
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8545",
		OpsAddress:     ":9090",
		DataDir:        "./stakeauction-data",
		Environment:    "local",
		Owner:          common.Address{}.Hex(),
		EscrowAdmin:    common.Address{}.Hex(),
		EscrowReceiver: common.Address{}.Hex(),
		Auction: AuctionConfig{
			ExpectedDailyReturnWei: "3243835616438356",
			MaxDiscountRateBps:     1500,
			MinDurationDays:        14,
			ClusterSize:            4,
		},
		Oracle: OracleConfig{MaxQuoteAgeSeconds: 3600},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("config: %s address required", field)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s is not a hex address: %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

// OwnerAddress parses the configured auction owner.
func (c *Config) OwnerAddress() (common.Address, error) {
	return parseAddress("Owner", c.Owner)
}

// EscrowAdminAddress parses the configured escrow administrator.
func (c *Config) EscrowAdminAddress() (common.Address, error) {
	return parseAddress("EscrowAdmin", c.EscrowAdmin)
}

// EscrowReceiverAddress parses the configured escrow release destination.
func (c *Config) EscrowReceiverAddress() (common.Address, error) {
	return parseAddress("EscrowReceiver", c.EscrowReceiver)
}

// EngineConfig converts the seed section into the engine's config type.
func (c *Config) EngineConfig() (*auction.Config, error) {
	daily, ok := new(big.Int).SetString(strings.TrimSpace(c.Auction.ExpectedDailyReturnWei), 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid ExpectedDailyReturnWei %q", c.Auction.ExpectedDailyReturnWei)
	}
	engineCfg := &auction.Config{
		ExpectedDailyReturnWei: daily,
		MaxDiscountRateBps:     c.Auction.MaxDiscountRateBps,
		MinDurationDays:        c.Auction.MinDurationDays,
		ClusterSize:            c.Auction.ClusterSize,
	}
	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	return engineCfg, nil
}

// Validate checks the parts of the file that would otherwise fail deep inside
// service wiring.
func (c *Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if _, err := c.EscrowAdminAddress(); err != nil {
		return err
	}
	if _, err := c.EscrowReceiverAddress(); err != nil {
		return err
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}
