// Package config defines the kernel's structured configuration. It is
// loaded from a YAML file with RINDEX_*-prefixed environment variables
// overriding fields that file sets, the same viper-based pattern the teacher's
// sibling repo in the retrieval pack (0xtitan6-polymarket-mm) uses for its
// own config package.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// MarginTiers holds the maintenance-margin fraction for each leverage tier
// (spec.md §4.4 / §6).
type MarginTiers struct {
	Conservative decimal.Decimal `mapstructure:"conservative"`
	Moderate     decimal.Decimal `mapstructure:"moderate"`
	Aggressive   decimal.Decimal `mapstructure:"aggressive"`
	Degen        decimal.Decimal `mapstructure:"degen"`
}

// Config is the top-level kernel configuration (spec.md §6).
type Config struct {
	Instrument             string          `mapstructure:"instrument"`
	InitialMarkPrice       decimal.Decimal `mapstructure:"initial_mark_price"`
	TickSize               decimal.Decimal `mapstructure:"tick_size"`
	MinOrderSize           decimal.Decimal `mapstructure:"min_order_size"`
	MaxLeverage            int             `mapstructure:"max_leverage"`
	LiquidationCheckMS     int             `mapstructure:"liquidation_check_ms"`
	InsuranceFundInitial   decimal.Decimal `mapstructure:"insurance_fund_initial"`
	MaintenanceMargin      MarginTiers     `mapstructure:"maintenance_margin"`
	StartingTraderBalance  decimal.Decimal `mapstructure:"starting_trader_balance"`
	RecentTradesCapacity   int             `mapstructure:"recent_trades_capacity"`
	DatabasePath           string          `mapstructure:"database_path"`
}

// Default returns the configuration used when no file is supplied,
// matching the constants named throughout spec.md (initial mark 1000,
// 100ms scan interval, etc).
func Default() Config {
	return Config{
		Instrument:            "R.index",
		InitialMarkPrice:      decimal.NewFromInt(1000),
		TickSize:              decimal.NewFromFloat(0.01),
		MinOrderSize:          decimal.NewFromFloat(0.001),
		MaxLeverage:           125,
		LiquidationCheckMS:    100,
		InsuranceFundInitial:  decimal.NewFromInt(100000),
		RecentTradesCapacity:  1000,
		StartingTraderBalance: decimal.NewFromInt(10000),
		DatabasePath:          "rindex.db",
		MaintenanceMargin: MarginTiers{
			Conservative: decimal.NewFromFloat(0.005),
			Moderate:     decimal.NewFromFloat(0.01),
			Aggressive:   decimal.NewFromFloat(0.02),
			Degen:        decimal.NewFromFloat(0.05),
		},
	}
}

// Load reads configuration from path (if non-empty) layered over Default,
// with RINDEX_ environment variables overriding the keys that the file
// sets. Environment variables are not consulted for keys the file omits,
// nor at all when path is empty (Default is then returned unchanged).
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("RINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg, viper.DecodeHook(decimalHook())); err != nil {
			return cfg, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	return cfg, nil
}

// MarginFor returns the maintenance-margin fraction for the tier
// implied by leverage (spec.md §4.4).
func (c Config) MarginFor(leverage int) decimal.Decimal {
	switch tierOf(leverage) {
	case 1:
		return c.MaintenanceMargin.Moderate
	case 2:
		return c.MaintenanceMargin.Aggressive
	case 3:
		return c.MaintenanceMargin.Degen
	default:
		return c.MaintenanceMargin.Conservative
	}
}

// decimalHook lets viper decode YAML/env string or numeric fields straight
// into decimal.Decimal, since shopspring/decimal is opaque to mapstructure
// by default.
func decimalHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case float64:
			return decimal.NewFromFloat(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		default:
			return data, nil
		}
	}
}

func tierOf(leverage int) int {
	switch {
	case leverage <= 10:
		return 0
	case leverage <= 50:
		return 1
	case leverage <= 100:
		return 2
	default:
		return 3
	}
}
