package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CountryVAT is the VAT rule applied to platform commission for one country.
type CountryVAT struct {
	CountryCode       string `mapstructure:"countryCode"`
	InvoiceVATEnabled bool   `mapstructure:"invoiceVatEnabled"`
	InvoiceVATRateBps int64  `mapstructure:"invoiceVatRateBps"`
	VATLabel          string `mapstructure:"vatLabel"`
}

// PlatformSettings is the versioned value object snapshotted onto sub-orders
// at completion. It is never consulted as live state by the settlement path.
type PlatformSettings struct {
	Version           string       `mapstructure:"version"`
	Currency          string       `mapstructure:"currency"`
	CommissionRateBps int64        `mapstructure:"commissionRateBps"`
	VATByCountry      []CountryVAT `mapstructure:"vatByCountry"`
}

// VATFor returns the VAT rule for a country, or a disabled zero rule.
func (s PlatformSettings) VATFor(countryCode string) CountryVAT {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	for _, v := range s.VATByCountry {
		if strings.ToUpper(v.CountryCode) == code {
			return v
		}
	}
	return CountryVAT{CountryCode: code, VATLabel: "VAT"}
}

func DefaultPlatformSettings() PlatformSettings {
	return PlatformSettings{
		Version:           "v1",
		Currency:          "SAR",
		CommissionRateBps: 1500,
		VATByCountry: []CountryVAT{
			{CountryCode: "SA", InvoiceVATEnabled: true, InvoiceVATRateBps: 1500, VATLabel: "VAT"},
		},
	}
}

// PlatformSettingsHolder serves the current settings and hot-reloads them
// from disk without restarting.
type PlatformSettingsHolder struct {
	current atomic.Value // holds PlatformSettings
}

func NewPlatformSettingsHolder(log *zap.Logger) (*PlatformSettingsHolder, error) {
	log = log.Named("config.platform")
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/matbakh/config")
	v.AddConfigPath("/etc/matbakh")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MATBAKH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlatformSettings()
		v.SetDefault("platform.version", defaults.Version)
		v.SetDefault("platform.currency", defaults.Currency)
		v.SetDefault("platform.commissionRateBps", defaults.CommissionRateBps)
		v.SetDefault("platform.vatByCountry", defaults.VATByCountry)
	}

	var settings PlatformSettings
	if err := v.UnmarshalKey("platform", &settings); err != nil {
		return nil, err
	}
	if err := validatePlatformSettings(settings); err != nil {
		return nil, err
	}

	holder := &PlatformSettingsHolder{}
	holder.current.Store(settings)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformSettings
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Warn("settings reload failed", zap.Error(err))
			return
		}
		if err := validatePlatformSettings(updated); err != nil {
			log.Warn("invalid settings ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settings reloaded",
			zap.String("file", e.Name),
			zap.String("version", updated.Version),
		)
	})

	return holder, nil
}

func NewPlatformSettingsHolderFrom(settings PlatformSettings) *PlatformSettingsHolder {
	holder := &PlatformSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func (h *PlatformSettingsHolder) Get() PlatformSettings {
	return h.current.Load().(PlatformSettings)
}

func validatePlatformSettings(s PlatformSettings) error {
	if strings.TrimSpace(s.Version) == "" {
		return errors.New("platform.version cannot be empty")
	}
	if s.CommissionRateBps < 0 || s.CommissionRateBps > 10000 {
		return errors.New("platform.commissionRateBps must be within [0,10000]")
	}
	for _, v := range s.VATByCountry {
		if v.InvoiceVATRateBps < 0 || v.InvoiceVATRateBps > 10000 {
			return errors.New("platform.vatByCountry rate must be within [0,10000]")
		}
	}
	return nil
}
