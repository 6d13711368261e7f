package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// SettingsVersion is the only settings document version this build accepts.
const SettingsVersion = 1

// Duration is a time.Duration that reads "48h"-style strings from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Settings is the business configuration snapshot handed to the core.
// Services read it once per operation; it is never mutated in place.
type Settings struct {
	Version          int             `json:"version" validate:"eq=1"`
	Features         Features        `json:"features"`
	Payment          PaymentSettings `json:"payment"`
	Accounts         AccountCodes    `json:"accounts"`
	SLA              StatusSLA       `json:"sla"`
	DefaultWarehouse string          `json:"defaultWarehouse" validate:"required"`
}

// Features are the kill switches.
type Features struct {
	CheckoutEnabled   bool `json:"checkoutEnabled"`
	WebhooksEnabled   bool `json:"webhooksEnabled"`
	AutoCancelEnabled bool `json:"autoCancelEnabled"`
}

type PaymentSettings struct {
	Provider       string   `json:"provider" validate:"required"`
	Currency       string   `json:"currency" validate:"required,len=3,uppercase"`
	PendingTimeout Duration `json:"pendingTimeout" validate:"gt=0"`
}

// AccountCodes maps ledger roles to chart-of-accounts codes.
type AccountCodes struct {
	Cash               string `json:"cash" validate:"required"`
	AccountsReceivable string `json:"accountsReceivable" validate:"required"`
	Inventory          string `json:"inventory" validate:"required"`
	SalesRevenue       string `json:"salesRevenue" validate:"required"`
	COGS               string `json:"cogs" validate:"required"`
}

// StatusSLA is how long an order may sit in a non-terminal status before the
// reconciliation job acts on it.
type StatusSLA struct {
	Pending       Duration `json:"pending" validate:"gt=0"`
	PaymentFailed Duration `json:"paymentFailed" validate:"gt=0"`
	Paid          Duration `json:"paid" validate:"gt=0"`
	Shipped       Duration `json:"shipped" validate:"gt=0"`
}

// DefaultSettings is the base every settings document is merged onto.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsVersion,
		Features: Features{
			CheckoutEnabled:   true,
			WebhooksEnabled:   true,
			AutoCancelEnabled: true,
		},
		Payment: PaymentSettings{
			Provider:       "GENERIC",
			Currency:       "IDR",
			PendingTimeout: Duration(48 * time.Hour),
		},
		Accounts: AccountCodes{
			Cash:               "1000",
			AccountsReceivable: "1100",
			Inventory:          "1200",
			SalesRevenue:       "4000",
			COGS:               "5000",
		},
		SLA: StatusSLA{
			Pending:       Duration(72 * time.Hour),
			PaymentFailed: Duration(72 * time.Hour),
			Paid:          Duration(5 * 24 * time.Hour),
			Shipped:       Duration(14 * 24 * time.Hour),
		},
		DefaultWarehouse: "main",
	}
}

var validate = validator.New()

// Validate checks the settings at the boundary, before they reach the core.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ParseSettings merges a JSON document onto DefaultSettings: keys present in
// the document override the default, absent keys keep it.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads path, or returns the defaults when path is empty.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	return ParseSettings(data)
}

// Static returns a provider that always yields s.
func Static(s Settings) func() Settings {
	return func() Settings { return s }
}
