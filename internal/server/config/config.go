// Package config handles configuration for the server component,
// including defaults, JSON overlay, command-line flags and validation.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the document store server.
//
// Fields:
//   - DatabaseURI: MongoDB connection string.
//   - DatabaseName: database holding all document collections.
//   - Languages: BCP 47 tags accepted on multilingual fields.
//   - SecretKey: HMAC secret for signing persona tokens (HS256). Do not use
//     test defaults in prod.
//   - TokenValidityDuration: persona token lifetime.
//   - ConnectTimeout: budget for the initial database connect and ping.
type Config struct {
	DatabaseURI           string   `validate:"required,uri"`
	DatabaseName          string   `validate:"required"`
	Languages             []string `validate:"required,min=1,dive,bcp47_language_tag"`
	SecretKey             string   `validate:"required"`
	TokenValidityDuration time.Duration
	ConnectTimeout        time.Duration `validate:"gt=0"`
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.DatabaseURI = "mongodb://127.0.0.1:27017"
	c.DatabaseName = "docstore"
	c.Languages = []string{"en"}
	c.SecretKey = "secretKey"
	c.TokenValidityDuration = 15 * time.Minute
	c.ConnectTimeout = 10 * time.Second
}

// Validate checks the assembled configuration. It is called once at startup,
// after every source has been applied.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
