package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the auth server. Tags use
// mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// WebAuthn relying-party settings. RelyingPartyOrigins is the full list
	// of browser origins ceremonies are accepted from.
	RelyingPartyID      string   `mapstructure:"RELYING_PARTY_ID"`
	RelyingPartyName    string   `mapstructure:"RELYING_PARTY_NAME"`
	RelyingPartyOrigins []string `mapstructure:"RELYING_PARTY_ORIGINS"`

	// TOTPIssuer is the issuer name shown in authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults. Environment variables carry the AUTHCORE_ prefix.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/authcore/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AUTHCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authcore_dev")
	v.SetDefault("MONGO_DB_NAME", "authcore_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RELYING_PARTY_ID", "localhost")
	v.SetDefault("RELYING_PARTY_NAME", "DriftBox")
	v.SetDefault("RELYING_PARTY_ORIGINS", []string{"http://localhost:8080"})
	v.SetDefault("TOTP_ISSUER", "DriftBox")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
