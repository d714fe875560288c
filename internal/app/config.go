package app

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"keytrust/internal/domain"
)

// Config holds runtime wiring options.
type Config struct {
	Home       string        // data directory, e.g. $HOME/.keytrust
	Database   string        // database file name inside Home
	SelfUserID domain.UserID // the local user
	LogLevel   string

	Encryption EncryptionConfig
}

// EncryptionConfig gates trust evaluation behavior.
type EncryptionConfig struct {
	// Enabled is the precondition for all signature-chain validation.
	Enabled bool
	// Strict requires full verification before encrypting to a device even
	// when the owning user has no verified master key.
	Strict bool
}

// LoadConfig reads keytrust.yaml from the given directory (or the defaults
// when absent), with KEYTRUST_* environment overrides.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("keytrust")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("keytrust")
	v.AutomaticEnv()

	v.SetDefault("home", defaultHome())
	v.SetDefault("database", "trust.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("encryption.enabled", true)
	v.SetDefault("encryption.strict", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	return Config{
		Home:       v.GetString("home"),
		Database:   v.GetString("database"),
		SelfUserID: domain.UserID(v.GetString("self_user_id")),
		LogLevel:   v.GetString("log_level"),
		Encryption: EncryptionConfig{
			Enabled: v.GetBool("encryption.enabled"),
			Strict:  v.GetBool("encryption.strict"),
		},
	}, nil
}

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".keytrust"
	}
	return filepath.Join(dir, ".keytrust")
}
