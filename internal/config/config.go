package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	KeyLog               = "log"
	KeyLogLevel          = "logLevel"
	KeyStoragePath       = "storagePath"
	KeyExtraStoragePaths = "extraStoragePaths"
	KeyTemporaryPath     = "temporaryPath"
	KeyRepositoryURL     = "repositoryUrl"
	EnvPrefix            = "resman"
)

var HomeDir string
var DefaultConfigDir string

func InitConfig() {
	var err error
	HomeDir, err = os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	DefaultConfigDir = filepath.Join(HomeDir, ".resman")
}

func InitViper() {
	viper.SetDefault(KeyLog, false)
	viper.SetDefault(KeyLogLevel, "INFO")
	viper.SetDefault(KeyStoragePath, filepath.Join(DefaultConfigDir, "storage"))
	viper.SetDefault(KeyTemporaryPath, filepath.Join(DefaultConfigDir, "tmp"))
	viper.SetDefault(KeyExtraStoragePaths, []string{})
	viper.SetDefault(KeyRepositoryURL, "https://repo.omaps.dev")

	viper.SetConfigType("json")
	viper.SetConfigName("config")
	viper.AddConfigPath(DefaultConfigDir)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// config file not found; rely on defaults
		} else {
			panic("cannot read config: " + err.Error())
		}
	}
	// environment variables have to match pattern "resman_<viper variable>", lower or uppercase
	viper.SetEnvPrefix(EnvPrefix)

	_ = viper.BindEnv(KeyLog)               // env variable name = RESMAN_LOG
	_ = viper.BindEnv(KeyLogLevel)          // env variable name = RESMAN_LOGLEVEL
	_ = viper.BindEnv(KeyStoragePath)       // env variable name = RESMAN_STORAGEPATH
	_ = viper.BindEnv(KeyExtraStoragePaths) // env variable name = RESMAN_EXTRASTORAGEPATHS
	_ = viper.BindEnv(KeyTemporaryPath)     // env variable name = RESMAN_TEMPORARYPATH
	_ = viper.BindEnv(KeyRepositoryURL)     // env variable name = RESMAN_REPOSITORYURL
}

// Save persists a single key to the config file, creating the config
// directory and file if necessary.
func Save(key string, value any) error {
	viper.Set(key, value)
	if err := os.MkdirAll(DefaultConfigDir, 0775); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(DefaultConfigDir, "config.json"))
}
