package cli

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/omaps-oss/resman/internal/config"
	"github.com/omaps-oss/resman/internal/manager"
)

func Stdoutf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, format, args...)
	_, _ = fmt.Fprintln(os.Stdout)
}

func Stderrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
	_, _ = fmt.Fprintln(os.Stderr)
}

// NewManager builds a Manager from the viper configuration.
func NewManager() (*manager.Manager, error) {
	return manager.New(manager.Options{
		StoragePath:       viper.GetString(config.KeyStoragePath),
		TemporaryPath:     viper.GetString(config.KeyTemporaryPath),
		ExtraStoragePaths: viper.GetStringSlice(config.KeyExtraStoragePaths),
		RepositoryURL:     viper.GetString(config.KeyRepositoryURL),
	})
}
