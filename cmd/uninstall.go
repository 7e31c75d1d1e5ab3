package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <NAME>",
	Short: "Uninstall a resource",
	Long:  `Remove an installed map region or voice pack from the device.`,
	Args:  cobra.ExactArgs(1),
	Run:   executeUninstall,
}

func init() {
	RootCmd.AddCommand(uninstallCmd)
}

func executeUninstall(cmd *cobra.Command, args []string) {
	m, err := cli.NewManager()
	if err != nil {
		cli.Stderrf("could not initialize resources manager: %v", err)
		os.Exit(1)
	}
	if err := cli.Uninstall(context.Background(), m, args[0]); err != nil {
		os.Exit(1)
	}
}
