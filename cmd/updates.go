package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
)

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "List resources with available updates",
	Long:  `List installed resources for which the repository carries a newer build.`,
	Args:  cobra.NoArgs,
	Run:   executeUpdates,
}

func init() {
	RootCmd.AddCommand(updatesCmd)
}

func executeUpdates(cmd *cobra.Command, args []string) {
	m, err := cli.NewManager()
	if err != nil {
		cli.Stderrf("could not initialize resources manager: %v", err)
		os.Exit(1)
	}
	if err := cli.ListUpdates(context.Background(), m); err != nil {
		os.Exit(1)
	}
}
