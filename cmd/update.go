package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
)

var updateCmd = &cobra.Command{
	Use:   "update <NAME>",
	Short: "Update an installed resource",
	Long: `Replace an installed resource with the latest build from the remote
repository, or with a local container file when --file is given.`,
	Args: cobra.ExactArgs(1),
	Run:  executeUpdate,
}

func init() {
	RootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringP("file", "f", "", "update from a local container file instead of the repository")
}

func executeUpdate(cmd *cobra.Command, args []string) {
	m, err := cli.NewManager()
	if err != nil {
		cli.Stderrf("could not initialize resources manager: %v", err)
		os.Exit(1)
	}
	path := cmd.Flag("file").Value.String()
	if err := cli.Update(context.Background(), m, args[0], path); err != nil {
		os.Exit(1)
	}
}
