package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed resources",
	Long:  `List the map regions and voice packs found in the configured storage paths.`,
	Args:  cobra.NoArgs,
	Run:   executeList,
}

func init() {
	RootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolP("remote", "r", false, "list the repository index instead of local storage")
}

func executeList(cmd *cobra.Command, args []string) {
	m, err := cli.NewManager()
	if err != nil {
		cli.Stderrf("could not initialize resources manager: %v", err)
		os.Exit(1)
	}
	remote, _ := cmd.Flags().GetBool("remote")
	if remote {
		err = cli.ListRemote(context.Background(), m)
	} else {
		err = cli.ListLocal(context.Background(), m)
	}
	if err != nil {
		os.Exit(1)
	}
}
