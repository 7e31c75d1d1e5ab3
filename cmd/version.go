package cmd

import (
	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
	"github.com/omaps-oss/resman/internal/utils"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of resman",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cli.Stdoutf("resman version %s", utils.GetResmanVersion())
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
