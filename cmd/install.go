package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/omaps-oss/resman/internal/app/cli"
	"github.com/omaps-oss/resman/internal/model"
)

var installCmd = &cobra.Command{
	Use:   "install <NAME>",
	Short: "Install a resource",
	Long: `Install a resource from the remote repository, or from a local container
file when --file is given.`,
	Args: cobra.ExactArgs(1),
	Run:  executeInstall,
}

func init() {
	RootCmd.AddCommand(installCmd)
	installCmd.Flags().StringP("file", "f", "", "install from a local container file instead of the repository")
	installCmd.Flags().StringP("type", "t", "map", "resource type when installing from file: map or voice")
}

func executeInstall(cmd *cobra.Command, args []string) {
	path := cmd.Flag("file").Value.String()
	typ := model.ParseResourceType(cmd.Flag("type").Value.String())
	if path != "" && typ == model.ResourceTypeUnknown {
		cli.Stderrf("unknown resource type %q, expected map or voice", cmd.Flag("type").Value.String())
		os.Exit(1)
	}
	m, err := cli.NewManager()
	if err != nil {
		cli.Stderrf("could not initialize resources manager: %v", err)
		os.Exit(1)
	}
	if err := cli.Install(context.Background(), m, args[0], path, typ); err != nil {
		os.Exit(1)
	}
}
