package cmd

import (
	"github.com/spf13/cobra"
)

// clusterAddonInstallCmd represents the clusterAddonInstall command
var clusterAddonInstallCmd = &cobra.Command{
	Use:     "install <ADDON>",
	Short:   "installs an addon to a cluster",
	PreRunE: validateAddonSubCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		addonName := args[0]
		wait, _ := cmd.Flags().GetBool("wait")

		service, err := addonService(cmd, wait)
		if err != nil {
			return err
		}

		AppConf.Logger.Infow("installing addon", "addon", addonName)
		if err := service.Install(AppConf.Context, addonName); err != nil {
			return err
		}
		AppConf.Logger.Infow("addon successfully installed", "addon", addonName)
		return nil
	},
}

func init() {
	clusterAddonCmd.AddCommand(clusterAddonInstallCmd)

	clusterAddonInstallCmd.Flags().StringP("name", "n", "", "Name of the cluster")
	clusterAddonInstallCmd.Flags().Bool("wait", true, "wait for the addon deployments to become available")
}
