package cmd

import (
	"github.com/spf13/cobra"
)

// clusterAddonUninstallCmd represents the clusterAddonUninstall command
var clusterAddonUninstallCmd = &cobra.Command{
	Use:     "uninstall <ADDON>",
	Short:   "removes an addon from a cluster",
	PreRunE: validateAddonSubCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		addonName := args[0]

		service, err := addonService(cmd, false)
		if err != nil {
			return err
		}

		AppConf.Logger.Infow("removing addon", "addon", addonName)
		if err := service.GetAddon(addonName).Uninstall(AppConf.Context); err != nil {
			return err
		}
		AppConf.Logger.Infow("addon successfully removed", "addon", addonName)
		return nil
	},
}

func init() {
	clusterAddonCmd.AddCommand(clusterAddonUninstallCmd)

	clusterAddonUninstallCmd.Flags().StringP("name", "n", "", "Name of the cluster")
}
