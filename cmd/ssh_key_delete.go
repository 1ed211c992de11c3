package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// sshKeyDeleteCmd represents the sshKeyDelete command
var sshKeyDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "removes a saved SSH key from local configuration and Hetzner Cloud account",
	PreRunE: validateSSHKeyDeleteFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		sshKey, _, err := AppConf.Client.SSHKey.Get(AppConf.Context, name)
		if err != nil {
			return err
		}

		if sshKey == nil {
			AppConf.Logger.Warnw("SSH key not found on Hetzner Cloud", "name", name)
		} else if _, err := AppConf.Client.SSHKey.Delete(AppConf.Context, sshKey); err != nil {
			return err
		}

		if err := AppConf.Config.DeleteSSHKey(name); err != nil {
			return err
		}
		if err := AppConf.Config.WriteCurrentConfig(); err != nil {
			return err
		}

		fmt.Println("SSH key deleted!")
		return nil
	},
}

func validateSSHKeyDeleteFlags(cmd *cobra.Command, args []string) error {
	if err := AppConf.assertActiveContext(); err != nil {
		return err
	}

	if name, _ := cmd.Flags().GetString("name"); name == "" {
		return errors.New("flag --name is required")
	}

	return nil
}

func init() {
	sshKeyCmd.AddCommand(sshKeyDeleteCmd)

	sshKeyDeleteCmd.Flags().StringP("name", "n", "", "Name of the ssh-key")
}
