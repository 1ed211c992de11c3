package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <NAME>",
	Short: "deletes a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if err := AppConf.DeleteContextByName(name); err != nil {
			return err
		}

		if name == AppConf.Config.ActiveContextName {
			AppConf.Config.ActiveContextName = ""
			AppConf.CurrentContext = nil
			AppConf.Client = nil
			if len(AppConf.Config.Contexts) > 0 {
				next := AppConf.Config.Contexts[0].Name
				if err := AppConf.SwitchContextByName(next); err != nil {
					return err
				}
				fmt.Printf("switched to context '%s'\n", next)
			}
		}
		if err := AppConf.Config.WriteCurrentConfig(); err != nil {
			return err
		}
		fmt.Printf("deleted context '%s'\n", name)
		return nil
	},
}

func init() {
	contextCmd.AddCommand(contextDeleteCmd)
}
