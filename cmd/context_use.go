package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// useCmd represents the use command
var useCmd = &cobra.Command{
	Use:   "use <NAME>",
	Short: "switches to a saved context given by NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextName := args[0]

		if err := AppConf.SwitchContextByName(contextName); err != nil {
			return err
		}
		if err := AppConf.Config.WriteCurrentConfig(); err != nil {
			return err
		}
		fmt.Printf("switched to context '%s'\n", contextName)
		return nil
	},
}

func init() {
	contextCmd.AddCommand(useCmd)
}
