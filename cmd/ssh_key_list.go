package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// sshKeyListCmd represents the sshKeyList command
var sshKeyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "lists all saved SSH keys",
	Run: func(cmd *cobra.Command, args []string) {
		tw := new(tabwriter.Writer)
		tw.Init(os.Stdout, 0, 8, 2, '\t', 0)
		fmt.Fprintln(tw, "NAME\tPRIVATE KEY")

		for _, key := range AppConf.Config.SSHKeys {
			fmt.Fprintf(tw, "%s\t%s", key.Name, key.PrivateKeyPath)
			fmt.Fprintln(tw)
		}

		tw.Flush()
	},
}

func init() {
	sshKeyCmd.AddCommand(sshKeyListCmd)
}
