package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hetznercloud/hcloud-go/hcloud"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <NAME>",
	Short: "adds a new context",
	Long: `This command adds a new context for communication with the Hetzner Cloud API.

	Before the context is actually saved, kubefleet ensures it can access the API using the token.
	On success, the newly added context is automatically used. Use the "context use" command, to switch contexts.
	`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		token, _ := cmd.Flags().GetString("token")

		if token == "" {
			r := bufio.NewReader(os.Stdin)
			for token == "" {
				fmt.Printf("Token: ")
				t, err := r.ReadString('\n')
				if err != nil {
					return err
				}
				token = strings.TrimSpace(t)
			}
		}

		// test connection
		client := hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("kubefleet", version))
		if _, err := client.Server.All(AppConf.Context); err != nil {
			return errors.Wrap(err, "the token could not be verified")
		}

		AppConf.Config.AddContext(HetznerContext{Name: name, Token: token})
		if err := AppConf.SwitchContextByName(name); err != nil {
			return err
		}
		if err := AppConf.Config.WriteCurrentConfig(); err != nil {
			return err
		}
		fmt.Printf("added context '%s'\n", name)
		return nil
	},
}

func init() {
	contextCmd.AddCommand(addCmd)

	addCmd.Flags().StringP("token", "t", "", "token of the context")
}
