package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hetznercloud/hcloud-go/hcloud"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

// sshKeyAddCmd represents the sshKeyAdd command
var sshKeyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "adds a new SSH key to the Hetzner Cloud project and local configuration",
	Long: `This sub-command saves the path of the provided SSH private key in a configuration file on your local machine.
Then it uploads it corresponding public key with the provided name to the Hetzner Cloud project, associated by the current context.

Note: the private key is never uploaded to any server at any time.`,
	PreRunE: validateFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		publicKeyPath, _ := cmd.Flags().GetString("public-key-path")
		privateKeyPath, _ := cmd.Flags().GetString("private-key-path")

		privateKeyPath, err := homedir.Expand(privateKeyPath)
		if err != nil {
			return err
		}

		var data []byte
		if publicKeyPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			if publicKeyPath, err = homedir.Expand(publicKeyPath); err == nil {
				data, err = os.ReadFile(publicKeyPath)
			}
		}
		if err != nil {
			return err
		}

		sshKey, err := uploadSSHKey(name, data)
		if err != nil {
			return err
		}

		AppConf.Config.AddSSHKey(SSHKey{
			Name:           sshKey.Name,
			PrivateKeyPath: privateKeyPath,
			PublicKeyPath:  publicKeyPath,
		})
		if err := AppConf.Config.WriteCurrentConfig(); err != nil {
			return err
		}

		fmt.Printf("SSH key %s(%d) created\n", sshKey.Name, sshKey.ID)
		return nil
	},
}

// uploadSSHKey creates the key in the Hetzner Cloud project. If an equal key
// already exists there, that one is returned.
func uploadSSHKey(name string, publicKey []byte) (*hcloud.SSHKey, error) {
	ctx := AppConf.Context
	client := AppConf.Client

	sshKey, _, err := client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{Name: name, PublicKey: string(publicKey)})
	if err == nil {
		return sshKey, nil
	}
	if !hcloud.IsError(err, hcloud.ErrorCodeUniquenessError) {
		return nil, err
	}

	pkey, _, _, _, err := ssh.ParseAuthorizedKey(publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}

	sshKeys, err := client.SSHKey.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, sshKeyHetzner := range sshKeys {
		hetznerPkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(sshKeyHetzner.PublicKey))
		if err != nil {
			continue
		}
		if bytes.Equal(pkey.Marshal(), hetznerPkey.Marshal()) {
			AppConf.Logger.Infow("SSH key already exists on Hetzner Cloud", "name", sshKeyHetzner.Name)
			return sshKeyHetzner, nil
		}
	}
	return nil, fmt.Errorf("name '%s' is already taken", name)
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if err := AppConf.assertActiveContext(); err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		return errors.New("flag --name is required")
	}
	if idx, _ := AppConf.Config.FindSSHKeyByName(name); idx != -1 {
		return fmt.Errorf("SSH key '%s' already exists in your config", name)
	}

	privateKeyPath, _ := cmd.Flags().GetString("private-key-path")
	if privateKeyPath == "" {
		return errors.New("flag --private-key-path cannot be empty")
	}

	publicKeyPath, _ := cmd.Flags().GetString("public-key-path")
	if publicKeyPath == "" {
		return errors.New("flag --public-key-path cannot be empty")
	}

	for _, path := range []string{privateKeyPath, publicKeyPath} {
		if path == "-" {
			continue
		}
		expanded, err := homedir.Expand(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(expanded); os.IsNotExist(err) {
			return fmt.Errorf("could not find key '%s'", expanded)
		}
	}

	return nil
}

func init() {
	sshKeyCmd.AddCommand(sshKeyAddCmd)
	sshKeyAddCmd.Flags().StringP("name", "n", "", "the name of the key")
	sshKeyAddCmd.Flags().String("private-key-path", "~/.ssh/id_rsa", "the path to the private key")
	sshKeyAddCmd.Flags().String("public-key-path", "~/.ssh/id_rsa.pub", "the path to the public key, or - for stdin")
}
