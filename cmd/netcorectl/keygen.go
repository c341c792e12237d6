package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/danmuck/netcore/internal/protocol/security"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var force, salt bool

	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Create a key file for payload encryption and signing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if salt {
				b := make([]byte, 16)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				fmt.Fprintf(out, "salt: %s\n", base64.StdEncoding.EncodeToString(b))
			}
			path := args[0]
			if force {
				keys, err := security.GenerateKeys()
				if err != nil {
					return err
				}
				if err := security.WriteKeyFile(path, keys); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", path)
				return nil
			}
			_, created, err := security.LoadOrCreateKeyFile(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(out, "wrote %s\n", path)
			} else {
				fmt.Fprintf(out, "%s already holds valid keys\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing key file")
	cmd.Flags().BoolVar(&salt, "salt", false, "also print a random salt for passphrase mode")
	return cmd
}
