package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keytrust/internal/crypto"
)

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id> <key-id>",
		Short: "Print a key's canonical signing payload and fingerprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lookupKey(args[0], args[1])
			if err != nil {
				return err
			}
			payload, err := key.SigningContent()
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", payload)
			if pub, ok := key.Ed25519Key(); ok {
				fmt.Printf("ed25519 fingerprint: %s\n", crypto.Fingerprint([]byte(pub)))
			}
			fmt.Printf("valid=%v verified=%v signed=%v\n", key.IsValid(), key.Verified(), key.Signed())
			return nil
		},
	}
}
