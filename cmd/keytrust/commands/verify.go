package commands

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"keytrust/internal/domain"
	"keytrust/internal/trust"
)

// lookupKey resolves a key by user id and identifier through the directory.
func lookupKey(userID, keyID string) (trust.Key, error) {
	key := wire.Directory.GetKey(domain.UserID(userID), keyID)
	if key == nil {
		return nil, errors.Errorf("no key %q for user %s", keyID, userID)
	}
	return key, nil
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id> <key-id>",
		Short: "Mark a key as directly verified",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lookupKey(args[0], args[1])
			if err != nil {
				return err
			}
			return key.SetVerified(true)
		},
	}
}

func unverifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unverify <user-id> <key-id>",
		Short: "Clear a key's directly verified flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lookupKey(args[0], args[1])
			if err != nil {
				return err
			}
			return key.SetVerified(false)
		},
	}
}
