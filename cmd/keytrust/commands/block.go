package commands

import (
	"github.com/spf13/cobra"
)

func blockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <user-id> <key-id>",
		Short: "Block a key from receiving encrypted payloads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lookupKey(args[0], args[1])
			if err != nil {
				return err
			}
			return key.SetBlocked(true)
		},
	}
}

func unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <user-id> <key-id>",
		Short: "Clear a key's block flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lookupKey(args[0], args[1])
			if err != nil {
				return err
			}
			return key.SetBlocked(false)
		},
	}
}
