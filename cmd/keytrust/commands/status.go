package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"keytrust/internal/domain"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show the trust rollup and per-key state of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.UserID(args[0])
			bundle, ok := wire.Directory.Bundle(user)
			if !ok {
				return errors.Wrapf(domain.ErrUnknownUser, "%s", user)
			}

			fmt.Printf("%s: %s", user, bundle.Verified())
			if bundle.Outdated() {
				fmt.Print(" (outdated)")
			}
			fmt.Println()

			for _, ck := range bundle.CrossSigningKeys() {
				fmt.Printf("  cross-signing %-12v %s  verified=%v blocked=%v\n",
					ck.Usage(), ck.PublicKey(), ck.Verified(), ck.Blocked())
			}
			for _, dk := range bundle.Devices() {
				name := dk.DisplayName()
				if name != "" {
					name = " (" + name + ")"
				}
				fmt.Printf("  device %s%s  verified=%v blocked=%v encrypt=%v\n",
					dk.DeviceID(), name, dk.Verified(), dk.Blocked(), dk.EncryptToDevice())
			}
			return nil
		},
	}
}
