package commands

import (
	"github.com/spf13/cobra"

	"keytrust/internal/app"
	"keytrust/internal/domain"
)

var (
	home       string
	selfUserID string

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "keytrust",
		Short: "Inspect and manage cross-signing trust state",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if selfUserID != "" {
				cfg.SelfUserID = domain.UserID(selfUserID)
			}
			wire, err = app.NewWire(cfg, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.keytrust)")
	root.PersistentFlags().StringVar(&selfUserID, "user", "", "local user id, e.g. @me:example.org")

	root.AddCommand(statusCmd(), verifyCmd(), unverifyCmd(), blockCmd(), unblockCmd(), showCmd(), genDeviceCmd())
	return root.Execute()
}
