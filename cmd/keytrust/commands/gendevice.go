package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"keytrust/internal/canonical"
	"keytrust/internal/crypto"
	"keytrust/internal/domain"
)

// genDeviceCmd creates a fresh self-signed device key record and stores it.
// Useful for fixtures and for exercising the trust pipeline locally.
func genDeviceCmd() *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "gen-device <user-id>",
		Short: "Generate and store a self-signed device key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := domain.UserID(args[0])

			edPriv, edPub, err := crypto.GenerateEd25519()
			if err != nil {
				return err
			}
			_, curvePub, err := crypto.GenerateX25519()
			if err != nil {
				return err
			}

			content := map[string]any{
				"user_id":    string(user),
				"device_id":  deviceID,
				"algorithms": []string{"m.olm.v1.curve25519-aes-sha2", "m.megolm.v1.aes-sha2"},
				"keys": map[string]string{
					domain.FullKeyID(domain.AlgorithmEd25519, deviceID):    base64.RawStdEncoding.EncodeToString(edPub),
					domain.FullKeyID(domain.AlgorithmCurve25519, deviceID): base64.RawStdEncoding.EncodeToString(curvePub[:]),
				},
			}
			raw, err := json.Marshal(content)
			if err != nil {
				return err
			}
			payload, err := canonical.SigningPayload(raw)
			if err != nil {
				return err
			}
			sig := crypto.SignEd25519(edPriv, payload)
			content["signatures"] = map[string]map[string]string{
				string(user): {
					domain.FullKeyID(domain.AlgorithmEd25519, deviceID): base64.RawStdEncoding.EncodeToString(sig),
				},
			}
			raw, err = json.Marshal(content)
			if err != nil {
				return err
			}

			rec := domain.DeviceKeyRecord{UserID: user, DeviceID: domain.DeviceID(deviceID), Content: raw}
			if err := wire.Store.SaveDeviceKey(rec); err != nil {
				return err
			}
			if _, ok, err := wire.Store.User(user); err != nil {
				return err
			} else if !ok {
				if err := wire.Store.SaveUser(domain.UserRecord{UserID: user}); err != nil {
					return err
				}
			}
			if err := wire.Directory.LoadUser(user); err != nil {
				return err
			}

			fmt.Printf("device %s stored for %s\n", deviceID, user)
			fmt.Printf("ed25519: %s\n", base64.RawStdEncoding.EncodeToString(edPub))
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device-id", "KEYTRUST01", "device id for the new key")
	return cmd
}
