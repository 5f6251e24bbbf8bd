package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	signingSecretBytes = 64
	encryptionKeyBytes = 32
)

func newGenKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-keys",
		Short: "Generate signing secrets and the token encryption key",
		Long: `Print fresh values for the three token secrets as environment assignments.

The signing secrets are hex encoded so they stay printable; the encryption key
is the base64 encoding of 32 random bytes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			access, err := randomBytes(signingSecretBytes)
			if err != nil {
				return err
			}
			refresh, err := randomBytes(signingSecretBytes)
			if err != nil {
				return err
			}
			key, err := randomBytes(encryptionKeyBytes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ADMINPANEL_SECURITY_JWTACCESSSECRET=%s\n", hex.EncodeToString(access))
			fmt.Fprintf(out, "ADMINPANEL_SECURITY_JWTREFRESHSECRET=%s\n", hex.EncodeToString(refresh))
			fmt.Fprintf(out, "ADMINPANEL_SECURITY_JWEENCRYPTIONKEY=%s\n", base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return buf, nil
}
