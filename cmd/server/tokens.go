package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"slguard/pkg/crypto"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [TOKEN]",
		Short: "Print a bcrypt hash for API_TOKEN_HASH (generates a token if none given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				buf := make([]byte, 24)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				token = hex.EncodeToString(buf)
				fmt.Fprintf(cmd.OutOrStdout(), "token: %s\n", token)
			}

			hash, err := crypto.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API_TOKEN_HASH=%s\n", hash)
			return nil
		},
	}
}

func newEncryptTokenCmd() *cobra.Command {
	var (
		key         string
		generateKey bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt-token TOKEN",
		Short: "Encrypt the broker token for BROKER_TOKEN_ENCRYPTED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if generateKey {
				k, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				key = k
				fmt.Fprintf(out, "ENCRYPTION_KEY=%s\n", key)
			}
			if key == "" {
				return fmt.Errorf("ENCRYPTION_KEY is not set, pass --key or --generate-key")
			}

			raw, err := crypto.ParseKey(key)
			if err != nil {
				return err
			}
			enc, err := crypto.Encrypt(args[0], raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "BROKER_TOKEN_ENCRYPTED=%s\n", enc)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", os.Getenv("ENCRYPTION_KEY"), "base64 AES-256 key")
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "generate a new key and print it")
	return cmd
}
