package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openparcel/openparcel/reqbundle"
)

// newReqbundleCmd implements `opm reqbundle decode [ciphertext]`. The
// ciphertext comes from the first argument, or from stdin if omitted;
// the decryption secret comes from the OPENPARCEL_BUNDLE_SECRET
// environment variable so it never appears in shell history or a
// process listing.
func newReqbundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reqbundle",
		Short: "decode request bundles",
	}
	cmd.AddCommand(newReqbundleDecodeCmd())
	return cmd
}

func newReqbundleDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [ciphertext]",
		Short: "decrypt a request bundle and print its plaintext",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("OPENPARCEL_BUNDLE_SECRET")
			if secret == "" {
				return fmt.Errorf("opm reqbundle decode: OPENPARCEL_BUNDLE_SECRET is not set")
			}

			var input string
			if len(args) == 1 {
				input = args[0]
			} else {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("opm reqbundle decode: read stdin: %w", err)
				}
				input = string(raw)
			}

			plaintext, err := reqbundle.Decode(input, secret)
			if err != nil {
				return fmt.Errorf("opm reqbundle decode: %w", err)
			}
			fmt.Println(string(plaintext))
			return nil
		},
	}
}
