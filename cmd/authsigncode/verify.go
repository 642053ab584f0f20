package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saferwall/authsigncode/authcode"
)

var verifyFlags struct{ in string }

var verifyCmd = &cobra.Command{
	Use:   "verify [-in] IN",
	Short: "Verify a PE file's Authenticode signature",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := verifyFlags.in
		if in == "" && len(args) == 1 {
			in = args[0]
		}
		if in == "" {
			return authcode.NewError(authcode.InvalidArgs, fmt.Errorf("missing input file"))
		}

		res, err := authcode.Verify(in)
		if !res.Signed {
			if err == nil {
				err = authcode.NewError(authcode.VerificationFailed, fmt.Errorf("%s: not signed", in))
			}
			return err
		}

		if res.Signer != nil {
			fmt.Printf("Signer: %s\n", res.Signer.Subject)
			fmt.Printf("Issuer: %s\n", res.Signer.Issuer)
		}
		if res.DigestMatches {
			fmt.Println("Message digest: ok")
		} else {
			fmt.Println("Message digest: MISMATCH")
		}
		if res.ChainTrusted {
			fmt.Println("Signature verification: ok")
		} else if res.DigestMatches {
			// The digest can still match even when the chain isn't trusted;
			// report both facts independently rather than short-circuiting
			// on the first failure.
			fmt.Println("Signature verification: ok (chain not verified)")
		} else {
			fmt.Println("Signature verification: failed")
		}
		if len(res.PageHashes) > 0 {
			fmt.Printf("Page hash algorithm: %s\n", res.PageHashOID)
			fmt.Printf("Page hash[0]: %s\n", hex.EncodeToString(firstN(res.PageHashes[0], 32)))
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyFlags.in, "in", "", "input file (or positional argument)")
}

func firstN(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
