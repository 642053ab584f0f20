package main

import (
	"github.com/spf13/cobra"

	"github.com/saferwall/authsigncode/authcode"
)

var extractFlags struct{ in, out string }
var removeFlags struct{ in, out string }

var extractCmd = &cobra.Command{
	Use:   "extract-signature [-in] IN [-out] OUT",
	Short: "Write a signed PE file's raw PKCS#7 signature to OUT",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, out, err := resolveInOut(extractFlags.in, extractFlags.out, args)
		if err != nil {
			return authcode.NewError(authcode.InvalidArgs, err)
		}
		return authcode.Extract(in, out)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove-signature [-in] IN [-out] OUT",
	Short: "Write an unsigned copy of a signed PE file to OUT",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, out, err := resolveInOut(removeFlags.in, removeFlags.out, args)
		if err != nil {
			return authcode.NewError(authcode.InvalidArgs, err)
		}
		return authcode.Remove(in, out)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(removeCmd)

	extractCmd.Flags().StringVar(&extractFlags.in, "in", "", "input file (or first positional argument)")
	extractCmd.Flags().StringVar(&extractFlags.out, "out", "", "output file (or second positional argument)")
	removeCmd.Flags().StringVar(&removeFlags.in, "in", "", "input file (or first positional argument)")
	removeCmd.Flags().StringVar(&removeFlags.out, "out", "", "output file (or second positional argument)")
}
