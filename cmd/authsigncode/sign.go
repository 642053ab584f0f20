package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saferwall/authsigncode/authcode"
	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/credentials"
	"github.com/saferwall/authsigncode/signer"
	"github.com/saferwall/authsigncode/timestamp"
)

var signFlags struct {
	spc, key, pkcs12, pvk, pass string
	digest, description, infoURL, jp string
	commercial bool
	legacyTS, rfc3161TS, proxy string
	in, out string
}

var signCmd = &cobra.Command{
	Use:   "sign [-in] IN [-out] OUT",
	Short: "Authenticode-sign a PE, CAB or MSI file",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)

	f := signCmd.Flags()
	f.StringVar(&signFlags.spc, "spc", "", "SPC certificate file (paired with -key or -pvk)")
	f.StringVar(&signFlags.key, "key", "", "PEM/DER private key file (paired with -spc)")
	f.StringVar(&signFlags.pkcs12, "pkcs12", "", "PKCS#12 bundle holding the key and certificate chain")
	f.StringVar(&signFlags.pvk, "pvk", "", "Microsoft PVK private key file (paired with -spc)")
	f.StringVar(&signFlags.pass, "pass", "", "password for -pkcs12/-pvk/-key")
	f.StringVar(&signFlags.digest, "h", "", "digest algorithm: md5, sha1 (default), sha2")
	f.StringVar(&signFlags.description, "n", "", "program description (SpcSpOpusInfo)")
	f.StringVar(&signFlags.infoURL, "i", "", "more-info URL (SpcSpOpusInfo)")
	f.StringVar(&signFlags.jp, "jp", "", "MS-Java attribute level; only \"low\" is supported")
	f.BoolVar(&signFlags.commercial, "comm", false, "use the commercial SpcStatementType OID")
	f.StringVar(&signFlags.legacyTS, "t", "", "legacy Authenticode timestamp URL")
	f.StringVar(&signFlags.rfc3161TS, "ts", "", "RFC 3161 timestamp URL")
	f.StringVar(&signFlags.proxy, "p", "", "proxy for -t/-ts, http: or socks: prefixed")
	f.StringVar(&signFlags.in, "in", "", "input file (or first positional argument)")
	f.StringVar(&signFlags.out, "out", "", "output file (or second positional argument)")
}

func runSign(cmd *cobra.Command, args []string) error {
	in, out, err := resolveInOut(signFlags.in, signFlags.out, args)
	if err != nil {
		return authcode.NewError(authcode.InvalidArgs, err)
	}

	if signFlags.legacyTS != "" && signFlags.rfc3161TS != "" {
		return authcode.NewError(authcode.InvalidArgs, fmt.Errorf("-t and -ts are mutually exclusive"))
	}
	if signFlags.jp != "" && signFlags.jp != "low" {
		return authcode.NewError(authcode.UnsupportedFeature, fmt.Errorf("-jp %q: only \"low\" is supported", signFlags.jp))
	}

	alg, err := authenticode.ParseDigestAlgorithm(signFlags.digest)
	if err != nil {
		return authcode.NewError(authcode.InvalidArgs, err)
	}

	cred, err := loadCredential()
	if err != nil {
		return authcode.NewError(authcode.CredentialLoad, err)
	}

	opts := authcode.Options{
		Algorithm: alg,
		Signer:    cred,
		SignerOptions: signer.Options{
			ProgramName: signFlags.description,
			MoreInfoURL: signFlags.infoURL,
			Commercial:  signFlags.commercial,
			JavaLow:     signFlags.jp == "low",
		},
		Timestamper: timestamp.New(signFlags.legacyTS, signFlags.rfc3161TS, signFlags.proxy),
	}

	return authcode.Sign(in, out, opts)
}

func loadCredential() (*credentials.Credential, error) {
	switch {
	case signFlags.pkcs12 != "":
		return credentials.LoadPKCS12(signFlags.pkcs12, signFlags.pass, nil)
	case signFlags.spc != "" && signFlags.pvk != "":
		return credentials.LoadSPCPVK(signFlags.spc, signFlags.pvk, signFlags.pass, nil)
	case signFlags.spc != "" && signFlags.key != "":
		return credentials.LoadSPCKey(signFlags.spc, signFlags.key, signFlags.pass, nil)
	default:
		return nil, fmt.Errorf("sign requires either -pkcs12, or -spc with -key or -pvk")
	}
}

// resolveInOut accepts either the -in/-out flag form or positional
// arguments, matching the tool's "[-in] IN [-out] OUT" syntax.
func resolveInOut(inFlag, outFlag string, args []string) (in, out string, err error) {
	in, out = inFlag, outFlag
	for _, a := range args {
		switch {
		case in == "":
			in = a
		case out == "":
			out = a
		default:
			return "", "", fmt.Errorf("too many positional arguments")
		}
	}
	if in == "" {
		return "", "", fmt.Errorf("missing input file")
	}
	if out == "" {
		return "", "", fmt.Errorf("missing output file")
	}
	return in, out, nil
}
