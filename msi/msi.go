// Package msi treats an MSI installer as an OLE compound document,
// decoding its obfuscated stream names for display, sorting them into
// the canonical digest order, and
// inserting a `\005DigitalSignature` stream holding the Authenticode
// PKCS#7. Grounded on original_source/osslsigncode.c's msi_decode/msi_cmp
// and its gsf_infile_msole/gsf_outfile_msole call sequence, reimplemented
// here over internal/ole instead of libgsf.
package msi

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/internal/ole"
	"github.com/saferwall/authsigncode/signer"
)

// digitalSignatureStream is the well-known MSI stream name holding the
// Authenticode signature, unobfuscated.
const digitalSignatureStream = "\x05DigitalSignature"

var msiBase64Alphabet = func() []byte {
	var b []byte
	for c := '0'; c <= '9'; c++ {
		b = append(b, byte(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		b = append(b, byte(c))
	}
	for c := 'a'; c <= 'z'; c++ {
		b = append(b, byte(c))
	}
	b = append(b, '.')
	return b
}()

func base64Decode(x byte) byte {
	if int(x) < len(msiBase64Alphabet) {
		return msiBase64Alphabet[x]
	}
	return 1
}

// DecodeName converts an MSI-obfuscated stream name to its display form.
func DecodeName(name string) string {
	in := []byte(name)
	if len(in) >= 3 && in[0] == 0xe4 && in[1] == 0xa1 && in[2] == 0x80 {
		in = in[3:]
	}
	var out []byte
	for i := 0; i < len(in); {
		ch := in[i]
		switch {
		case i+2 < len(in) && ((ch == 0xe3 && in[i+1] >= 0xa0) || (ch == 0xe4 && in[i+1] < 0xa0)):
			out = append(out, base64Decode(in[i+2]&0x7f), base64Decode(in[i+1]^0xa0))
			i += 3
		case i+2 < len(in) && ch == 0xe4 && in[i+1] == 0xa0:
			out = append(out, base64Decode(in[i+2]&0x7f))
			i += 3
		default:
			n := 1
			switch {
			case ch >= 0xf0:
				n = 4
			case ch >= 0xe0:
				n = 3
			case ch >= 0xc1:
				n = 2
			}
			if i+n > len(in) {
				n = len(in) - i
			}
			out = append(out, in[i:i+n]...)
			i += n
		}
	}
	return string(out)
}

// CompareNames implements the canonical sort comparator: a lexicographic
// comparison of each name's UTF-16LE encoding truncated to the shorter
// length, with the longer name winning ties. This operates on
// the raw (still obfuscated) stream name, matching original_source's
// msi_cmp, which never calls msi_decode before comparing.
func CompareNames(a, b string) int {
	ua, ub := utf16le(a), utf16le(b)
	n := len(ua)
	if len(ub) < n {
		n = len(ub)
	}
	for i := 0; i < n; i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) > len(ub):
		return 1
	case len(ua) < len(ub):
		return -1
	default:
		return 0
	}
}

func utf16le(s string) []byte {
	runes := []rune(s)
	out := make([]byte, 0, len(runes)*2)
	for _, r := range runes {
		if r > 0xFFFF {
			r1, r2 := utf16Surrogates(r)
			out = binary.LittleEndian.AppendUint16(out, r1)
			out = binary.LittleEndian.AppendUint16(out, r2)
			continue
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(r))
	}
	return out
}

func utf16Surrogates(r rune) (uint16, uint16) {
	r -= 0x10000
	return uint16(0xD800 + (r >> 10)), uint16(0xDC00 + (r & 0x3FF))
}

// SignOptions configures Sign.
type SignOptions struct {
	Algorithm     authenticode.DigestAlgorithm
	Signer        signer.Signer
	SignerOptions signer.Options
	Timestamper   func(*signer.Message) error
}

// Sign reads the MSI compound document at inPath, digests its preserved
// streams in canonical order followed by the root class id, builds an
// Authenticode signature over that digest, and writes the signed document
// to outPath with a fresh `\005DigitalSignature` stream.
func Sign(inPath, outPath string, opts SignOptions) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("msi: sign: %w", err)
	}

	doc, err := ole.Parse(data)
	if err != nil {
		return fmt.Errorf("msi: sign: %w", err)
	}

	preserved := make([]ole.Stream, 0, len(doc.Streams))
	for _, s := range doc.Streams {
		if s.Name == digitalSignatureStream {
			continue
		}
		preserved = append(preserved, s)
	}
	sortStreams(preserved)

	h := opts.Algorithm.New()
	for _, s := range preserved {
		h.Write(s.Data)
	}
	h.Write(doc.ClassID[:])
	digest := h.Sum(nil)

	blob, err := authenticode.BuildIndirectData(authenticode.MSI, opts.Algorithm, digest)
	if err != nil {
		return fmt.Errorf("msi: sign: %w", err)
	}
	msg, err := signer.Build(authenticode.MSI, opts.Algorithm, blob, opts.Signer, opts.SignerOptions)
	if err != nil {
		return fmt.Errorf("msi: sign: %w", err)
	}
	if opts.Timestamper != nil {
		if err := opts.Timestamper(msg); err != nil {
			return fmt.Errorf("msi: sign: timestamp: %w", err)
		}
	}
	der, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("msi: sign: marshal signature: %w", err)
	}

	out := append(preserved, ole.Stream{Name: digitalSignatureStream, Data: der})
	outBytes, err := ole.Write(doc.ClassID, out)
	if err != nil {
		return fmt.Errorf("msi: sign: %w", err)
	}

	return os.WriteFile(outPath, outBytes, 0644)
}

func sortStreams(s []ole.Stream) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && CompareNames(s[j-1].Name, s[j].Name) > 0; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
