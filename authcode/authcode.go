// Package authcode is the top-level orchestrator: it detects a file's
// container family, dispatches Sign/Extract/Remove/Verify to the matching
// handler package, and enforces the cleanup contract that the output file
// is removed on any failure.
package authcode

import (
	"bytes"
	"fmt"
	"os"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/cab"
	"github.com/saferwall/authsigncode/internal/ole"
	"github.com/saferwall/authsigncode/msi"
	"github.com/saferwall/authsigncode/pe"
	"github.com/saferwall/authsigncode/signer"
)

// FileType identifies which container handler owns a file.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypePE
	FileTypeCAB
	FileTypeMSI
)

func (t FileType) String() string {
	switch t {
	case FileTypePE:
		return "PE"
	case FileTypeCAB:
		return "CAB"
	case FileTypeMSI:
		return "MSI"
	default:
		return "unknown"
	}
}

// DetectFileType sniffs the magic bytes identifying each container: "MZ"
// for PE, "MSCF" for CAB, and the OLE compound-document signature for MSI.
func DetectFileType(data []byte) FileType {
	switch {
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		return FileTypePE
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("MSCF")):
		return FileTypeCAB
	case len(data) >= 8 && bytes.Equal(data[0:8], ole.Signature[:]):
		return FileTypeMSI
	default:
		return FileTypeUnknown
	}
}

// Options configures a sign operation.
type Options struct {
	Algorithm     authenticode.DigestAlgorithm
	Signer        signer.Signer
	SignerOptions signer.Options
	Timestamper   func(*signer.Message) error
}

// Sign detects inPath's container type and writes a signed copy to outPath.
// CAB and MSI only support Sign — the reference tool itself restricts
// extract-signature/remove-signature/verify to PE files.
func Sign(inPath, outPath string, opts Options) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return NewError(IoOpen, fmt.Errorf("authcode: open %s: %w", inPath, err))
	}

	switch DetectFileType(data) {
	case FileTypePE:
		f, err := pe.New(inPath, &pe.Options{Fast: true})
		if err != nil {
			return NewError(CorruptContainer, fmt.Errorf("authcode: parse pe: %w", err))
		}
		defer f.Close()
		if err := f.Parse(); err != nil {
			return NewError(CorruptContainer, fmt.Errorf("authcode: parse pe: %w", err))
		}
		if err := f.Sign(outPath, pe.SignOptions(opts)); err != nil {
			os.Remove(outPath)
			return NewError(SigningFailed, err)
		}
		return nil

	case FileTypeCAB:
		if err := cab.Sign(inPath, outPath, cab.SignOptions(opts)); err != nil {
			os.Remove(outPath)
			return NewError(SigningFailed, err)
		}
		return nil

	case FileTypeMSI:
		if err := msi.Sign(inPath, outPath, msi.SignOptions(opts)); err != nil {
			os.Remove(outPath)
			return NewError(SigningFailed, err)
		}
		return nil

	default:
		return NewError(UnrecognizedFormat, fmt.Errorf("authcode: %s: unrecognized container format", inPath))
	}
}

// requirePE enforces the "command not supported for non-PE files"
// restriction for extract-signature, remove-signature and verify.
func requirePE(inPath string) (*pe.File, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, NewError(IoOpen, fmt.Errorf("authcode: open %s: %w", inPath, err))
	}
	if DetectFileType(data) != FileTypePE {
		return nil, NewError(UnsupportedFeature, fmt.Errorf("authcode: %s: command only supported for PE files", inPath))
	}
	f, err := pe.New(inPath, &pe.Options{Fast: true})
	if err != nil {
		return nil, NewError(CorruptContainer, fmt.Errorf("authcode: parse pe: %w", err))
	}
	if err := f.Parse(); err != nil {
		f.Close()
		return nil, NewError(CorruptContainer, fmt.Errorf("authcode: parse pe: %w", err))
	}
	return f, nil
}

// Extract writes the raw PKCS#7 DER embedded in a signed PE file to outPath.
func Extract(inPath, outPath string) error {
	f, err := requirePE(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.ExtractSignature(outPath); err != nil {
		os.Remove(outPath)
		return NewError(SigningFailed, fmt.Errorf("authcode: extract: %w", err))
	}
	return nil
}

// Remove strips a PE file's Authenticode signature and writes the
// unsigned result to outPath.
func Remove(inPath, outPath string) error {
	f, err := requirePE(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.RemoveSignature(outPath); err != nil {
		os.Remove(outPath)
		return NewError(SigningFailed, fmt.Errorf("authcode: remove: %w", err))
	}
	return nil
}

// Verify checks a signed PE file's Authenticode signature and Authentihash.
func Verify(inPath string) (pe.VerifyResult, error) {
	f, err := requirePE(inPath)
	if err != nil {
		return pe.VerifyResult{}, err
	}
	defer f.Close()

	res, err := f.VerifyAuthenticode()
	if err != nil {
		return res, NewError(VerificationFailed, err)
	}
	return res, nil
}
