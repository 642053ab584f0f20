// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/signer"
)

// certEntryAlign is the byte alignment WIN_CERTIFICATE entries in the
// Certificate Table are padded to (Microsoft's Attribute Certificate
// Table layout).
const certEntryAlign = 8

// SignOptions configures (File).Sign.
type SignOptions struct {
	Algorithm     authenticode.DigestAlgorithm
	Signer        signer.Signer
	SignerOptions signer.Options

	// Timestamper, if set, is called with the built message before it is
	// serialized so a timestamp client can attach an unauthenticated
	// countersignature attribute. Kept decoupled from the pe package,
	// which does no networking of its own.
	Timestamper func(*signer.Message) error
}

// unsignedExtent returns the length of the file content that precedes any
// existing Certificate Table, i.e. the portion that is re-signed in place
// when a file is already signed. Dual-signing is not supported; re-signing
// replaces the previous signature.
func (pe *File) unsignedExtent() uint32 {
	if pe.HasCertificate {
		if loc, err := pe.parseLocations(); err == nil {
			if r, ok := loc["certtable"]; ok {
				return r.Start
			}
		}
	}
	return pe.size
}

// authenticodeDigestOf computes the Authenticode digest over the first n
// bytes of pe.data using alg, skipping the checksum field and the
// Certificate Table data-directory entry exactly as AuthentihashExt does,
// then zero-pads to the next certEntryAlign boundary — the padding
// AuthentihashExt omits because a file being verified never needs it (its
// Certificate Table already starts on an aligned offset); a file being
// signed for the first time generally does not end on one.
func (pe *File) authenticodeDigestOf(n uint32, alg authenticode.DigestAlgorithm) ([]byte, error) {
	loc, err := pe.parseLocations()
	if err != nil {
		return nil, err
	}

	type span struct{ start, length uint32 }
	var excluded []span
	for _, key := range []string{"checksum", "datadir_certtable"} {
		if r, ok := loc[key]; ok && r.Start < n {
			excluded = append(excluded, span{r.Start, r.Length})
		}
	}

	h := alg.New()
	pos := uint32(0)
	for _, e := range excluded {
		if e.start > pos {
			h.Write(pe.data[pos:e.start])
		}
		pos = e.start + e.length
	}
	if pos < n {
		h.Write(pe.data[pos:n])
	}

	if pad := (certEntryAlign - int(n%certEntryAlign)) % certEntryAlign; pad > 0 {
		h.Write(make([]byte, pad))
	}

	return h.Sum(nil), nil
}

// ChecksumBytes computes the PE checksum algorithm (CheckSumMappedFile) over
// an arbitrary output buffer. Generalizes (File).Checksum, which only
// operates on the File it parsed, to the freshly assembled output buffer
// Sign and Remove produce.
func ChecksumBytes(data []byte, checksumOffset uint32) uint32 {
	var checksum uint64
	const max uint64 = 0x100000000

	origLen := len(data)
	dataLen := uint32(len(data))
	if remainder := dataLen % 4; remainder != 0 {
		padded := make([]byte, dataLen+(4-remainder))
		copy(padded, data)
		data = padded
		dataLen = uint32(len(data))
	}

	for i := uint32(0); i < dataLen; i += 4 {
		if i == checksumOffset {
			continue
		}
		dword := binary.LittleEndian.Uint32(data[i:])
		checksum = (checksum & 0xffffffff) + uint64(dword) + (checksum >> 32)
		if checksum > max {
			checksum = (checksum & 0xffffffff) + (checksum >> 32)
		}
	}

	checksum = (checksum & 0xffff) + (checksum >> 16)
	checksum = checksum + (checksum >> 16)
	checksum = checksum & 0xffff
	checksum += uint64(origLen)
	return uint32(checksum)
}

// Sign produces a signed copy of the PE file this File was parsed from,
// written to outPath. Any existing signature is discarded and replaced;
// dual-signing is never performed.
func (pe *File) Sign(outPath string, opts SignOptions) (err error) {
	cert := opts.Signer.Certificate()
	if cert == nil {
		return fmt.Errorf("pe: sign: %w", errNoCertificate)
	}

	loc, err := pe.parseLocations()
	if err != nil {
		return fmt.Errorf("pe: sign: %w", err)
	}
	checksumRange, ok := loc["checksum"]
	if !ok {
		return fmt.Errorf("pe: sign: file has no checksum field location")
	}
	dirRange, ok := loc["datadir_certtable"]
	if !ok {
		return fmt.Errorf("pe: sign: file has no Certificate Table directory entry")
	}

	n := pe.unsignedExtent()
	digest, err := pe.authenticodeDigestOf(n, opts.Algorithm)
	if err != nil {
		return fmt.Errorf("pe: sign: compute digest: %w", err)
	}

	blob, err := authenticode.BuildIndirectData(authenticode.PE, opts.Algorithm, digest)
	if err != nil {
		return fmt.Errorf("pe: sign: %w", err)
	}

	msg, err := signer.Build(authenticode.PE, opts.Algorithm, blob, opts.Signer, opts.SignerOptions)
	if err != nil {
		return fmt.Errorf("pe: sign: %w", err)
	}

	if opts.Timestamper != nil {
		if err := opts.Timestamper(msg); err != nil {
			return fmt.Errorf("pe: sign: timestamp: %w", err)
		}
	}

	der, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("pe: sign: marshal signature: %w", err)
	}

	pad := (certEntryAlign - int(n%certEntryAlign)) % certEntryAlign
	certStart := n + uint32(pad)

	entryLen := uint32(8 + len(der))
	entryPad := (certEntryAlign - int(entryLen%certEntryAlign)) % certEntryAlign

	out := make([]byte, 0, certStart+entryLen+uint32(entryPad))
	out = append(out, pe.data[:n]...)
	out = append(out, make([]byte, pad)...)

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], entryLen+uint32(entryPad))
	binary.LittleEndian.PutUint16(header[4:6], WinCertRevision2_0)
	binary.LittleEndian.PutUint16(header[6:8], WinCertTypePKCSSignedData)
	out = append(out, header...)
	out = append(out, der...)
	out = append(out, make([]byte, entryPad)...)

	binary.LittleEndian.PutUint32(out[dirRange.Start:], certStart)
	binary.LittleEndian.PutUint32(out[dirRange.Start+4:], entryLen+uint32(entryPad))

	binary.LittleEndian.PutUint32(out[checksumRange.Start:], 0)
	checksum := ChecksumBytes(out, checksumRange.Start)
	binary.LittleEndian.PutUint32(out[checksumRange.Start:], checksum)

	return os.WriteFile(outPath, out, 0644)
}

var errNoCertificate = fmt.Errorf("signer returned no certificate")

// RemoveSignature strips any Certificate Table from the file, truncating it
// back to the unsigned extent, clearing the data-directory entry and
// recomputing the checksum.
func (pe *File) RemoveSignature(outPath string) error {
	loc, err := pe.parseLocations()
	if err != nil {
		return fmt.Errorf("pe: remove: %w", err)
	}
	checksumRange, ok := loc["checksum"]
	if !ok {
		return fmt.Errorf("pe: remove: file has no checksum field location")
	}
	dirRange, ok := loc["datadir_certtable"]
	if !ok {
		return fmt.Errorf("pe: remove: file has no Certificate Table directory entry")
	}
	if !pe.HasCertificate {
		return fmt.Errorf("pe: remove: file is not signed")
	}

	n := pe.unsignedExtent()
	out := append([]byte{}, pe.data[:n]...)
	binary.LittleEndian.PutUint32(out[dirRange.Start:], 0)
	binary.LittleEndian.PutUint32(out[dirRange.Start+4:], 0)
	binary.LittleEndian.PutUint32(out[checksumRange.Start:], 0)
	checksum := ChecksumBytes(out, checksumRange.Start)
	binary.LittleEndian.PutUint32(out[checksumRange.Start:], checksum)

	return os.WriteFile(outPath, out, 0644)
}

// ExtractSignature writes the raw PKCS#7 SignedData DER (the Certificate
// Table entry's content, not its WIN_CERTIFICATE header) to outPath.
func (pe *File) ExtractSignature(outPath string) error {
	if !pe.HasCertificate || len(pe.Certificates.Raw) == 0 {
		return fmt.Errorf("pe: extract: file has no Authenticode signature")
	}
	return os.WriteFile(outPath, pe.Certificates.Raw, 0644)
}

// VerifyResult is the outcome of VerifyAuthenticode.
type VerifyResult struct {
	Signed           bool
	ChainTrusted     bool
	DigestMatches    bool
	Signer           *x509.Certificate
	PageHashOID      string
	PageHashes       [][]byte
}

var errDigestMismatch = fmt.Errorf("authentihash does not match the signed digest")
var errNotSigned = fmt.Errorf("file has no Authenticode signature")

// VerifyAuthenticode reports whether the file's embedded signature is
// structurally valid, chains to a trusted root, and whether the recomputed
// Authentihash matches the signed digest. Unlike the reference
// implementation's verify_pe_file, which has a code path that returns
// success (a void function, so effectively "no error") even when the
// digests differ, this always reports a non-nil error on any digest
// mismatch.
func (pe *File) VerifyAuthenticode() (VerifyResult, error) {
	if !pe.HasCertificate {
		return VerifyResult{}, errNotSigned
	}

	res := VerifyResult{
		Signed:        true,
		ChainTrusted:  pe.Certificates.Verified,
		DigestMatches: pe.Certificates.SignatureValid,
	}
	if len(pe.Certificates.Content.Signers) > 0 {
		sn := pe.Certificates.Content.Signers[0].IssuerAndSerialNumber.SerialNumber
		for _, c := range pe.Certificates.Content.Certificates {
			if c.SerialNumber != nil && sn != nil && c.SerialNumber.Cmp(sn) == 0 {
				res.Signer = c
				break
			}
		}
	}

	res.PageHashOID, res.PageHashes = pe.extractPageHashes()

	if !res.DigestMatches {
		return res, errDigestMismatch
	}
	return res, nil
}

// extractPageHashes reports whether SpcIndirectDataContent.Data.Value.File
// (a moniker nested inside SpcPeImageData) carries a page-hash blob, a
// display-only feature grounded on original_source/osslsigncode.c's
// extract_page_hash/classid_page_hash. The moniker's SpcSerializedObject
// shape is a second ASN.1 CHOICE Go's encoding/asn1 cannot express, so this
// only scans the raw signed content for the well-known class id and
// algorithm OIDs rather than fully decoding it; full page-hash content is
// not reconstructed.
func (pe *File) extractPageHashes() (oidName string, hashes [][]byte) {
	raw := pe.Certificates.Content.Content
	if !bytes.Contains(raw, pe.classIDPageHashBytes()) {
		return "", nil
	}
	switch {
	case bytes.Contains(raw, mustMarshalOID(authenticode.OIDSpcPageHashesV2)):
		return "SHA256", nil
	case bytes.Contains(raw, mustMarshalOID(authenticode.OIDSpcPageHashesV1)):
		return "SHA1", nil
	default:
		return "present", nil
	}
}

func (pe *File) classIDPageHashBytes() []byte {
	return authenticode.ClassIDPageHash[:]
}

func mustMarshalOID(oid asn1.ObjectIdentifier) []byte {
	b, err := asn1.Marshal(oid)
	if err != nil {
		return nil
	}
	return b
}
