// Package signer assembles the Authenticode PKCS#7 SignedData structure:
// one SignerInfo bound to an end-entity certificate, the Authenticode-
// specific signed attributes, and the full SpcIndirectDataContent DER as
// the SignedData content (content type SPC_INDIRECT_DATA), with the
// messageDigest attribute computed over that content's inner bytes.
//
// The actual ASN.1 plumbing for the outer SignedData envelope is built by
// hand here (not delegated to go.mozilla.org/pkcs7, which this module uses
// only for parsing, the same way its teacher does) because Authenticode's
// messageDigest covers only the inner bytes of SpcIndirectDataContent, not
// the whole content; see DESIGN.md.
package signer

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/saferwall/authsigncode/authenticode"
)

// Signer is the injected signing abstraction: it yields a certificate
// chain and produces raw signatures over DER-encoded octets. A
// caller backed by a PKCS#12 bundle, an SPC/PVK pair, or a hardware token
// can all implement this without the core knowing the difference.
type Signer interface {
	// Certificate is the end-entity signing certificate.
	Certificate() *x509.Certificate
	// Chain is the remainder of the certificate chain, root-last.
	Chain() []*x509.Certificate
	// Sign returns a raw PKCS#1 v1.5 (or equivalent) signature over digest,
	// which was computed with hashAlg.
	Sign(digest []byte, hashAlg crypto.Hash) ([]byte, error)
}

// Options configures the Authenticode-specific signed attributes of §4.5.
type Options struct {
	// ProgramName and MoreInfoURL populate SpcSpOpusInfo. Either may be
	// empty; the attribute is omitted entirely when both are.
	ProgramName string
	MoreInfoURL string

	// Commercial selects the SpcStatementType OID: commercial when true,
	// individual (the default) otherwise.
	Commercial bool

	// JavaLow attaches the MS-Java descriptor attribute. Only meaningful
	// for CAB containers, and only the "low" level is supported.
	JavaLow bool
}

var errNoSigner = errors.New("signer: Signer returned a nil certificate")

// ASN.1 shapes for the outer PKCS#7 SignedData envelope. These mirror the
// well-known fullsailor/digitorus pkcs7 internal shapes (see
// other_examples' digitorus-pkcs7 sign.go), reproduced here so Build can
// set ContentInfo to the SpcIndirectDataContent directly.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type issuerAndSerial struct {
	IssuerName   asn1.RawValue
	SerialNumber *big.Int
}

type attribute struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type signerInfo struct {
	Version                   int `asn1:"default:1"`
	IssuerAndSerialNumber     issuerAndSerial
	DigestAlgorithm           pkix.AlgorithmIdentifier
	AuthenticatedAttributes   []attribute `asn1:"optional,tag:0"`
	DigestEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest           []byte
	UnauthenticatedAttributes []attribute `asn1:"optional,tag:1"`
}

type rawCertificates struct {
	Raw asn1.RawContent
}

type signedDataASN1 struct {
	Version                    int                        `asn1:"default:1"`
	DigestAlgorithmIdentifiers []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo                contentInfo
	Certificates               rawCertificates `asn1:"optional,tag:0"`
	SignerInfos                []signerInfo    `asn1:"set"`
}

type pkcs7Envelope struct {
	ContentType asn1.ObjectIdentifier
	Content     signedDataASN1 `asn1:"explicit,tag:0"`
}

// OIDData is id-data (1.2.840.113549.1.7.1), the content type PKCS#7
// SignedData normally carries. Build does not use it: it sets the
// SpcIndirectDataContent OID as the content type directly.
var OIDData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
var oidContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
var oidMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}

// Message wraps a fully-built (but not-yet-serialized) SignedData so the
// timestamp client can attach unauthenticated attributes and merge
// certificates before the final DER is produced.
type Message struct {
	env      pkcs7Envelope
	hashAlg  crypto.Hash
	digestOID asn1.ObjectIdentifier
}

// EncryptedDigest returns SignerInfos[0].EncryptedDigest, the raw signature
// value the timestamp authority is asked to countersign.
func (m *Message) EncryptedDigest() []byte {
	return m.env.Content.SignerInfos[0].EncryptedDigest
}

// HashAlg is the digest algorithm the message was signed with.
func (m *Message) HashAlg() crypto.Hash { return m.hashAlg }

// DigestOID is the ASN.1 object identifier of the digest algorithm the
// message was signed with, for building a fresh AlgorithmIdentifier (e.g.
// an RFC 3161 messageImprint) without re-deriving it from HashAlg.
func (m *Message) DigestOID() asn1.ObjectIdentifier { return m.digestOID }

// AddUnauthenticatedAttribute appends an unauthenticated attribute (e.g. a
// countersignature) to the first, and only, SignerInfo.
func (m *Message) AddUnauthenticatedAttribute(oid asn1.ObjectIdentifier, setContent []byte) {
	si := &m.env.Content.SignerInfos[0]
	si.UnauthenticatedAttributes = append(si.UnauthenticatedAttributes, attribute{
		Type:  oid,
		Value: asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: setContent},
	})
}

// AddCertificates merges additional raw certificate DER (e.g. from a
// timestamp authority's response) into the outer PKCS#7's certificate set.
func (m *Message) AddCertificates(certDER ...[]byte) error {
	raw := []byte(m.env.Content.Certificates.Raw)
	var existing asn1.RawValue
	if len(raw) > 0 {
		if _, err := asn1.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("signer: decode existing certificate set: %w", err)
		}
	}
	content := existing.Bytes
	for _, c := range certDER {
		content = append(content, c...)
	}
	wrapped, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: content})
	if err != nil {
		return err
	}
	m.env.Content.Certificates = rawCertificates{Raw: wrapped}
	return nil
}

// Marshal produces the final PKCS#7 DER.
func (m *Message) Marshal() ([]byte, error) {
	return asn1.Marshal(m.env)
}
