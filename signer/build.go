package signer

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/saferwall/authsigncode/authenticode"
)

// rsaEncryptionOID is used for SignerInfo.DigestEncryptionAlgorithm
// regardless of the chosen hash, matching Authenticode's convention of
// keeping the digest and encryption algorithm identifiers separate rather
// than using a combined "shaWithRSAEncryption" OID.
var rsaEncryptionOID = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}

// Build assembles a Message: a PKCS#7 SignedData whose content is already
// the final SpcIndirectDataContent and whose single SignerInfo carries the
// Authenticode signed attributes.
func Build(kind authenticode.ContainerKind, alg authenticode.DigestAlgorithm, blob authenticode.Blob, s Signer, opts Options) (*Message, error) {
	cert := s.Certificate()
	if cert == nil {
		return nil, errNoSigner
	}

	attrs, err := signedAttributes(kind, alg, blob.Content, opts)
	if err != nil {
		return nil, fmt.Errorf("signer: build signed attributes: %w", err)
	}

	attrSetDER, err := marshalAttributeSet(attrs)
	if err != nil {
		return nil, fmt.Errorf("signer: marshal signed attributes: %w", err)
	}

	h := alg.New()
	h.Write(attrSetDER)
	attrDigest := h.Sum(nil)

	sig, err := s.Sign(attrDigest, alg.Hash())
	if err != nil {
		return nil, fmt.Errorf("signer: sign attributes: %w", err)
	}

	si := signerInfo{
		Version: 1,
		IssuerAndSerialNumber: issuerAndSerial{
			IssuerName:   asn1.RawValue{FullBytes: cert.RawIssuer},
			SerialNumber: new(big.Int).Set(cert.SerialNumber),
		},
		DigestAlgorithm:           pkix.AlgorithmIdentifier{Algorithm: alg.OID(), Parameters: asn1.NullRawValue},
		AuthenticatedAttributes:   attrs,
		DigestEncryptionAlgorithm: pkix.AlgorithmIdentifier{Algorithm: rsaEncryptionOID, Parameters: asn1.NullRawValue},
		EncryptedDigest:           sig,
	}

	certDER, err := marshalCertSet(cert, s.Chain())
	if err != nil {
		return nil, err
	}

	env := pkcs7Envelope{
		ContentType: oidSignedData,
		Content: signedDataASN1{
			Version:                    1,
			DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{{Algorithm: alg.OID(), Parameters: asn1.NullRawValue}},
			ContentInfo: contentInfo{
				ContentType: authenticode.OIDSpcIndirectDataContent,
				Content:     asn1.RawValue{FullBytes: blob.DER},
			},
			Certificates: rawCertificates{Raw: certDER},
			SignerInfos:  []signerInfo{si},
		},
	}

	return &Message{env: env, hashAlg: alg.Hash(), digestOID: alg.OID()}, nil
}

func signedAttributes(kind authenticode.ContainerKind, alg authenticode.DigestAlgorithm, content []byte, opts Options) ([]attribute, error) {
	h := alg.New()
	h.Write(content)
	contentDigest := h.Sum(nil)

	contentTypeVal, err := asn1.Marshal(authenticode.OIDSpcIndirectDataContent)
	if err != nil {
		return nil, err
	}
	digestVal, err := asn1.Marshal(contentDigest)
	if err != nil {
		return nil, err
	}

	attrs := []attribute{
		{Type: oidContentType, Value: setOf(contentTypeVal)},
		{Type: oidMessageDigest, Value: setOf(digestVal)},
	}

	statement := authenticode.StatementTypeIndividual
	if opts.Commercial {
		statement = authenticode.StatementTypeCommercial
	}
	attrs = append(attrs, attribute{Type: authenticode.OIDSpcStatementType, Value: setOf(statement)})

	if opts.ProgramName != "" || opts.MoreInfoURL != "" {
		opus := authenticode.BuildOpusInfo(opts.ProgramName, opts.MoreInfoURL)
		attrs = append(attrs, attribute{Type: authenticode.OIDSpcSpOpusInfo, Value: setOf(opus)})
	}

	if opts.JavaLow && kind == authenticode.CAB {
		attrs = append(attrs, attribute{Type: authenticode.OIDSpcMsJavaSomething, Value: setOf(authenticode.JavaAttributesLow)})
	}

	return attrs, nil
}

func setOf(der []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: der}
}

// marshalAttributeSet produces the DER encoding of `SET OF Attribute`, the
// exact bytes PKCS#7 digests for the signed-attributes hash — distinct from
// the `[0] IMPLICIT` encoding used when the same attributes are embedded in
// SignerInfo. Grounded on the equivalent helper in digitorus/pkcs7's
// sign.go (see other_examples).
func marshalAttributeSet(attrs []attribute) ([]byte, error) {
	encoded, err := asn1.Marshal(struct {
		A []attribute `asn1:"set"`
	}{A: attrs})
	if err != nil {
		return nil, err
	}
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(encoded, &raw); err != nil {
		return nil, err
	}
	return raw.Bytes, nil
}

func marshalCertSet(cert *x509.Certificate, chain []*x509.Certificate) ([]byte, error) {
	var content []byte
	content = append(content, cert.Raw...)
	for _, c := range chain {
		content = append(content, c.Raw...)
	}
	return asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: content})
}
