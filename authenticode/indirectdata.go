package authenticode

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// ContainerKind selects which per-container "data" shape is embedded inside
// SpcIndirectDataContent.
type ContainerKind int

const (
	PE ContainerKind = iota
	CAB
	MSI
)

func (k ContainerKind) String() string {
	switch k {
	case PE:
		return "PE"
	case CAB:
		return "CAB"
	case MSI:
		return "MSI"
	default:
		return "unknown"
	}
}

// oid returns the inner data object identifier for this container kind.
func (k ContainerKind) oid() asn1.ObjectIdentifier {
	switch k {
	case PE:
		return OIDSpcPEImageData
	case CAB:
		return OIDSpcCabData
	case MSI:
		return OIDSpcSipInfo
	default:
		panic("authenticode: unknown container kind")
	}
}

// msiSipInfo mirrors osslsigncode's SpcSipinfo{a=1, string=<marker>, b..f=0}.
// It has no ASN.1 CHOICE in it, so encoding/asn1's struct marshaler handles
// it directly.
type msiSipInfo struct {
	A      int
	String []byte
	B, C, D, E, F int
}

// msiClassMarker is the fixed 16-byte value osslsigncode embeds as the
// SpcSipinfo.string field for MSI installers.
var msiClassMarker = []byte{
	0xf1, 0x10, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xc0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46,
}

func innerData(kind ContainerKind) ([]byte, error) {
	switch kind {
	case PE:
		return spcPeImageData(), nil
	case CAB:
		return obsoleteSpcLink(), nil
	case MSI:
		return asn1.Marshal(msiSipInfo{A: 1, String: msiClassMarker})
	default:
		return nil, fmt.Errorf("authenticode: unknown container kind %d", kind)
	}
}

// Blob is a built SpcIndirectDataContent: DER is the complete,
// self-contained ASN.1 SEQUENCE; Content is the same bytes with the outer
// SEQUENCE tag+length header stripped, i.e. exactly what PKCS#7 signs as its
// authenticated content (the defining Authenticode trick).
type Blob struct {
	DER     []byte
	Content []byte
	Digest  []byte
}

// BuildIndirectData assembles SpcIndirectDataContent{data, messageDigest}
// for the given container kind with the already-computed Authenticode
// digest. Unlike the reference implementation, which encodes a zero-filled
// digest first purely to discover the outer SEQUENCE header length before a
// second, final encode, this builder already knows the digest before it
// ever touches ASN.1, so one encode suffices; the outer header is simply
// stripped off the single result, which is an
// equally acceptable analytic derivation.
func BuildIndirectData(kind ContainerKind, alg DigestAlgorithm, digest []byte) (Blob, error) {
	if len(digest) != alg.Size() {
		return Blob{}, fmt.Errorf("authenticode: digest length %d does not match %s size %d", len(digest), alg, alg.Size())
	}

	data, err := innerData(kind)
	if err != nil {
		return Blob{}, err
	}

	oidBytes, err := asn1.Marshal(kind.oid())
	if err != nil {
		return Blob{}, err
	}
	dataAttr := sequence(oidBytes, data)

	algID, err := asn1.Marshal(pkix.AlgorithmIdentifier{
		Algorithm:  alg.OID(),
		Parameters: asn1.NullRawValue,
	})
	if err != nil {
		return Blob{}, err
	}
	digestOctets, err := asn1.Marshal(digest)
	if err != nil {
		return Blob{}, err
	}
	messageDigest := sequence(algID, digestOctets)

	content := append(append([]byte{}, dataAttr...), messageDigest...)
	der := sequence(content)

	return Blob{DER: der, Content: content, Digest: digest}, nil
}

// IndirectData is the parsed, read-only view of a verified
// SpcIndirectDataContent, used by the verifier.
type IndirectData struct {
	DataType      asn1.ObjectIdentifier
	DigestAlgOID  asn1.ObjectIdentifier
	Digest        []byte
}

type spcIndirectDataContentASN1 struct {
	Data struct {
		Type  asn1.ObjectIdentifier
		Value asn1.RawValue
	}
	MessageDigest struct {
		DigestAlgorithm pkix.AlgorithmIdentifier
		Digest          []byte
	}
}

// ParseIndirectData decodes the DER content of a PKCS#7 SignedData whose
// content type is SPC_INDIRECT_DATA_OBJID.
func ParseIndirectData(der []byte) (IndirectData, error) {
	var v spcIndirectDataContentASN1
	if _, err := asn1.Unmarshal(der, &v); err != nil {
		return IndirectData{}, fmt.Errorf("authenticode: parse SpcIndirectDataContent: %w", err)
	}
	return IndirectData{
		DataType:     v.Data.Type,
		DigestAlgOID: v.MessageDigest.DigestAlgorithm.Algorithm,
		Digest:       v.MessageDigest.Digest,
	}, nil
}
