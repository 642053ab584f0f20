package authenticode

import "encoding/asn1"

// Authenticode / SPC object identifiers.
var (
	OIDSpcIndirectDataContent   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	OIDSpcPEImageData           = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	OIDSpcCabData               = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 25}
	OIDSpcSipInfo               = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 30}
	OIDSpcStatementType         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 11}
	OIDSpcSpOpusInfo            = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
	OIDSpcMsJavaSomething       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 15, 1}
	OIDIndividualCodeSigning    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 21}
	OIDCommercialCodeSigning    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 22}
	OIDTimeStampRequest         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 3, 2, 1}
	OIDPKCS9CounterSignature    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 6}
	OIDSmimeTimeStampToken      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	OIDSpcPageHashesV1          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 3, 1}
	OIDSpcPageHashesV2          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 3, 2}
	// ClassIDPageHash is the moniker class id marking a page-hash blob
	// nested inside SpcPeImageData.file; read-only, not generated here.
	ClassIDPageHash = [16]byte{0xA6, 0xB5, 0x86, 0xD5, 0xB4, 0xA1, 0x24, 0x66, 0xAE, 0x05, 0xA2, 0x17, 0xDA, 0x8E, 0x60, 0xD6}
)

// JavaAttributesLow is the literal SEQUENCE the reference implementation
// attaches for "-jp low": SEQUENCE { BIT STRING (no unused bits, one byte
// 0x01), SEQUENCE {} } encoded verbatim.
var JavaAttributesLow = []byte{0x30, 0x06, 0x03, 0x02, 0x00, 0x01, 0x30, 0x00}

// StatementTypeIndividual and StatementTypeCommercial are the literal
// SpcStatementType attribute DER values selected by the CLI's -comm switch.
var (
	StatementTypeIndividual = sequence(mustOID(OIDIndividualCodeSigning))
	StatementTypeCommercial = sequence(mustOID(OIDCommercialCodeSigning))
)

func mustOID(oid asn1.ObjectIdentifier) []byte {
	b, err := asn1.Marshal(oid)
	if err != nil {
		panic(err)
	}
	return b
}
