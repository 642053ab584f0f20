package authenticode

// Minimal hand-rolled DER TLV assembly. encoding/asn1's reflection-based
// Marshal cannot express the ASN.1 CHOICE types SpcLink and SpcString use
// (the Authenticode spec embeds a CHOICE inside SpcPeImageData.file), so the
// handful of fixed shapes below are assembled directly the way the
// reference osslsigncode.c builds them with literal byte templates. Every
// other structure (AlgorithmIdentifier, DigestInfo, OCTET STRING, INTEGER)
// has no CHOICE in it and is built with encoding/asn1 in indirectdata.go.

func tlv(tag byte, content []byte) []byte {
	out := make([]byte, 0, len(content)+4)
	out = append(out, tag)
	out = appendLength(out, len(content))
	return append(out, content...)
}

func appendLength(buf []byte, n int) []byte {
	if n < 0x80 {
		return append(buf, byte(n))
	}
	var lb []byte
	for n > 0 {
		lb = append([]byte{byte(n & 0xff)}, lb...)
		n >>= 8
	}
	buf = append(buf, 0x80|byte(len(lb)))
	return append(buf, lb...)
}

func sequence(children ...[]byte) []byte {
	var content []byte
	for _, c := range children {
		content = append(content, c...)
	}
	return tlv(0x30, content)
}

const (
	tagContext0Primitive   = 0x80
	tagContext2Constructed = 0xA2
	tagBitString           = 0x03
)

// spcStringUnicode encodes SpcString's "unicode [0] IMPLICIT BMPSTRING"
// alternative given raw UTF-16BE bytes.
func spcStringUnicode(utf16be []byte) []byte {
	return tlv(tagContext0Primitive, utf16be)
}

// spcLinkFile encodes SpcLink's "file [2] EXPLICIT SpcString" alternative.
func spcLinkFile(utf16be []byte) []byte {
	return tlv(tagContext2Constructed, spcStringUnicode(utf16be))
}

// emptyBitString encodes a zero-length BIT STRING (one content byte: the
// unused-bits count, which must be zero when there is no data).
func emptyBitString() []byte {
	return tlv(tagBitString, []byte{0x00})
}

// obsoleteLinkUTF16 is the literal "<<<Obsolete>>>" string in UTF-16BE, the
// placeholder every Authenticode signer puts in SpcLink.file.
var obsoleteLinkUTF16 = []byte{
	0x00, 0x3c, 0x00, 0x3c, 0x00, 0x3c, 0x00, 0x4f, 0x00, 0x62,
	0x00, 0x73, 0x00, 0x6f, 0x00, 0x6c, 0x00, 0x65, 0x00, 0x74,
	0x00, 0x65, 0x00, 0x3e, 0x00, 0x3e, 0x00, 0x3e,
}

// obsoleteSpcLink is the DER of SpcLink{file: SpcString{unicode: obsolete}},
// used verbatim by both the PE and CAB inner data fields.
func obsoleteSpcLink() []byte {
	return spcLinkFile(obsoleteLinkUTF16)
}

// spcPeImageData builds SEQUENCE{ flags BIT STRING, file SpcLink }.
func spcPeImageData() []byte {
	return sequence(emptyBitString(), obsoleteSpcLink())
}
