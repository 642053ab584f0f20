package authenticode

import "unicode/utf16"

// BuildOpusInfo encodes SpcSpOpusInfo ::= SEQUENCE { programName [0]
// EXPLICIT SpcString OPTIONAL, moreInfo [1] EXPLICIT SpcLink OPTIONAL }.
// programName picks SpcString's "unicode" alternative; moreInfo picks
// SpcLink's "url" alternative. Either may be empty; an empty SEQUENCE is
// returned only if both are (callers should skip the attribute entirely in
// that case).
func BuildOpusInfo(programName, moreInfoURL string) []byte {
	var parts [][]byte
	if programName != "" {
		parts = append(parts, tlv(0xA0, spcStringUnicode(utf16be(programName))))
	}
	if moreInfoURL != "" {
		parts = append(parts, tlv(0xA1, spcLinkURL(moreInfoURL)))
	}
	return sequence(parts...)
}

// spcLinkURL encodes SpcLink's "url [0] IMPLICIT IA5STRING" alternative.
func spcLinkURL(url string) []byte {
	return tlv(tagContext0Primitive, []byte(url))
}

func utf16be(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}
