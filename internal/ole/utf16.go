package ole

import "unicode/utf16"

func utf16Decode(units []uint16) []rune {
	return utf16.Decode(units)
}

func stringToUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[i*2] = byte(u)
		out[i*2+1] = byte(u >> 8)
	}
	return out
}
