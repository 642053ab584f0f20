// Package cab implements enough of the Microsoft Cabinet format to
// Authenticode-sign one: parsing the fixed CFHEADER prefix, raising its
// size/offset fields to make room for a reserved signature area, and
// driving the Authenticode digest over the adjusted byte stream exactly as
// original_source/osslsigncode.c's CAB branch does.
//
// Only signing is supported for CAB — the reference tool itself refuses
// extract/remove/verify for anything but PE ("Command is not supported
// for non-PE files").
package cab

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/signer"
)

const (
	headerPrefixLen = 60 // offset 0 through the 24-byte reserved area, before folder entries
	cabSizeOffset   = 0x2C
	blobSizeOffset  = 0x30
	folderTableBase = 36
	folderEntryLen  = 8
)

var (
	// ErrFlagsSet is returned when the CAB already carries reserved-area or
	// other header flags, matching the reference tool's blanket refusal
	// ("Signing refused").
	ErrFlagsSet  = fmt.Errorf("cab: cannot sign a cabinet with header flag bits already set")
	ErrNotCab    = fmt.Errorf("cab: not a Microsoft Cabinet file")
	ErrTruncated = fmt.Errorf("cab: file is too short to be a valid cabinet")
)

// Layout is the subset of CFHEADER fields the signer needs.
type Layout struct {
	TotalSize    uint32
	FolderOffset uint32
	NumFolders   uint16
	Flags        uint16
}

// ParseLayout reads the CFHEADER prefix of data.
func ParseLayout(data []byte) (Layout, error) {
	if len(data) < 44 {
		return Layout{}, ErrTruncated
	}
	if string(data[0:4]) != "MSCF" {
		return Layout{}, ErrNotCab
	}
	return Layout{
		TotalSize:    binary.LittleEndian.Uint32(data[8:12]),
		FolderOffset: binary.LittleEndian.Uint32(data[16:20]),
		NumFolders:   binary.LittleEndian.Uint16(data[26:28]),
		Flags:        binary.LittleEndian.Uint16(data[30:32]),
	}, nil
}

// SignOptions configures Sign.
type SignOptions struct {
	Algorithm     authenticode.DigestAlgorithm
	Signer        signer.Signer
	SignerOptions signer.Options
	Timestamper   func(*signer.Message) error
}

// Sign reads the cabinet at inPath, raises its header size/offset fields to
// reserve a signature area, and writes the signed cabinet to outPath.
func Sign(inPath, outPath string, opts SignOptions) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("cab: sign: %w", err)
	}

	layout, err := ParseLayout(data)
	if err != nil {
		return fmt.Errorf("cab: sign: %w", err)
	}
	if layout.Flags != 0 {
		return ErrFlagsSet
	}

	out := make([]byte, 0, len(data)+len(data)/4+64)
	h := opts.Algorithm.New()

	feed := func(b []byte) { h.Write(b) }
	emit := func(b []byte) { out = append(out, b...) }
	feedEmit := func(b []byte) { feed(b); emit(b) }

	var u32 [4]byte

	feedEmit(data[0:4]) // "MSCF"
	emit(data[4:8])     // reserved1, not hashed

	binary.LittleEndian.PutUint32(u32[:], layout.TotalSize+24)
	feedEmit(u32[:])

	feedEmit(data[12:16]) // reserved2

	binary.LittleEndian.PutUint32(u32[:], layout.FolderOffset+24)
	feedEmit(u32[:])

	span := append([]byte{}, data[20:34]...) // reserved3, versions, cFolders, cFiles, flags, setID
	span[10] |= 0x04                         // flags low byte |= RESERVE_PRESENT, offset 30 = index 10 here
	feedEmit(span)

	emit(data[34:36]) // iCabinet, not hashed

	cabsigned := [24]byte{
		0x14, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
		0xde, 0xad, 0xbe, 0xef, // total cab size placeholder, patched below
		0xde, 0xad, 0xbe, 0xef, // signature blob size placeholder, patched below
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	emit(cabsigned[0:20])     // header fields + marker + placeholders + first 4 zero bytes, not hashed
	feedEmit(cabsigned[20:24]) // remaining 4 zero bytes of the reserved area

	i := folderTableBase
	for n := uint16(0); n < layout.NumFolders; n++ {
		binary.LittleEndian.PutUint32(u32[:], binary.LittleEndian.Uint32(data[i:i+4])+24)
		feedEmit(u32[:])
		feedEmit(data[i+4 : i+8])
		i += folderEntryLen
	}

	feedEmit(data[i:]) // CFFOLDER/CFFILE/CFDATA records verbatim

	digest := h.Sum(nil)
	blob, err := authenticode.BuildIndirectData(authenticode.CAB, opts.Algorithm, digest)
	if err != nil {
		return fmt.Errorf("cab: sign: %w", err)
	}
	msg, err := signer.Build(authenticode.CAB, opts.Algorithm, blob, opts.Signer, opts.SignerOptions)
	if err != nil {
		return fmt.Errorf("cab: sign: %w", err)
	}
	if opts.Timestamper != nil {
		if err := opts.Timestamper(msg); err != nil {
			return fmt.Errorf("cab: sign: timestamp: %w", err)
		}
	}
	der, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("cab: sign: marshal signature: %w", err)
	}
	pad := (8 - len(der)%8) % 8

	binary.LittleEndian.PutUint32(u32[:], uint32(len(out)))
	copy(out[cabSizeOffset:cabSizeOffset+4], u32[:])

	out = append(out, der...)
	out = append(out, make([]byte, pad)...)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(der)+pad))
	copy(out[blobSizeOffset:blobSizeOffset+4], u32[:])

	return os.WriteFile(outPath, out, 0644)
}
