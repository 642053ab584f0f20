// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/saferwall/authsigncode/internal/log"
)

// A File represents an open PE file.
//
// Only the structure Authenticode signing and verification actually touch
// is kept: the DOS/NT headers and section table to locate the image, and
// the Certificate Table. The rest of the teacher malware-analysis parser
// (imports, exports, resources, relocations, TLS, load config, bound
// imports, delay imports, the CLR header, the rich header and the COFF
// symbol table) never had a reader here and has been removed along with
// the directory parsers that only ever populated it.
type File struct {
	DOSHeader    ImageDOSHeader `json:"dos_header,omitempty"`
	NtHeader     ImageNtHeader  `json:"nt_header,omitempty"`
	Sections     []Section      `json:"sections,omitempty"`
	Certificates Certificate    `json:"certificates,omitempty"`
	Anomalies    []string       `json:"anomalies,omitempty"`
	Header       []byte
	data         mmap.MMap
	FileInfo
	size          uint32
	OverlayOffset int64
	f             *os.File
	opts          *Options
	logger        *log.Helper
}

// Options for Parsing
type Options struct {

	// Fast used to gate the (now removed) directory parsers that nothing
	// downstream read. The Certificate Table, the one directory this
	// package still resolves, is mandatory for every signing and
	// verification operation, so it is always parsed regardless of this
	// flag. Kept only so existing callers that set it keep compiling.
	Fast bool

	// Includes section entropy, by default (false).
	SectionEntropy bool

	// Disable certificate chain validation, by default (false).
	DisableCertValidation bool

	// Disable Authentihash-versus-signed-digest comparison, by default (false).
	DisableSignatureValidation bool

	// A custom logger.
	Logger log.Logger
}

// New instantiates a file instance with options given a file name.
func New(name string, opts *Options) (*File, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	// Memory map the file instead of using read/write.
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}

	var logger log.Logger
	if file.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		file.logger = log.NewHelper(log.NewFilter(logger,
			log.FilterLevel(log.LevelError)))
	} else {
		file.logger = log.NewHelper(file.opts.Logger)
	}

	file.data = data
	file.size = uint32(len(file.data))
	file.f = f
	return &file, nil
}

// NewBytes instantiates a file instance with options given a memory buffer.
func NewBytes(data []byte, opts *Options) (*File, error) {

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}

	var logger log.Logger
	if file.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		file.logger = log.NewHelper(log.NewFilter(logger,
			log.FilterLevel(log.LevelError)))
	} else {
		file.logger = log.NewHelper(file.opts.Logger)
	}

	file.data = data
	file.size = uint32(len(file.data))
	return &file, nil
}

// Close closes the File.
func (pe *File) Close() error {
	if pe.data != nil {
		_ = pe.data.Unmap()
	}

	if pe.f != nil {
		return pe.f.Close()
	}
	return nil
}

// Parse performs the file parsing for a PE binary.
func (pe *File) Parse() error {

	// check for the smallest PE size.
	if len(pe.data) < TinyPESize {
		return ErrInvalidPESize
	}

	// Parse the DOS header.
	err := pe.ParseDOSHeader()
	if err != nil {
		return err
	}

	// Parse the NT header.
	err = pe.ParseNTHeader()
	if err != nil {
		return err
	}

	// Parse the Section Header.
	err = pe.ParseSectionHeader()
	if err != nil {
		return err
	}

	// Parse the Certificate Table. This is the only data directory
	// Authenticode signing and verification touch, so unlike the rest of
	// the data directories it is not gated behind Options.Fast.
	return pe.parseCertificateDirectory()
}

// parseCertificateDirectory reads the Certificate Table entry out of the
// Optional Header's data directory array and, if present, hands its
// virtual address and size to parseSecurityDirectory.
func (pe *File) parseCertificateDirectory() error {

	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	switch pe.Is64 {
	case true:
		oh64 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
	case false:
		oh32 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	}

	var va, size uint32
	switch pe.Is64 {
	case true:
		dirEntry := oh64.DataDirectory[ImageDirectoryEntryCertificate]
		va, size = dirEntry.VirtualAddress, dirEntry.Size
	case false:
		dirEntry := oh32.DataDirectory[ImageDirectoryEntryCertificate]
		va, size = dirEntry.VirtualAddress, dirEntry.Size
	}

	if va == 0 {
		return nil
	}

	if err := pe.parseSecurityDirectory(va, size); err != nil {
		pe.logger.Warnf("failed to parse the certificate directory: %v", err)
	}
	return nil
}
