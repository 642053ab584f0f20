// Package iox implements a "byte window": a random-access read view over
// the input file plus a sequential-write sink for the output file, shared
// by every container handler. Grounded on
// pe.File's own mmap-based input handling (file.go), generalized from a
// single container family to all three.
package iox

import (
	"bufio"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// Window is a read-only memory-mapped view of an input file paired with a
// buffered, sequential writer for an output file. Exactly one of each
// exists per operation; the input is never mutated.
type Window struct {
	in     *os.File
	data   mmap.MMap
	out    *os.File
	writer *bufio.Writer
	outPath string
	written int64
}

// Open memory-maps inPath read-only.
func Open(inPath string) (*Window, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Window{in: f, data: data}, nil
}

// CreateOutput opens outPath for sequential writing. On any later Abort
// the file is removed: the output file is unlinked on any error path.
func (w *Window) CreateOutput(outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	w.out = f
	w.outPath = outPath
	w.writer = bufio.NewWriter(f)
	return nil
}

// Data is the full memory-mapped input.
func (w *Window) Data() []byte { return w.data }

// Size is the input file length.
func (w *Window) Size() uint32 { return uint32(len(w.data)) }

// Slice returns a read-only view of [start, start+length) of the input.
func (w *Window) Slice(start, length uint32) []byte {
	return w.data[start : start+length]
}

// Write appends p to the output, implementing io.Writer.
func (w *Window) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.written += int64(n)
	return n, err
}

// WriteAt seeks the output to offset and writes p, used for the final
// fixups (checksum, certificate-table pointer, CAB placeholder dwords).
// WriteAt flushes any buffered output first, then writes p at offset
// through the output file's WriteAt.
func (w *Window) WriteAt(offset int64, p []byte) error {
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := w.out.WriteAt(p, offset)
	return err
}

// Flush drains the buffered writer to the underlying file.
func (w *Window) Flush() error {
	if w.writer == nil {
		return nil
	}
	return w.writer.Flush()
}

// Written is the number of bytes written to the output so far.
func (w *Window) Written() int64 { return w.written }

// Close releases the input mapping and closes both files. The input
// mapping is released on all exits.
func (w *Window) Close() error {
	var firstErr error
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.out != nil {
		if err := w.out.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.data != nil {
		if err := w.data.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.in != nil {
		if err := w.in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Abort closes the window and removes any output file that was created:
// on any failure the output file is removed.
func (w *Window) Abort() {
	w.Close()
	if w.outPath != "" {
		os.Remove(w.outPath)
	}
}

var _ io.Writer = (*Window)(nil)
