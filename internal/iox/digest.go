package iox

import "hash"

// DigestPipeline feeds every byte it sees to one or more hashers while also
// copying it to an output sink (typically a *Window). This is the same
// io.Copy(hasher, reader) shape pe.File.AuthentihashExt already uses against
// an io.SectionReader, generalized here from "replay over an io.ReaderAt"
// to "stream forward while also writing the output file", since signing
// produces output the verify path doesn't.
type DigestPipeline struct {
	hashers []hash.Hash
	sink    Sink
}

// Sink is the subset of Window's write surface DigestPipeline needs.
type Sink interface {
	Write(p []byte) (int, error)
}

// NewDigestPipeline constructs a pipeline over sink that feeds every one of
// hashers.
func NewDigestPipeline(sink Sink, hashers ...hash.Hash) *DigestPipeline {
	return &DigestPipeline{hashers: hashers, sink: sink}
}

// Feed writes b to the sink and every hasher.
func (p *DigestPipeline) Feed(b []byte) error {
	for _, h := range p.hashers {
		h.Write(b)
	}
	if p.sink != nil {
		if _, err := p.sink.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// FeedZero feeds n zero bytes to the sink and to every hasher, as Feed
// does; n <= 0 is a no-op.
func (p *DigestPipeline) FeedZero(n int) error {
	if n <= 0 {
		return nil
	}
	zeros := make([]byte, n)
	return p.Feed(zeros)
}

// FeedSkipSink writes b to every hasher but not to the sink, for bytes
// that count toward the digest while the output receives something else
// at that position.
func (p *DigestPipeline) FeedSkipSink(b []byte) {
	for _, h := range p.hashers {
		h.Write(b)
	}
}

// Sum finalizes each hasher in order.
func (p *DigestPipeline) Sum() [][]byte {
	out := make([][]byte, len(p.hashers))
	for i, h := range p.hashers {
		out[i] = h.Sum(nil)
	}
	return out
}
