package iox

import (
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufSink struct{ data []byte }

func (s *bufSink) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

func TestDigestPipelineFeedsAllHashersAndSink(t *testing.T) {
	sink := &bufSink{}
	h1, h2 := sha1.New(), sha256.New()
	p := NewDigestPipeline(sink, h1, h2)

	require.NoError(t, p.Feed([]byte("hello ")))
	require.NoError(t, p.Feed([]byte("world")))

	assert.Equal(t, []byte("hello world"), sink.data)

	want1 := sha1.Sum([]byte("hello world"))
	want2 := sha256.Sum256([]byte("hello world"))
	sums := p.Sum()
	require.Len(t, sums, 2)
	assert.Equal(t, want1[:], sums[0])
	assert.Equal(t, want2[:], sums[1])
}

func TestDigestPipelineFeedZero(t *testing.T) {
	sink := &bufSink{}
	h := sha256.New()
	p := NewDigestPipeline(sink, h)

	require.NoError(t, p.FeedZero(4))
	assert.Equal(t, []byte{0, 0, 0, 0}, sink.data)

	want := sha256.Sum256([]byte{0, 0, 0, 0})
	assert.Equal(t, want[:], p.Sum()[0])

	require.NoError(t, p.FeedZero(0))
	assert.Equal(t, []byte{0, 0, 0, 0}, sink.data, "FeedZero(0) must be a no-op")
}

func TestDigestPipelineFeedSkipSinkDoesNotWriteSink(t *testing.T) {
	sink := &bufSink{}
	h := sha256.New()
	p := NewDigestPipeline(sink, h)

	p.FeedSkipSink([]byte("checksum-field"))
	assert.Empty(t, sink.data, "FeedSkipSink must not reach the sink")

	want := sha256.Sum256([]byte("checksum-field"))
	assert.Equal(t, want[:], p.Sum()[0])
}

func TestDigestPipelineNilSink(t *testing.T) {
	h := sha256.New()
	p := NewDigestPipeline(nil, h)
	require.NoError(t, p.Feed([]byte("ok")))
	want := sha256.Sum256([]byte("ok"))
	assert.Equal(t, want[:], p.Sum()[0])
}
