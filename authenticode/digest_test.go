package authenticode

import (
	"crypto"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDigestAlgorithm(t *testing.T) {
	cases := []struct {
		in      string
		want    DigestAlgorithm
		wantErr bool
	}{
		{"", SHA1, false},
		{"sha1", SHA1, false},
		{"md5", MD5, false},
		{"sha2", SHA256, false},
		{"sha256", SHA256, false},
		{"sha512", 0, true},
	}
	for _, c := range cases {
		got, err := ParseDigestAlgorithm(c.in)
		if c.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedDigest)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestDigestAlgorithmString(t *testing.T) {
	assert.Equal(t, "md5", MD5.String())
	assert.Equal(t, "sha1", SHA1.String())
	assert.Equal(t, "sha2", SHA256.String())
	assert.Equal(t, "unknown", DigestAlgorithm(99).String())
}

func TestDigestAlgorithmHashAndSize(t *testing.T) {
	assert.Equal(t, crypto.SHA1, SHA1.Hash())
	assert.Equal(t, crypto.MD5, MD5.Hash())
	assert.Equal(t, crypto.SHA256, SHA256.Hash())
	assert.Equal(t, crypto.SHA1.Size(), SHA1.Size())
	assert.Equal(t, crypto.MD5.Size(), MD5.Size())
	assert.Equal(t, crypto.SHA256.Size(), SHA256.Size())
}

func TestDigestAlgorithmOID(t *testing.T) {
	assert.True(t, MD5.OID().Equal(asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}))
	assert.True(t, SHA1.OID().Equal(asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}))
	assert.True(t, SHA256.OID().Equal(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}))
}

func TestDigestEngine(t *testing.T) {
	e := NewDigestEngine(SHA256)
	n, err := e.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.Equal(t, len("hello world"), n)
	assert.Len(t, e.Sum(), SHA256.Size())

	// Writing more bytes changes the running sum.
	first := e.Sum()
	_, err = e.Write([]byte("more"))
	assert.NoError(t, err)
	assert.NotEqual(t, first, e.Sum())
}
