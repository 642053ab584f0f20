package cab

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferwall/authsigncode/authenticode"
)

type fakeSigner struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func (s fakeSigner) Certificate() *x509.Certificate { return s.cert }
func (s fakeSigner) Chain() []*x509.Certificate     { return nil }
func (s fakeSigner) Sign(digest []byte, hashAlg crypto.Hash) ([]byte, error) {
	return rsa.SignPKCS1v15(nil, s.key, hashAlg, digest)
}

func newFakeSigner(t *testing.T) fakeSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "authsigncode cab test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return fakeSigner{cert: cert, key: key}
}

// buildCabinet assembles a minimal, single-folder CFHEADER-prefixed cabinet
// with the given flags, for exercising ParseLayout and Sign.
func buildCabinet(flags uint16) []byte {
	data := make([]byte, 36+8+10)
	copy(data[0:4], "MSCF")
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(data)))   // cbCabinet
	binary.LittleEndian.PutUint32(data[16:20], 44)                 // coffFiles
	binary.LittleEndian.PutUint16(data[26:28], 1)                  // cFolders
	binary.LittleEndian.PutUint16(data[28:30], 0)                  // cFiles
	binary.LittleEndian.PutUint16(data[30:32], flags)
	binary.LittleEndian.PutUint32(data[36:40], 100) // folder entry coffCabStart
	copy(data[44:], []byte("HELLOWORLD"))
	return data
}

func TestParseLayout(t *testing.T) {
	data := buildCabinet(0)
	layout, err := ParseLayout(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(data)), layout.TotalSize)
	assert.Equal(t, uint32(44), layout.FolderOffset)
	assert.Equal(t, uint16(1), layout.NumFolders)
	assert.Equal(t, uint16(0), layout.Flags)
}

func TestParseLayoutRejectsBadMagic(t *testing.T) {
	data := buildCabinet(0)
	copy(data[0:4], "XXXX")
	_, err := ParseLayout(data)
	assert.ErrorIs(t, err, ErrNotCab)
}

func TestParseLayoutRejectsTruncated(t *testing.T) {
	_, err := ParseLayout(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSignRejectsFlagsAlreadySet(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.cab")
	out := filepath.Join(dir, "out.cab")
	require.NoError(t, os.WriteFile(in, buildCabinet(0x04), 0644))

	err := Sign(in, out, SignOptions{Algorithm: authenticode.SHA1, Signer: newFakeSigner(t)})
	assert.ErrorIs(t, err, ErrFlagsSet)
}

func TestSignReservesSpaceAndAppendsSignature(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.cab")
	out := filepath.Join(dir, "out.cab")
	original := buildCabinet(0)
	require.NoError(t, os.WriteFile(in, original, 0644))

	s := newFakeSigner(t)
	err := Sign(in, out, SignOptions{Algorithm: authenticode.SHA1, Signer: s})
	require.NoError(t, err)

	signed, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Greater(t, len(signed), len(original))

	layout, err := ParseLayout(signed)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(original))+24, layout.TotalSize)
	assert.Equal(t, uint32(44)+24, layout.FolderOffset)
	assert.NotZero(t, layout.Flags&0x04, "expected RESERVE_PRESENT flag bit set")

	blobSize := binary.LittleEndian.Uint32(signed[blobSizeOffset : blobSizeOffset+4])
	assert.Equal(t, len(signed)-(len(original)+24), int(blobSize), "signature blob size field should match the appended signature length")

	// The adjusted folder entry's coffCabStart carries the same +24 bump.
	// It sits 24 bytes further into the output than in the source cabinet,
	// since the reserved signature area is spliced in right before it.
	folderStart := binary.LittleEndian.Uint32(signed[folderTableBase+24 : folderTableBase+28])
	assert.Equal(t, uint32(100+24), folderStart)

	assert.Contains(t, string(signed), "HELLOWORLD")
}
