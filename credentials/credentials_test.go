package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oidPKCS7SignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
var oidPKCS7Data = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}

type degenerateContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type degenerateInnerContent struct {
	ContentType asn1.ObjectIdentifier
}

type degenerateSignedData struct {
	Version          int
	DigestAlgorithms []asn1.RawValue `asn1:"set"`
	ContentInfo      degenerateInnerContent
	Certificates     []asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

// buildSPC encodes an SPC file: a degenerate PKCS#7 SignedData carrying
// only a certificate set, the shape loadSPC expects to parse.
func buildSPC(t *testing.T, certs ...*x509.Certificate) []byte {
	t.Helper()
	raws := make([]asn1.RawValue, len(certs))
	for i, c := range certs {
		raws[i] = asn1.RawValue{FullBytes: c.Raw}
	}
	sd := degenerateSignedData{
		Version:          1,
		DigestAlgorithms: nil,
		ContentInfo:      degenerateInnerContent{ContentType: oidPKCS7Data},
		Certificates:     raws,
		SignerInfos:      nil,
	}
	sdBytes, err := asn1.Marshal(sd)
	if err != nil {
		t.Fatal(err)
	}
	ci := degenerateContentInfo{
		ContentType: oidPKCS7SignedData,
		Content:     asn1.RawValue{FullBytes: sdBytes},
	}
	out, err := asn1.Marshal(ci)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func selfSignedCert(t *testing.T, key *rsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestLoadSPCKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	cert := selfSignedCert(t, key, "authsigncode test")

	dir := t.TempDir()
	spcPath := filepath.Join(dir, "cert.spc")
	require.NoError(t, os.WriteFile(spcPath, buildSPC(t, cert), 0644))

	keyPath := filepath.Join(dir, "key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0600))

	cred, err := LoadSPCKey(spcPath, keyPath, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "authsigncode test", cred.Certificate().Subject.CommonName)

	digest := make([]byte, 20)
	sig, err := cred.Sign(digest, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestLoadSPCPVK(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	cert := selfSignedCert(t, key, "authsigncode pvk test")

	dir := t.TempDir()
	spcPath := filepath.Join(dir, "cert.spc")
	require.NoError(t, os.WriteFile(spcPath, buildSPC(t, cert), 0644))

	pvkPath := filepath.Join(dir, "key.pvk")
	require.NoError(t, os.WriteFile(pvkPath, buildPVK(t, key, "", false), 0600))

	cred, err := LoadSPCPVK(spcPath, pvkPath, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "authsigncode pvk test", cred.Certificate().Subject.CommonName)
}

func TestLoadSPCMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	spcPath := filepath.Join(dir, "empty.spc")
	require.NoError(t, os.WriteFile(spcPath, buildSPC(t), 0644))

	_, _, err := loadSPC(spcPath)
	assert.Error(t, err, "expected error for SPC with no certificates")
}
