package timestamp

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/signer"
)

// testSigner is a minimal signer.Signer backed by an in-memory RSA key,
// used to build a real *signer.Message for the timestamp clients to
// countersign in tests.
type testSigner struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func (s testSigner) Certificate() *x509.Certificate { return s.cert }
func (s testSigner) Chain() []*x509.Certificate     { return nil }
func (s testSigner) Sign(digest []byte, hashAlg crypto.Hash) ([]byte, error) {
	return rsa.SignPKCS1v15(nil, s.key, hashAlg, digest)
}

func newTestMessage(t *testing.T) *signer.Message {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "authsigncode timestamp test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	blob, err := authenticode.BuildIndirectData(authenticode.PE, authenticode.SHA1, make([]byte, authenticode.SHA1.Size()))
	require.NoError(t, err)
	msg, err := signer.Build(authenticode.PE, authenticode.SHA1, blob, testSigner{cert: cert, key: key}, signer.Options{})
	require.NoError(t, err)
	return msg
}

func TestNewPicksLegacyOverRFC3161(t *testing.T) {
	var hit string
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = "legacy"
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer legacy.Close()
	rfc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = "rfc3161"
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer rfc.Close()

	ts := New(legacy.URL, rfc.URL, "")
	assert.NotNil(t, ts)
	assert.Error(t, ts(newTestMessage(t)))
	assert.Equal(t, "legacy", hit)
}

func TestNewNoneConfigured(t *testing.T) {
	assert.Nil(t, New("", "", ""), "expected nil Timestamper when neither URL is set")
}

func TestNewHTTPClientProxySchemes(t *testing.T) {
	_, err := newHTTPClient("")
	assert.NoError(t, err, "no proxy")

	_, err = newHTTPClient("http://127.0.0.1:8080")
	assert.NoError(t, err, "http proxy")

	_, err = newHTTPClient("socks://127.0.0.1:1080")
	assert.NoError(t, err, "socks proxy")

	_, err = newHTTPClient("ftp://bad.example")
	assert.Error(t, err, "expected error for unrecognized proxy scheme")
}
