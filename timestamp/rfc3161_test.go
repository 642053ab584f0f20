package timestamp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferwall/authsigncode/authenticode"
)

// buildPKCS7Token builds the same degenerate ContentInfo/SignedData shape as
// buildLegacyTSAResponse, but returns raw DER rather than a base64 body: an
// RFC 3161 TimeStampToken is itself a PKCS#7 ContentInfo, not a base64-wrapped
// one.
func buildPKCS7Token(t *testing.T) ([]byte, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(9),
		Subject:      pkix.Name{CommonName: "test rfc3161 tsa"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	si := respSignerInfoForTest{
		Version: 1,
		IssuerAndSerial: struct {
			IssuerName   asn1.RawValue
			SerialNumber *big.Int
		}{IssuerName: asn1.RawValue{FullBytes: cert.RawIssuer}, SerialNumber: cert.SerialNumber},
		DigestAlgorithm:     pkix.AlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}, Parameters: asn1.NullRawValue},
		EncryptionAlgorithm: pkix.AlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}, Parameters: asn1.NullRawValue},
		EncryptedDigest:     []byte("fake-rfc3161-token-signature"),
	}
	siDER, err := asn1.Marshal(si)
	require.NoError(t, err)

	sd := respSignedDataForTest{
		Version:          1,
		DigestAlgorithms: nil,
		ContentInfo:      struct{ ContentType asn1.ObjectIdentifier }{ContentType: oidPKCS7Data},
		Certificates:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: cert.Raw},
		SignerInfos:      []asn1.RawValue{{FullBytes: siDER}},
	}
	sdDER, err := asn1.Marshal(sd)
	require.NoError(t, err)

	env := struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue
	}{
		ContentType: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2},
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: sdDER},
	}
	envDER, err := asn1.Marshal(env)
	require.NoError(t, err)
	return envDER, cert
}

func buildRFC3161Response(t *testing.T, status int) []byte {
	t.Helper()
	resp := timeStampResp{Status: pkiStatusInfo{Status: status}}
	if status == 0 {
		token, _ := buildPKCS7Token(t)
		resp.Token = asn1.RawValue{FullBytes: token}
	}
	out, err := asn1.Marshal(resp)
	require.NoError(t, err)
	return out
}

func TestRFC3161ClientTimestamp(t *testing.T) {
	var gotNonce bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/timestamp-query", r.Header.Get("Content-Type"))

		var req timeStampReq
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, err = asn1.Unmarshal(body, &req)
		require.NoError(t, err)

		assert.NotNil(t, req.Nonce)
		if req.Nonce != nil {
			assert.NotZero(t, req.Nonce.Sign(), "expected a non-zero nonce in the request")
		}
		assert.True(t, req.CertReq)
		gotNonce = true

		w.Header().Set("Content-Type", "application/timestamp-reply")
		w.Write(buildRFC3161Response(t, 0))
	}))
	defer srv.Close()

	msg := newTestMessage(t)
	client := RFC3161Client{URL: srv.URL}
	require.NoError(t, client.Timestamp(msg))
	assert.True(t, gotNonce, "server handler was never invoked")

	der, err := msg.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, der, "expected non-empty marshaled message after timestamping")
}

func TestRFC3161ClientTimestampRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/timestamp-reply")
		w.Write(buildRFC3161Response(t, 2))
	}))
	defer srv.Close()

	msg := newTestMessage(t)
	client := RFC3161Client{URL: srv.URL}
	assert.Error(t, client.Timestamp(msg), "expected error for rejected status")
}

func TestRFC3161ClientAttachesSmimeOID(t *testing.T) {
	token, _ := buildPKCS7Token(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/timestamp-reply")
		resp := timeStampResp{Status: pkiStatusInfo{Status: 0}, Token: asn1.RawValue{FullBytes: token}}
		out, err := asn1.Marshal(resp)
		require.NoError(t, err)
		w.Write(out)
	}))
	defer srv.Close()

	msg := newTestMessage(t)
	client := RFC3161Client{URL: srv.URL}
	require.NoError(t, client.Timestamp(msg))

	der, err := msg.Marshal()
	require.NoError(t, err)

	var found bool
	for i := range der {
		if matchesOID(der[i:], authenticode.OIDSmimeTimeStampToken) {
			found = true
			break
		}
	}
	assert.True(t, found, "expected id-smime-aa-timeStampToken OID in the marshaled message")
}

// matchesOID reports whether der begins with the DER encoding of oid's
// arcs, a cheap substring check good enough to confirm the attribute OID
// made it into the final marshaled message.
func matchesOID(der []byte, oid asn1.ObjectIdentifier) bool {
	encoded, err := asn1.Marshal(oid)
	if err != nil {
		return false
	}
	if len(der) < len(encoded) {
		return false
	}
	return string(der[:len(encoded)]) == string(encoded)
}
