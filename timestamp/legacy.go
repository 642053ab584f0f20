package timestamp

import (
	"context"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/signer"
)

// legacyTimeStampRequest is the Authenticode-specific timestamp request
// envelope (not RFC 3161): an SPC_TIME_STAMP_REQUEST_OBJID wrapping the
// SignerInfo's encrypted digest as a pkcs7-data blob, grounded on
// original_source/osslsigncode.c's add_timestamp_authenticode.
type legacyTimeStampRequest struct {
	Type asn1.ObjectIdentifier
	Blob legacyTimeStampBlob
}

type legacyTimeStampBlob struct {
	Type      asn1.ObjectIdentifier
	Signature []byte `asn1:"explicit,tag:0"`
}

var oidPKCS7Data = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}

// respContentInfo/respSignedData mirror signer's unexported pkcs7Envelope
// shapes closely enough to recover a TSA response's raw certificate set and
// first SignerInfo without a round trip through a full PKCS#7 library —
// this module parses/verifies PKCS#7 with go.mozilla.org/pkcs7 elsewhere,
// but that library does not expose re-encodable raw SignerInfo bytes, which
// the legacy countersignature attribute needs verbatim.
type respContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     respSignedData `asn1:"explicit,tag:0"`
}

type respSignedData struct {
	Version                    int             `asn1:"default:1"`
	DigestAlgorithmIdentifiers []asn1.RawValue `asn1:"set"`
	ContentInfo                asn1.RawValue
	Certificates               asn1.RawValue   `asn1:"optional,tag:0"`
	SignerInfos                []asn1.RawValue `asn1:"set"`
}

func parseCertificates(raw asn1.RawValue) ([]*x509.Certificate, error) {
	if len(raw.Bytes) == 0 {
		return nil, nil
	}
	certs, err := x509.ParseCertificates(raw.Bytes)
	if err != nil {
		return nil, fmt.Errorf("timestamp: parse certificate set: %w", err)
	}
	return certs, nil
}

// LegacyClient sends the legacy Authenticode timestamp protocol (base64
// TimeStampRequest over HTTP with application/octet-stream bodies) to URL,
// optionally through Proxy (see newHTTPClient), and attaches the result to
// a signer.Message as a pkcs9-countersignature unauthenticated attribute.
type LegacyClient struct {
	URL   string
	Proxy string
}

// Timestamp implements the Timestamper hook shared by pe.SignOptions,
// cab.SignOptions and msi.SignOptions.
func (c LegacyClient) Timestamp(msg *signer.Message) error {
	client, err := newHTTPClient(c.Proxy)
	if err != nil {
		return err
	}

	reqDER, err := asn1.Marshal(legacyTimeStampRequest{
		Type: authenticode.OIDTimeStampRequest,
		Blob: legacyTimeStampBlob{
			Type:      oidPKCS7Data,
			Signature: msg.EncryptedDigest(),
		},
	})
	if err != nil {
		return fmt.Errorf("timestamp: marshal legacy request: %w", err)
	}

	// BIO_f_base64 without BIO_FLAGS_BASE64_NO_NL inserts a newline every 64
	// characters; osslsigncode tracks this per request via blob_has_nl
	// rather than a global, so this client re-derives the same body shape
	// from scratch on every call instead of sharing encoder state.
	reqBody := []byte(base64WithNewlines(reqDER))

	respBody, err := postAndRead(context.Background(), client, c.URL, reqBody,
		"application/octet-stream", "application/octet-stream")
	if err != nil {
		return fmt.Errorf("timestamp: legacy: %w", err)
	}

	respDER, err := base64.StdEncoding.DecodeString(stripWhitespace(string(respBody)))
	if err != nil {
		return fmt.Errorf("timestamp: legacy: decode response: %w", err)
	}

	var env respContentInfo
	if _, err := asn1.Unmarshal(respDER, &env); err != nil {
		return fmt.Errorf("timestamp: legacy: parse response pkcs7: %w", err)
	}
	if len(env.Content.SignerInfos) == 0 {
		return fmt.Errorf("timestamp: legacy: response carries no SignerInfo")
	}

	certs, err := parseCertificates(env.Content.Certificates)
	if err != nil {
		return err
	}
	if len(certs) > 0 {
		certDER := make([][]byte, len(certs))
		for i, c := range certs {
			certDER[i] = c.Raw
		}
		if err := msg.AddCertificates(certDER...); err != nil {
			return fmt.Errorf("timestamp: legacy: merge certificates: %w", err)
		}
	}

	// The attribute value is SET OF SignerInfo; the reference only ever
	// attaches the TSA's single SignerInfo.
	msg.AddUnauthenticatedAttribute(authenticode.OIDPKCS9CounterSignature, env.Content.SignerInfos[0].FullBytes)
	return nil
}

func base64WithNewlines(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for i := 0; i < len(encoded); i += 64 {
		end := i + 64
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\n', '\r', '\t', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
