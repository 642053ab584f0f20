package timestamp

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/saferwall/authsigncode/authenticode"
	"github.com/saferwall/authsigncode/signer"
)

type messageImprint struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	Nonce          *big.Int `asn1:"optional"`
	CertReq        bool
}

// nonce returns a fresh request nonce. The reference tool omits one
// entirely; a faithful client includes one, and uuid.New is the idiomatic
// source of randomness this module already reaches for elsewhere.
func nonce() *big.Int {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:])
}

type pkiStatusInfo struct {
	Status       int
	StatusString []string       `asn1:"optional"`
	FailInfo     asn1.BitString `asn1:"optional"`
}

type timeStampResp struct {
	Status pkiStatusInfo
	Token  asn1.RawValue `asn1:"optional"`
}

// RFC3161Client sends an RFC 3161 TimeStampReq/TimeStampResp exchange to URL
// and attaches the resulting token to a signer.Message.
//
// The reference tool this protocol is modeled on reuses the legacy
// pkcs9-countersignature attribute for RFC 3161 tokens too; this client
// instead attaches the token under id-smime-aa-timeStampToken (the OID
// RFC 3161 consumers actually expect), carrying the TSA's full ContentInfo
// rather than copying out just its SignerInfo.
type RFC3161Client struct {
	URL   string
	Proxy string
}

func (c RFC3161Client) Timestamp(msg *signer.Message) error {
	client, err := newHTTPClient(c.Proxy)
	if err != nil {
		return err
	}

	h := msg.HashAlg().New()
	h.Write(msg.EncryptedDigest())
	digest := h.Sum(nil)

	alg := pkix.AlgorithmIdentifier{Algorithm: msg.DigestOID(), Parameters: asn1.NullRawValue}

	reqDER, err := asn1.Marshal(timeStampReq{
		Version:        1,
		MessageImprint: messageImprint{DigestAlgorithm: alg, Digest: digest},
		Nonce:          nonce(),
		CertReq:        true,
	})
	if err != nil {
		return fmt.Errorf("timestamp: marshal rfc3161 request: %w", err)
	}

	respBody, err := postAndRead(context.Background(), client, c.URL, reqDER,
		"application/timestamp-query", "application/timestamp-reply")
	if err != nil {
		return fmt.Errorf("timestamp: rfc3161: %w", err)
	}

	var resp timeStampResp
	if _, err := asn1.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("timestamp: rfc3161: parse response: %w", err)
	}
	if resp.Status.Status != 0 {
		return fmt.Errorf("timestamp: rfc3161: server rejected request (status %d: %v)", resp.Status.Status, resp.Status.StatusString)
	}
	if len(resp.Token.FullBytes) == 0 {
		return fmt.Errorf("timestamp: rfc3161: response carries no token")
	}

	var env respContentInfo
	if _, err := asn1.Unmarshal(resp.Token.FullBytes, &env); err != nil {
		return fmt.Errorf("timestamp: rfc3161: parse token pkcs7: %w", err)
	}

	certs, err := parseCertificates(env.Content.Certificates)
	if err != nil {
		return err
	}
	if len(certs) > 0 {
		certDER := make([][]byte, len(certs))
		for i, cert := range certs {
			certDER[i] = cert.Raw
		}
		if err := msg.AddCertificates(certDER...); err != nil {
			return fmt.Errorf("timestamp: rfc3161: merge certificates: %w", err)
		}
	}

	// The attribute value is SET OF ContentInfo, holding the token verbatim.
	msg.AddUnauthenticatedAttribute(authenticode.OIDSmimeTimeStampToken, resp.Token.FullBytes)
	return nil
}
