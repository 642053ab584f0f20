// Package credentials loads the signing-material shapes `sign` accepts —
// a PKCS#12 bundle, or an SPC certificate file paired with either a PVK
// or a PEM/DER private key — into a signer.Signer. Credential loading is
// treated as an external collaborator, kept out of the signing core.
package credentials

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/pkcs12"

	"github.com/saferwall/authsigncode/internal/log"
)

// Credential implements signer.Signer over an in-memory private key (any
// crypto.Signer, RSA or EC) and X.509 certificate chain, the concrete type
// every loader in this package returns.
type Credential struct {
	cert  *x509.Certificate
	chain []*x509.Certificate
	key   crypto.Signer
}

func (c *Credential) Certificate() *x509.Certificate { return c.cert }
func (c *Credential) Chain() []*x509.Certificate     { return c.chain }

// Sign produces a raw PKCS#1 v1.5 signature over digest for RSA keys; for
// any other key type it returns the key's own Sign result.
func (c *Credential) Sign(digest []byte, hashAlg crypto.Hash) ([]byte, error) {
	rsaKey, ok := c.key.(*rsa.PrivateKey)
	if !ok {
		return c.key.Sign(nil, digest, hashAlg)
	}
	return rsa.SignPKCS1v15(nil, rsaKey, hashAlg, digest)
}

var errNoCertificate = errors.New("credentials: bundle carries no end-entity certificate")

// LoadPKCS12 reads a password-protected `-pkcs12` bundle holding one
// private key and one certificate. Additional chain certificates are not
// returned: the Credential's Chain is empty.
func LoadPKCS12(path, password string, logger log.Logger) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read pkcs12 %s: %w", path, err)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("credentials: decode pkcs12 %s: %w", path, err)
	}
	if cert == nil {
		return nil, errNoCertificate
	}
	signerKey, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("credentials: pkcs12 %s: key type %T is not a crypto.Signer", path, key)
	}

	log.NewHelper(logger).Infof("credentials: loaded pkcs12 bundle %s (subject=%s)", path, cert.Subject)
	return &Credential{cert: cert, key: signerKey}, nil
}

// LoadSPCPVK reads a `-spc`/`-pvk` pair: an SPC (a degenerate PKCS#7 holding
// only certificates) and a Microsoft PVK private key.
func LoadSPCPVK(spcPath, pvkPath, password string, logger log.Logger) (*Credential, error) {
	cert, chain, err := loadSPC(spcPath)
	if err != nil {
		return nil, err
	}

	pvkData, err := os.ReadFile(pvkPath)
	if err != nil {
		return nil, fmt.Errorf("credentials: read pvk %s: %w", pvkPath, err)
	}
	key, err := LoadPVK(pvkData, password)
	if err != nil {
		// osslsigncode retries with no password before failing, for PVKs
		// created without encryption but opened with a password anyway.
		var retryErr error
		key, retryErr = LoadPVK(pvkData, "")
		if retryErr != nil {
			return nil, fmt.Errorf("credentials: load pvk %s: %w", pvkPath, err)
		}
	}

	log.NewHelper(logger).Infof("credentials: loaded spc/pvk pair %s/%s (subject=%s)", spcPath, pvkPath, cert.Subject)
	return &Credential{cert: cert, chain: chain, key: key}, nil
}

// LoadSPCKey reads a `-spc`/`-key` pair: an SPC certificate file and a
// PEM or DER-encoded PKCS#1, PKCS#8 or EC private key.
func LoadSPCKey(spcPath, keyPath, password string, logger log.Logger) (*Credential, error) {
	cert, chain, err := loadSPC(spcPath)
	if err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("credentials: read key %s: %w", keyPath, err)
	}
	key, err := parsePrivateKey(keyData, password)
	if err != nil {
		return nil, fmt.Errorf("credentials: parse key %s: %w", keyPath, err)
	}

	log.NewHelper(logger).Infof("credentials: loaded spc/key pair %s/%s (subject=%s)", spcPath, keyPath, cert.Subject)
	return &Credential{cert: cert, chain: chain, key: key}, nil
}

// loadSPC parses a Software Publisher Certificate file: a degenerate PKCS#7
// SignedData whose only payload is a certificate set, no SignerInfo.
func loadSPC(path string) (*x509.Certificate, []*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("credentials: read spc %s: %w", path, err)
	}
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("credentials: parse spc %s: %w", path, err)
	}
	if len(p7.Certificates) == 0 {
		return nil, nil, fmt.Errorf("credentials: spc %s: %w", path, errNoCertificate)
	}
	// The signing certificate is whichever one is not used to issue another
	// certificate in the same bundle; in practice osslsigncode's SPC files
	// place it first.
	return p7.Certificates[0], p7.Certificates[1:], nil
}

func parsePrivateKey(data []byte, password string) (crypto.Signer, error) {
	block := pemDecode(data)
	der := data
	if block != nil {
		der = block.Bytes
		if password != "" && isEncryptedPEM(block) {
			decrypted, err := decryptPEM(block, password)
			if err != nil {
				return nil, err
			}
			der = decrypted
		}
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("credentials: pkcs8 key is not a crypto.Signer")
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("credentials: unrecognized private key encoding")
}
