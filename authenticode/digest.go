// Package authenticode builds the Authenticode SpcIndirectDataContent blob
// that PKCS#7 SignedData ultimately signs, for each of the three supported
// container families (PE, CAB, MSI).
package authenticode

import (
	"crypto"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"
)

// DigestAlgorithm is the hash the caller signs with. The default is SHA1.
type DigestAlgorithm int

const (
	SHA1 DigestAlgorithm = iota
	MD5
	SHA256
)

// ErrUnsupportedDigest is returned for any algorithm name that isn't one of
// md5, sha1, sha2 (the CLI spelling for SHA-256), sha256, or the empty
// string (which selects SHA-1).
var ErrUnsupportedDigest = errors.New("authenticode: unsupported digest algorithm")

// ParseDigestAlgorithm accepts the CLI spellings of the -h flag.
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	switch name {
	case "", "sha1":
		return SHA1, nil
	case "md5":
		return MD5, nil
	case "sha2", "sha256":
		return SHA256, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDigest, name)
	}
}

func (d DigestAlgorithm) String() string {
	switch d {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha2"
	default:
		return "unknown"
	}
}

// Hash returns the crypto.Hash backing this algorithm.
func (d DigestAlgorithm) Hash() crypto.Hash {
	switch d {
	case MD5:
		return crypto.MD5
	case SHA256:
		return crypto.SHA256
	default:
		return crypto.SHA1
	}
}

// New returns a freshly-constructed hash.Hash for this algorithm.
func (d DigestAlgorithm) New() hash.Hash {
	return d.Hash().New()
}

// OID returns the digest algorithm's ASN.1 object identifier, as embedded
// in DigestInfo.digestAlgorithm.
func (d DigestAlgorithm) OID() asn1.ObjectIdentifier {
	switch d {
	case MD5:
		return asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}
	case SHA256:
		return asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	default:
		return asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	}
}

// Size returns the digest length in bytes.
func (d DigestAlgorithm) Size() int {
	return d.Hash().Size()
}

// DigestEngine is the injected hashing abstraction: a sink that streams
// bytes to a named hash. Container handlers write every Authenticode-
// relevant byte range through it in the order the format
// requires.
type DigestEngine interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

type digestEngine struct {
	h hash.Hash
}

// NewDigestEngine returns a DigestEngine backed by alg.
func NewDigestEngine(alg DigestAlgorithm) DigestEngine {
	return &digestEngine{h: alg.New()}
}

func (d *digestEngine) Write(p []byte) (int, error) { return d.h.Write(p) }
func (d *digestEngine) Sum() []byte                 { return d.h.Sum(nil) }
