package credentials

import (
	"crypto/rc4"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Microsoft's legacy PVK container, the format signtool/osslsigncode's
// `-pvk` flag expects (OpenSSL's b2i_PVK_bio). No Go library in the
// retrieval pack speaks this format, and it has no ecosystem presence
// outside Windows code-signing tooling, so it is parsed here directly
// against crypto/rc4, crypto/sha1 and math/big — see DESIGN.md.
const (
	pvkMagic          = 0xB0B5F11E
	pvkKeyBlobPrivate = 0x07
	rsa2Magic         = 0x32415352 // "RSA2" read little-endian
)

var errBadPVK = fmt.Errorf("credentials: not a recognized PVK file")

// LoadPVK parses a Microsoft PVK private-key file, decrypting it with
// password if the header marks it encrypted.
func LoadPVK(data []byte, password string) (*rsa.PrivateKey, error) {
	if len(data) < 24 {
		return nil, errBadPVK
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != pvkMagic {
		return nil, errBadPVK
	}
	isEncrypted := binary.LittleEndian.Uint32(data[12:16])
	saltLen := binary.LittleEndian.Uint32(data[16:20])
	keyLen := binary.LittleEndian.Uint32(data[20:24])

	rest := data[24:]
	if uint64(saltLen)+uint64(keyLen) > uint64(len(rest)) {
		return nil, errBadPVK
	}
	salt := rest[:saltLen]
	blob := append([]byte{}, rest[saltLen:saltLen+keyLen]...)

	if isEncrypted != 0 && saltLen > 0 {
		if len(blob) < 8 {
			return nil, errBadPVK
		}
		// The 8-byte BLOBHEADER is sent in the clear; only the bytes after
		// it are RC4-encrypted, with the key derived as
		// SHA1(salt || password)[:16] (CryptDeriveKey's Base Provider rule
		// for a 128-bit RC4 key).
		h := sha1.New()
		h.Write(salt)
		h.Write([]byte(password))
		derived := h.Sum(nil)

		cipher, err := rc4.NewCipher(derived[:16])
		if err != nil {
			return nil, fmt.Errorf("credentials: pvk: rc4 key setup: %w", err)
		}
		cipher.XORKeyStream(blob[8:], blob[8:])
	}

	return parseCAPIPrivateKey(blob)
}

// parseCAPIPrivateKey decodes a CryptoAPI PRIVATEKEYBLOB (BLOBHEADER +
// RSAPUBKEY + the five little-endian big integers CAPI stores an RSA
// private key as) into an *rsa.PrivateKey.
func parseCAPIPrivateKey(blob []byte) (*rsa.PrivateKey, error) {
	if len(blob) < 20 || blob[0] != pvkKeyBlobPrivate {
		return nil, fmt.Errorf("credentials: pvk: not a PRIVATEKEYBLOB")
	}
	body := blob[8:]
	if binary.LittleEndian.Uint32(body[0:4]) != rsa2Magic {
		return nil, fmt.Errorf("credentials: pvk: missing RSA2 magic")
	}
	bitLen := binary.LittleEndian.Uint32(body[4:8])
	pubExp := binary.LittleEndian.Uint32(body[8:12])

	modLen := int(bitLen / 8)
	halfLen := int(bitLen / 16)
	cursor := body[12:]

	take := func(n int) ([]byte, error) {
		if len(cursor) < n {
			return nil, fmt.Errorf("credentials: pvk: truncated key body")
		}
		b := reversed(cursor[:n])
		cursor = cursor[n:]
		return b, nil
	}

	modulus, err := take(modLen)
	if err != nil {
		return nil, err
	}
	prime1, err := take(halfLen)
	if err != nil {
		return nil, err
	}
	prime2, err := take(halfLen)
	if err != nil {
		return nil, err
	}
	if _, err := take(halfLen); err != nil { // exponent1 (d mod p-1), unused
		return nil, err
	}
	if _, err := take(halfLen); err != nil { // exponent2 (d mod q-1), unused
		return nil, err
	}
	if _, err := take(halfLen); err != nil { // coefficient (qInv), unused
		return nil, err
	}
	privExp, err := take(modLen)
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: new(big.Int).SetBytes(modulus),
			E: int(pubExp),
		},
		D:      new(big.Int).SetBytes(privExp),
		Primes: []*big.Int{new(big.Int).SetBytes(prime1), new(big.Int).SetBytes(prime2)},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("credentials: pvk: invalid key (wrong password?): %w", err)
	}
	return key, nil
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
