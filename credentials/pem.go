package credentials

import (
	"crypto/x509"
	"encoding/pem"
)

// pemDecode returns the first PEM block in data, or nil if data isn't PEM
// (the caller then treats it as raw DER).
func pemDecode(data []byte) *pem.Block {
	block, _ := pem.Decode(data)
	return block
}

func isEncryptedPEM(block *pem.Block) bool {
	//lint:ignore SA1019 legacy "ENCRYPTED PRIVATE KEY"-less PEM (DEK-Info
	// header) is exactly what osslsigncode's -key/-pass combination expects.
	return x509.IsEncryptedPEMBlock(block)
}

func decryptPEM(block *pem.Block, password string) ([]byte, error) {
	//lint:ignore SA1019 see isEncryptedPEM.
	return x509.DecryptPEMBlock(block, []byte(password))
}
