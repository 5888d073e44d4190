package assembler

import (
	"crypto/cipher"
	"fmt"
)

// decryptCBC decrypts one AES-128-CBC segment and strips its PKCS#7
// padding. Each HLS segment is padded independently, so the padding
// check runs per segment, not per stream.
func decryptCBC(block cipher.Block, iv [16]byte, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, data)

	return stripPKCS7(plaintext, block.BlockSize())
}

// stripPKCS7 removes PKCS#7 padding, verifying every padding byte.
func stripPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}

	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding byte %d", b)
		}
	}
	return data[:len(data)-pad], nil
}
