package payment

import (
	"crypto/aes"
	"encoding/base64"
	"errors"
	"fmt"
)

// The provider mandates AES-256-ECB with a pre-shared string key and no IV.
// The stdlib deliberately ships no ECB mode, so the block loop lives here.

// callbackKeyBytes pads or truncates the pre-shared key to the 32 bytes
// AES-256 needs, matching how openssl treats short string keys.
func callbackKeyBytes(key string) []byte {
	out := make([]byte, 32)
	copy(out, key)
	return out
}

func decryptAESECB(key string, b64 string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	block, err := aes.NewCipher(callbackKeyBytes(key))
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ct) == 0 || len(ct)%bs != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	pt := make([]byte, len(ct))
	for i := 0; i < len(ct); i += bs {
		block.Decrypt(pt[i:i+bs], ct[i:i+bs])
	}
	return pkcs7Unpad(pt, bs)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
