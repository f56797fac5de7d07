package sign

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/emmansun/gmsm/sm4"
)

var ErrDecryptFailed = errors.New("decrypt failed")

// EncryptSM4 SM4-CBC 加密，IV 前置，整体 base64
func EncryptSM4(plaintext []byte, hexKey string) (string, error) {
	block, err := newSM4Cipher(hexKey)
	if err != nil {
		return "", err
	}
	iv := make([]byte, sm4.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, sm4.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

// DecryptSM4 解开 IV 前置的 SM4-CBC base64 密文
func DecryptSM4(envelope string, hexKey string) ([]byte, error) {
	block, err := newSM4Cipher(hexKey)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrDecryptFailed)
	}
	if len(raw) < sm4.BlockSize*2 || len(raw)%sm4.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad length", ErrDecryptFailed)
	}
	iv, ciphertext := raw[:sm4.BlockSize], raw[sm4.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	unpadded, err := pkcs7Unpad(plaintext, sm4.BlockSize)
	if err != nil {
		return nil, err
	}
	return unpadded, nil
}

func newSM4Cipher(hexKey string) (cipher.Block, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != sm4.BlockSize {
		return nil, ErrKeyInvalid
	}
	block, err := sm4.NewCipher(key)
	if err != nil {
		return nil, ErrKeyInvalid
	}
	return block, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptFailed)
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptFailed)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptFailed)
		}
	}
	return data[:len(data)-padding], nil
}
