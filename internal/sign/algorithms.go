package sign

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/paygate-next/internal/constants"

	"github.com/emmansun/gmsm/sm3"
	"golang.org/x/crypto/sha3"
)

var (
	ErrSignModeUnsupported = errors.New("sign mode unsupported")
	ErrSignModeMismatch    = errors.New("sign mode mismatch")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrKeyInvalid          = errors.New("key material invalid")
)

// Material 商户签名材料
type Material struct {
	Mode         string // 商户固定的签名方式（open 表示任意支持的方式）
	HashKey      string // 摘要签名密钥
	SymmetricKey string // 报文对称密钥（hex）
	PublicKeyPEM string // 验签公钥（rsa2）
	PrivateKey   string // 签名私钥（rsa2，平台侧出签用）
}

// Sign 按指定方式对签名串出签
func Sign(mode, content string, material Material) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case constants.SignModeMD5:
		return signMD5(content + material.HashKey), nil
	case constants.SignModeSHA3:
		return signSHA3(content + material.HashKey), nil
	case constants.SignModeSM3:
		return signSM3(content + material.HashKey), nil
	case constants.SignModeRSA2:
		return signRSA(content, material.PrivateKey)
	default:
		return "", fmt.Errorf("%w: %s", ErrSignModeUnsupported, mode)
	}
}

// VerifyWith 按指定方式校验签名
func VerifyWith(mode, content, signature string, material Material) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureInvalid
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case constants.SignModeMD5:
		if !strings.EqualFold(signMD5(content+material.HashKey), signature) {
			return ErrSignatureInvalid
		}
	case constants.SignModeSHA3:
		if !strings.EqualFold(signSHA3(content+material.HashKey), signature) {
			return ErrSignatureInvalid
		}
	case constants.SignModeSM3:
		if !strings.EqualFold(signSM3(content+material.HashKey), signature) {
			return ErrSignatureInvalid
		}
	case constants.SignModeRSA2:
		return verifyRSA(content, signature, material.PublicKeyPEM)
	default:
		return fmt.Errorf("%w: %s", ErrSignModeUnsupported, mode)
	}
	return nil
}

// Verify 按商户模式校验签名：open 接受任意支持方式，否则请求方式必须与商户方式一致
func Verify(requestMode, content, signature string, material Material) error {
	requestMode = strings.ToLower(strings.TrimSpace(requestMode))
	if !IsSupportedMode(requestMode) {
		return fmt.Errorf("%w: %s", ErrSignModeUnsupported, requestMode)
	}
	pinned := strings.ToLower(strings.TrimSpace(material.Mode))
	if pinned != constants.SignModeOpen && pinned != requestMode {
		return fmt.Errorf("%w: merchant requires %s", ErrSignModeMismatch, pinned)
	}
	return VerifyWith(requestMode, content, signature, material)
}

// IsSupportedMode 判断请求方的签名方式是否受支持（open 仅作为商户配置，不作为请求方式）
func IsSupportedMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case constants.SignModeMD5, constants.SignModeSHA3, constants.SignModeSM3, constants.SignModeRSA2:
		return true
	}
	return false
}

// PreferredMode 出签时的实际方式：open 商户用 md5
func PreferredMode(mode string) string {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == constants.SignModeOpen || normalized == "" {
		return constants.SignModeMD5
	}
	return normalized
}

func signMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func signSHA3(content string) string {
	sum := sha3.Sum256([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func signSM3(content string) string {
	h := sm3.New()
	h.Write([]byte(content))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func signRSA(content, privateKey string) (string, error) {
	key, err := ParseRSAPrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	hashed := sha256.Sum256([]byte(content))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

func verifyRSA(content, signature, publicKey string) error {
	key, err := ParseRSAPublicKey(publicKey)
	if err != nil {
		return ErrSignatureInvalid
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrSignatureInvalid
	}
	hashed := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], raw); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
