package sign

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
)

var (
	ErrTimestampInvalid  = errors.New("timestamp invalid")
	ErrReplayWindow      = errors.New("timestamp outside replay window")
	ErrBizContentInvalid = errors.New("biz_content invalid")
)

// Request 商户 API 的公共入参
type Request struct {
	MerchantNo      string `form:"merchant_no" json:"merchant_no"`
	Timestamp       string `form:"timestamp" json:"timestamp"`
	SignType        string `form:"sign_type" json:"sign_type"`
	Sign            string `form:"sign" json:"sign"`
	BizContent      string `form:"biz_content" json:"biz_content"`
	EncryptionParam string `form:"encryption_param" json:"encryption_param"`
}

// ReplayKey 重放缓存键：同一 merchant_no|timestamp|sign 在窗口内只接受一次
func (r Request) ReplayKey() string {
	return r.MerchantNo + "|" + r.Timestamp + "|" + r.Sign
}

// CheckTimestamp 重放窗口校验：|now − timestamp| 超过 600 秒拒绝，恰好 600 秒接受
func CheckTimestamp(timestamp string, now time.Time) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil || ts <= 0 {
		return ErrTimestampInvalid
	}
	diff := now.Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	if diff > constants.ReplayWindowSeconds {
		return fmt.Errorf("%w: skew %ds", ErrReplayWindow, diff)
	}
	return nil
}

// VerifyRequest 校验商户请求并返回解密解码后的业务参数。
// 顺序：重放窗口 → 报文解密（如有）→ 签名校验 → 业务参数解码。
// 业务字段只从解出的报文读取，不信任任何明文副本。
func VerifyRequest(req Request, material Material, now time.Time) (map[string]interface{}, error) {
	if err := CheckTimestamp(req.Timestamp, now); err != nil {
		return nil, err
	}

	payload := []byte(nil)
	switch strings.ToUpper(strings.TrimSpace(req.EncryptionParam)) {
	case "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.BizContent))
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64", ErrBizContentInvalid)
		}
		payload = decoded
	case constants.EncryptionParamSM4:
		decrypted, err := DecryptSM4(strings.TrimSpace(req.BizContent), material.SymmetricKey)
		if err != nil {
			return nil, err
		}
		payload = decrypted
	default:
		return nil, fmt.Errorf("%w: encryption_param %s", ErrBizContentInvalid, req.EncryptionParam)
	}

	content := BuildSignableString(map[string]string{
		"merchant_no":      req.MerchantNo,
		"timestamp":        req.Timestamp,
		"biz_content":      req.BizContent,
		"encryption_param": req.EncryptionParam,
	})
	if err := Verify(req.SignType, content, req.Sign, material); err != nil {
		return nil, err
	}

	var biz map[string]interface{}
	if err := json.Unmarshal(payload, &biz); err != nil {
		return nil, fmt.Errorf("%w: bad json", ErrBizContentInvalid)
	}
	return biz, nil
}

// SignParams 对参数表出签（通知投递、响应签名），返回所用方式与签名
func SignParams(params map[string]string, material Material) (mode string, signature string, err error) {
	mode = PreferredMode(material.Mode)
	content := BuildSignableString(params)
	signature, err = Sign(mode, content, material)
	if err != nil {
		return "", "", err
	}
	return mode, signature, nil
}
