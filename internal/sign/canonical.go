package sign

import (
	"fmt"
	"sort"
	"strings"
)

// 协议 v1 固定的签名串格式：剔除 sign/sign_type 与空值，
// 键按字典序排列，key=value 以 & 连接。
// 商户侧按同一规则构串，格式不随商户配置变化。

// BuildSignableString 构造待签名串
func BuildSignableString(params map[string]string, exclude ...string) string {
	excluded := map[string]bool{
		"sign":      true,
		"sign_type": true,
	}
	for _, key := range exclude {
		excluded[key] = true
	}
	var keys []string
	for k, v := range params {
		if v == "" {
			continue
		}
		if excluded[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return strings.Join(pairs, "&")
}
