package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/logger"
)

// MarkReplay 记录一个请求指纹，窗口内重复出现返回 false。
// 时间戳窗口是硬校验，这里只负责窗口内的去重；
// Redis 不可用时放行，不让缓存故障阻断商户请求。
func MarkReplay(ctx context.Context, fingerprint string) bool {
	if !Enabled() {
		return true
	}
	sum := sha256.Sum256([]byte(fingerprint))
	key := buildKey("replay:" + hex.EncodeToString(sum[:]))
	ttl := time.Duration(constants.ReplayWindowSeconds) * time.Second

	ok, err := Client().SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		logger.Warnw("replay_cache_unavailable", "error", err)
		return true
	}
	return ok
}
