// Package signature 服务间调用的请求体签名
//
// 签名格式：sha256=<hex(HMAC-SHA256(secret, body))>
//
// 【关键点】签名针对的是原始字节，接收方必须用收到的原始 body 校验，
// 不能先反序列化再序列化，否则字段顺序、空格的差异都会导致签名不一致
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	// Prefix 签名前缀
	Prefix = "sha256="
	// HeaderName 签名所在的请求头
	HeaderName = "X-REF-SIG"
)

// Sign 计算签名
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// SignJSON 序列化并签名，返回签名和实际签名的字节，发送方必须原样发送这些字节
func SignJSON(v interface{}, secret string) (string, []byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return Sign(body, secret), body, nil
}

// Verify 常量时间比较，任何格式问题都返回 false
func Verify(body []byte, secret, presented string) bool {
	if secret == "" {
		return false
	}
	presented = strings.TrimSpace(presented)
	if !strings.HasPrefix(presented, Prefix) {
		return false
	}
	got, err := hex.DecodeString(presented[len(Prefix):])
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
