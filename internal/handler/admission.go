package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/ratelimit"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/response"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/signature"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// 准入中间件：限流 -> 鉴权 / 签名 -> 业务
// ============================================================================

const (
	APIKeyHeader       = "X-REF-API-KEY"
	LegacyAPIKeyHeader = "X-API-KEY"
	SignatureHeader    = signature.HeaderName

	ctxRole    = "role"
	ctxRawBody = "raw_body"

	maxSignedBody = 1 << 20
)

// KeyVerifier API Key 校验
type KeyVerifier interface {
	Verify(ctx context.Context, presented string, allowed ...model.Role) (model.Role, error)
}

// RateLimitMiddleware 按客户端 IP 限流，limiter 为 nil 时不限流
func RateLimitMiddleware(limiter *ratelimit.Limiter, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		res := limiter.Admit(policy, c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		reset := resetUnix(res.ResetAt)
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
			response.Abort(c, http.StatusTooManyRequests, response.ErrRateLimited, "请求过于频繁，请稍后重试", gin.H{
				"name":                policy.Name,
				"retry_after_seconds": res.RetryAfterSeconds,
				"reset_unix":          reset,
			})
			return
		}
		c.Next()
	}
}

// resetUnix 窗口结束时间向上取整到秒
func resetUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}

func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}
	return c.GetHeader(LegacyAPIKeyHeader)
}

// RequireRole 校验 API Key，角色等级需不低于 allowed 之一
//
// 存储出错时拒绝请求（fail-closed）
func RequireRole(verifier KeyVerifier, allowed ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := verifier.Verify(c.Request.Context(), presentedKey(c), allowed...)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrMissingKey):
				response.Abort(c, http.StatusUnauthorized, response.ErrMissingAPIKey, "缺少 API Key", nil)
			case errors.Is(err, service.ErrInvalidKey):
				response.Abort(c, http.StatusUnauthorized, response.ErrInvalidAPIKey, "API Key 无效", nil)
			case errors.Is(err, service.ErrForbidden):
				response.Abort(c, http.StatusForbidden, response.ErrForbidden, "权限不足", nil)
			default:
				log.Printf("[Auth] 鉴权失败: path=%s, err=%v", c.Request.URL.Path, err)
				response.Abort(c, http.StatusInternalServerError, response.ErrAuth, "鉴权服务不可用", nil)
			}
			return
		}
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireSignature 校验请求体签名
//
// 【关键点】校验的是原始字节；校验通过后把 body 放回去，后续 Bind 读到的是同一份字节
func RequireSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSignedBody))
		if err != nil {
			response.Abort(c, http.StatusRequestEntityTooLarge, response.ErrValidation, "请求体过大或读取失败", nil)
			return
		}

		if secret == "" {
			log.Println("[Signature] 未配置签名密钥，拒绝所有签名请求")
		}
		if !signature.Verify(body, secret, c.GetHeader(SignatureHeader)) {
			response.Abort(c, http.StatusUnauthorized, response.ErrBadSignature, "签名校验失败", nil)
			return
		}

		c.Set(ctxRawBody, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
