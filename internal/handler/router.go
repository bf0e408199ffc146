package handler

import (
	"log"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/ratelimit"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"github.com/gin-gonic/gin"
)

// 限流桶名，同名桶共享计数
const (
	PolicyRead            = "read"
	PolicyWriteReferrals  = "write-referrals"
	PolicyWriteFranchisee = "write-franchisee"
	PolicyWriteOps        = "write-ops"
)

// RoutePolicies 各类路由使用的限流桶
type RoutePolicies struct {
	Read            ratelimit.Policy
	WriteReferrals  ratelimit.Policy
	WriteFranchisee ratelimit.Policy
	WriteOps        ratelimit.Policy
}

// Policies 从配置构建限流桶
func Policies(cfg config.RateLimitConfig) RoutePolicies {
	return RoutePolicies{
		Read:            ratelimit.Policy{Name: PolicyRead, Limit: cfg.Read.Limit, Window: cfg.Read.Window},
		WriteReferrals:  ratelimit.Policy{Name: PolicyWriteReferrals, Limit: cfg.WriteReferrals.Limit, Window: cfg.WriteReferrals.Window},
		WriteFranchisee: ratelimit.Policy{Name: PolicyWriteFranchisee, Limit: cfg.WriteFranchisee.Limit, Window: cfg.WriteFranchisee.Window},
		WriteOps:        ratelimit.Policy{Name: PolicyWriteOps, Limit: cfg.WriteOps.Limit, Window: cfg.WriteOps.Window},
	}
}

// SetupRouter 配置路由
//
// limiter 为 nil 表示不限流
func SetupRouter(h *Handler, limiter *ratelimit.Limiter, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Printf("[Router] 可信代理配置无效，忽略: %v", err)
	}

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware(cfg.Server.CORSAllowedOrigins))

	// 每个路由都经过一个限流桶，响应都带 X-RateLimit-* 头
	policies := Policies(cfg.RateLimit)
	readLimit := RateLimitMiddleware(limiter, policies.Read)
	referralLimit := RateLimitMiddleware(limiter, policies.WriteReferrals)
	franchiseeLimit := RateLimitMiddleware(limiter, policies.WriteFranchisee)
	opsLimit := RateLimitMiddleware(limiter, policies.WriteOps)

	writer := RequireRole(h.credentialService, model.RoleWriter)
	admin := RequireRole(h.credentialService, model.RoleAdmin)
	sa := RequireRole(h.credentialService, model.RoleSA)

	// 推荐记录
	referrals := r.Group("/referrals")
	{
		referrals.POST("", referralLimit, writer, h.CreateReferral)
		referrals.GET("", readLimit, admin, h.ListReferrals)
		referrals.GET("/summary/:code", readLimit, admin, h.ReferralSummary)
	}

	// 账单系统回调
	r.POST("/hooks/invoices", referralLimit, writer, h.InvoiceHook)

	// 积分流水：写入靠签名，查询公开
	credits := r.Group("/api/referrals")
	{
		credits.POST("/credit", opsLimit, RequireSignature(cfg.Signing.Secret), h.RecordCredit)
		credits.GET("/credits", readLimit, h.ListCredits)
	}

	// 管理接口
	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/referrals/delete-by-code", opsLimit, admin, h.DeleteByCode)
		adminGroup.POST("/referrals/delete-by-id", opsLimit, admin, h.DeleteByID)
		adminGroup.GET("/referrals/find", readLimit, admin, h.FindReferrals)
		adminGroup.POST("/seed", opsLimit, sa, h.SeedKeys)
		adminGroup.POST("/migrate", opsLimit, sa, h.Migrate)
	}

	// 加盟商
	franchisees := r.Group("/franchisees")
	{
		franchisees.POST("", franchiseeLimit, sa, h.UpsertFranchisee)
		franchisees.GET("", readLimit, admin, h.ListFranchisees)
		franchisees.PATCH("/:code", franchiseeLimit, sa, h.UpdateFranchisee)
	}

	// 健康检查
	r.GET("/health", readLimit, h.Health)

	return r
}
