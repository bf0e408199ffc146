package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/database"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	db                *gorm.DB
	cfg               *config.Config
	credentialService *service.CredentialService
	referralService   *service.ReferralService
	adminService      *service.AdminService
	creditService     *service.CreditService
	franchiseeService *service.FranchiseeService
	deriver           *service.ReferralDeriver
	outboxRepo        *repository.OutboxRepository
}

// NewHandler 创建处理器实例
//
// 凭证服务和派生器有自己的生命周期（启动初始化 / 优雅关闭），由调用方创建后传入
func NewHandler(db *gorm.DB, cfg *config.Config, credentialService *service.CredentialService,
	referralService *service.ReferralService, deriver *service.ReferralDeriver) *Handler {
	return &Handler{
		db:                db,
		cfg:               cfg,
		credentialService: credentialService,
		referralService:   referralService,
		adminService:      service.NewAdminService(repository.NewReferralRepository(db)),
		creditService:     service.NewCreditService(db, cfg),
		franchiseeService: service.NewFranchiseeService(repository.NewFranchiseeRepository(db)),
		deriver:           deriver,
		outboxRepo:        repository.NewOutboxRepository(db),
	}
}

// fail 把业务错误映射成 HTTP 响应，未知错误只在日志里保留细节
func (h *Handler) fail(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ParamError(c, "参数校验失败", gin.H{"fields": ve.Fields})
	case errors.Is(err, service.ErrDuplicateReferral):
		response.Error(c, http.StatusConflict, response.ErrDuplicate, "该发票已存在推荐记录", nil)
	case errors.Is(err, repository.ErrFranchiseeNotFound):
		response.NotFound(c, "加盟商不存在")
	case errors.Is(err, service.ErrNoFieldsToUpdate):
		response.Error(c, http.StatusBadRequest, response.ErrNoFieldsUpdated, "没有需要更新的字段", nil)
	default:
		log.Printf("[Handler] 处理失败: %s %s, err=%v", c.Request.Method, c.Request.URL.Path, err)
		response.ServerError(c, response.ErrDB)
	}
}

// bindError 请求体无法解析
func bindError(c *gin.Context, err error) {
	response.ParamError(c, "请求体格式错误", gin.H{
		"fields": []service.FieldError{{Field: "_", Rule: "json", Message: err.Error()}},
	})
}

// ============================================================
// 运维接口
// ============================================================

// Health 健康检查
// GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Printf("[Health] 数据库不可用: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "db": "down"})
		return
	}

	pending, err := h.outboxRepo.CountByStatus(ctx, model.OutboxStatusPending)
	if err != nil {
		pending = -1
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"db":             "up",
		"outbox_pending": pending,
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

// SeedKeys 按当前配置重新初始化 API Key
// POST /admin/seed
func (h *Handler) SeedKeys(c *gin.Context) {
	summary := h.credentialService.EnsureCredentials(c.Request.Context(), service.RoleSecrets{
		Writer: h.cfg.Auth.WriterKey,
		Admin:  h.cfg.Auth.AdminKey,
		SA:     h.cfg.Auth.SAKey,
	})
	response.Success(c, summary)
}

// Migrate 执行表结构迁移
// POST /admin/migrate
func (h *Handler) Migrate(c *gin.Context) {
	if err := database.Migrate(h.db.WithContext(c.Request.Context())); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"migrated": true})
}
