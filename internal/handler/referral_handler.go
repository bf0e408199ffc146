package handler

import (
	"strconv"
	"strings"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 推荐记录
// ============================================================

// CreateReferral 严格写入
// POST /referrals
func (h *Handler) CreateReferral(c *gin.Context) {
	var req service.CreateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ref, err := h.referralService.CreateReferral(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, ref)
}

// InvoiceHook 账单系统推送发票，异步派生推荐记录，立即返回
// POST /hooks/invoices
func (h *Handler) InvoiceHook(c *gin.Context) {
	var invoice map[string]interface{}
	if err := c.ShouldBindJSON(&invoice); err != nil {
		bindError(c, err)
		return
	}

	dispatched := h.deriver.SendForInvoice(invoice)
	response.Accepted(c, gin.H{"dispatched": dispatched})
}

// ListReferrals 按月份列出
// GET /referrals?month=YYYY-MM
func (h *Handler) ListReferrals(c *gin.Context) {
	refs, err := h.adminService.ListReferrals(c.Request.Context(), c.Query("month"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"count": len(refs), "items": refs})
}

// ReferralSummary 按客户或加盟商汇总
// GET /referrals/summary/:code?month=YYYY-MM
func (h *Handler) ReferralSummary(c *gin.Context) {
	summary, err := h.adminService.Summary(c.Request.Context(), c.Param("code"), c.Query("month"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}

// ============================================================
// 管理接口
// ============================================================

type deleteByCodeRequest struct {
	Code  string `json:"code"`
	Month string `json:"month"`
}

// DeleteByCode 按发票号删除
// POST /admin/referrals/delete-by-code
func (h *Handler) DeleteByCode(c *gin.Context) {
	var req deleteByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.adminService.DeleteByCode(c.Request.Context(), req.Code, req.Month)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

type deleteByIDRequest struct {
	// id 可以是数字也可以是数字字符串
	ID    service.FlexibleID `json:"id"`
	Month string             `json:"month"`
}

// DeleteByID 按主键删除
// POST /admin/referrals/delete-by-id
func (h *Handler) DeleteByID(c *gin.Context) {
	var req deleteByIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	id, err := strconv.ParseInt(strings.TrimSpace(string(req.ID)), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, service.NewValidationError("id", "int", "id 必须是正整数"))
		return
	}

	res, err := h.adminService.DeleteByID(c.Request.Context(), id, req.Month)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

// FindReferrals 删除前确认
// GET /admin/referrals/find?code=xxx&limit=50 或 ?id=123
func (h *Handler) FindReferrals(c *gin.Context) {
	var id int64
	if raw := strings.TrimSpace(c.Query("id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			h.fail(c, service.NewValidationError("id", "int", "id 必须是正整数"))
			return
		}
		id = parsed
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	refs, err := h.adminService.Find(c.Request.Context(), c.Query("code"), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"count":      len(refs),
		"items":      refs,
		"candidates": service.InvoiceCodeCandidates(c.Query("code")),
	})
}
