package handler

import (
	"net/http"
	"strconv"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 积分流水
// ============================================================

// RecordCredit 签名校验通过后入账
// POST /api/referrals/credit
func (h *Handler) RecordCredit(c *gin.Context) {
	var req service.RecordCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	credit, err := h.creditService.RecordCredit(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"id": credit.ID, "credit_no": credit.CreditNo})
}

// ListCredits 公开查询
// GET /api/referrals/credits?refCode=&customerCode=&from=&to=
func (h *Handler) ListCredits(c *gin.Context) {
	credits, err := h.creditService.ListCredits(c.Request.Context(), service.CreditQuery{
		RefCode:      c.Query("refCode"),
		CustomerCode: c.Query("customerCode"),
		From:         c.Query("from"),
		To:           c.Query("to"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	// 沿用账单前端已经在用的格式
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(credits), "data": credits})
}

// ============================================================
// 加盟商
// ============================================================

// UpsertFranchisee 新建或覆盖
// POST /franchisees
func (h *Handler) UpsertFranchisee(c *gin.Context) {
	var req service.UpsertFranchiseeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	f, err := h.franchiseeService.Upsert(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, f)
}

// ListFranchisees GET /franchisees?active=true&q=xxx&limit=200
func (h *Handler) ListFranchisees(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.franchiseeService.List(c.Request.Context(), c.Query("active"), c.Query("q"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"count": len(list), "items": list})
}

// UpdateFranchisee PATCH /franchisees/:code
func (h *Handler) UpdateFranchisee(c *gin.Context) {
	var req service.UpdateFranchiseeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	f, err := h.franchiseeService.Update(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, f)
}
