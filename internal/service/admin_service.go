package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
)

const (
	listReferralLimit  = 500
	defaultFindLimit   = 50
	maxFindLimit       = 200
	invoiceCodeMinPad  = 4
	franchiseePrefix   = "MAXTT-"
	summaryByFranchise = "franchisee_code"
	summaryByCustomer  = "referrer_customer_code"
)

var numericCode = regexp.MustCompile(`^\d+$`)

// InvoiceCodeCandidates 发票号的候选写法：原样，纯数字时再加上补零到 4 位的写法
//
//	"54" -> ["54", "0054"]
func InvoiceCodeCandidates(code string) []string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	out := []string{code}
	if numericCode.MatchString(code) && len(code) < invoiceCodeMinPad {
		out = append(out, strings.Repeat("0", invoiceCodeMinPad-len(code))+code)
	}
	return out
}

// DeleteResult 删除结果
type DeleteResult struct {
	Deleted      int64    `json:"deleted"`
	Candidates   []string `json:"candidates,omitempty"`
	MonthApplied bool     `json:"month_applied"`
}

// AdminService 推荐记录的查询、汇总和人工删除
type AdminService struct {
	referralRepo *repository.ReferralRepository
}

func NewAdminService(referralRepo *repository.ReferralRepository) *AdminService {
	return &AdminService{referralRepo: referralRepo}
}

// monthRange 空字符串表示不限月份，格式错误返回 ValidationError
func monthRange(month string) (*repository.DateRange, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return nil, nil
	}
	from, to, err := model.MonthRange(month)
	if err != nil {
		return nil, NewValidationError("month", "datetime", "格式必须是 YYYY-MM")
	}
	return &repository.DateRange{From: from, To: to}, nil
}

// ListReferrals 指定月份时返回该月全部记录，不传月份时只返回最近 500 条
func (s *AdminService) ListReferrals(ctx context.Context, month string) ([]*model.Referral, error) {
	dr, err := monthRange(month)
	if err != nil {
		return nil, err
	}
	limit := listReferralLimit
	if dr != nil {
		limit = 0
	}
	return s.referralRepo.List(ctx, dr, limit)
}

// Summary MAXTT- 开头（区分大小写）的按加盟商汇总，否则按推荐客户汇总
func (s *AdminService) Summary(ctx context.Context, code, month string) (*repository.ReferralSummary, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, NewValidationError("code", "required", "必填")
	}
	dr, err := monthRange(month)
	if err != nil {
		return nil, err
	}

	column := summaryByCustomer
	if strings.HasPrefix(code, franchiseePrefix) {
		column = summaryByFranchise
	}
	return s.referralRepo.Summarize(ctx, column, code, dr)
}

// DeleteByCode 按发票号删除，纯数字发票号同时匹配补零写法
func (s *AdminService) DeleteByCode(ctx context.Context, code, month string) (*DeleteResult, error) {
	candidates := InvoiceCodeCandidates(code)
	if len(candidates) == 0 {
		return nil, NewValidationError("code", "required", "必填")
	}
	dr, err := monthRange(month)
	if err != nil {
		return nil, err
	}

	n, err := s.referralRepo.DeleteByInvoiceCodes(ctx, candidates, dr)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Deleted: n, Candidates: candidates, MonthApplied: dr != nil}, nil
}

func (s *AdminService) DeleteByID(ctx context.Context, id int64, month string) (*DeleteResult, error) {
	if id <= 0 {
		return nil, NewValidationError("id", "gt", "必须是正整数")
	}
	dr, err := monthRange(month)
	if err != nil {
		return nil, err
	}

	n, err := s.referralRepo.DeleteByID(ctx, id, dr)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Deleted: n, MonthApplied: dr != nil}, nil
}

// Find 删除前确认用；id 优先于 code
func (s *AdminService) Find(ctx context.Context, code string, id int64, limit int) ([]*model.Referral, error) {
	if id > 0 {
		return s.referralRepo.FindByID(ctx, id)
	}
	candidates := InvoiceCodeCandidates(code)
	if len(candidates) == 0 {
		return nil, NewValidationError("code", "required", "code 和 id 至少传一个")
	}
	return s.referralRepo.FindByInvoiceCodes(ctx, candidates, clampLimit(limit, defaultFindLimit, maxFindLimit))
}
