package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateReferralRequest 严格写入的请求体，五个字段都必须合法
type CreateReferralRequest struct {
	ReferrerCustomerCode string          `json:"referrer_customer_code" validate:"required,min=3,max=32"`
	ReferredInvoiceCode  string          `json:"referred_invoice_code" validate:"required,min=3,max=64"`
	FranchiseeCode       string          `json:"franchisee_code" validate:"required,min=3,max=32"`
	InvoiceAmountINR     decimal.Decimal `json:"invoice_amount_inr" validate:"required,gt=0"`
	InvoiceDate          string          `json:"invoice_date" validate:"required,datetime=2006-01-02"`

	// typeErrs 解码时类型不对的字段
	typeErrs *ValidationError
}

// UnmarshalJSON 逐字段解码，类型错误记到对应字段上，不中断其他字段
//
// 【关键点】整体不是 JSON 对象时才返回错误；
// 单个字段类型不对（如金额传 "abc"、日期传数字）留给 Validate 一起报告
func (r *CreateReferralRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = CreateReferralRequest{typeErrs: &ValidationError{}}
	fields := []struct {
		name   string
		target interface{}
	}{
		{"referrer_customer_code", &r.ReferrerCustomerCode},
		{"referred_invoice_code", &r.ReferredInvoiceCode},
		{"franchisee_code", &r.FranchiseeCode},
		{"invoice_amount_inr", &r.InvoiceAmountINR},
		{"invoice_date", &r.InvoiceDate},
	}
	for _, f := range fields {
		value, ok := raw[f.name]
		if !ok || string(value) == "null" {
			continue
		}
		if err := json.Unmarshal(value, f.target); err != nil {
			r.typeErrs.Add(f.name, "type", "类型不正确")
		}
	}
	return nil
}

func (r *CreateReferralRequest) normalize() {
	r.ReferrerCustomerCode = strings.TrimSpace(r.ReferrerCustomerCode)
	r.ReferredInvoiceCode = strings.TrimSpace(r.ReferredInvoiceCode)
	r.FranchiseeCode = strings.TrimSpace(r.FranchiseeCode)
	r.InvoiceDate = strings.TrimSpace(r.InvoiceDate)
}

// Validate 返回所有不合法的字段，包括解码时类型不对的字段
func (r *CreateReferralRequest) Validate() error {
	r.normalize()
	ruleErrs := validateStruct(r)
	if r.typeErrs == nil || len(r.typeErrs.Fields) == 0 {
		return ruleErrs.OrNil()
	}

	ve := &ValidationError{Fields: append([]FieldError(nil), r.typeErrs.Fields...)}
	for _, f := range ruleErrs.Fields {
		if !ve.Has(f.Field) {
			ve.Fields = append(ve.Fields, f)
		}
	}
	return ve
}

type ReferralService struct {
	db           *gorm.DB
	referralRepo *repository.ReferralRepository
	outboxRepo   *repository.OutboxRepository
	topic        string
}

// NewReferralService Kafka 未启用时不写 outbox
func NewReferralService(db *gorm.DB, cfg *config.Config) *ReferralService {
	s := &ReferralService{
		db:           db,
		referralRepo: repository.NewReferralRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
	if cfg != nil && cfg.Kafka.Enabled {
		s.topic = cfg.Kafka.Topic.ReferralCredited
	}
	return s
}

// CreateReferral 校验、计算奖励、幂等写入
//
// 【流程】
//  1. 校验全部字段，有问题一次性返回 ValidationError
//  2. 金额保留两位小数后计算奖励
//  3. ON CONFLICT DO NOTHING 写入，影响行数为 0 说明发票已存在，返回 ErrDuplicateReferral
//  4. 同一事务内写入 outbox 消息
func (s *ReferralService) CreateReferral(ctx context.Context, req *CreateReferralRequest) (*model.Referral, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	invoiceDate, err := model.ParseDate(req.InvoiceDate)
	if err != nil {
		return nil, NewValidationError("invoice_date", "datetime", "日期不合法")
	}

	amount := req.InvoiceAmountINR.Round(2)
	if !amount.IsPositive() {
		return nil, NewValidationError("invoice_amount_inr", "gt", "必须大于 0")
	}

	ref := &model.Referral{
		ReferrerCustomerCode: req.ReferrerCustomerCode,
		ReferredInvoiceCode:  req.ReferredInvoiceCode,
		FranchiseeCode:       req.FranchiseeCode,
		InvoiceAmountINR:     amount,
		ReferralRewardINR:    ComputeReward(amount),
		InvoiceDate:          invoiceDate,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		inserted, err := s.referralRepo.CreateIfAbsent(ctx, tx, ref)
		if err != nil {
			return fmt.Errorf("写入推荐记录失败: %w", err)
		}
		if !inserted {
			return ErrDuplicateReferral
		}

		if s.topic == "" {
			return nil
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":                  "referral.credited",
			"id":                     ref.ID,
			"referrer_customer_code": ref.ReferrerCustomerCode,
			"referred_invoice_code":  ref.ReferredInvoiceCode,
			"franchisee_code":        ref.FranchiseeCode,
			"invoice_amount_inr":     ref.InvoiceAmountINR.StringFixed(2),
			"referral_reward_inr":    ref.ReferralRewardINR.StringFixed(2),
			"invoice_date":           ref.InvoiceDate.String(),
			"credited_at":            time.Now().UTC().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: ref.ReferredInvoiceCode,
			Topic:      s.topic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReferral) {
			log.Printf("[Referral] 发票已存在推荐记录: invoice=%s", req.ReferredInvoiceCode)
		}
		return nil, err
	}

	log.Printf("[Referral] 推荐记录写入成功: id=%d, invoice=%s, referrer=%s, reward=%s",
		ref.ID, ref.ReferredInvoiceCode, ref.ReferrerCustomerCode, ref.ReferralRewardINR.StringFixed(2))
	return ref, nil
}

// GetByInvoiceCode 按发票号查询
func (s *ReferralService) GetByInvoiceCode(ctx context.Context, code string) (*model.Referral, error) {
	return s.referralRepo.GetByInvoiceCode(ctx, strings.TrimSpace(code))
}
