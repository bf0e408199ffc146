package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maxCreditList 单次查询最多返回的条数
const maxCreditList = 1000

// FlexibleID 发票号可能是数字也可能是字符串，统一存成字符串
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invoiceId 必须是数字或字符串: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// RecordCreditRequest 积分入账请求，字段比推荐记录宽松
type RecordCreditRequest struct {
	InvoiceID    FlexibleID          `json:"invoiceId" validate:"max=64"`
	CustomerCode string              `json:"customerCode" validate:"required,max=64"`
	RefCode      string              `json:"refCode" validate:"required,max=64"`
	Subtotal     decimal.NullDecimal `json:"subtotal"`
	GST          decimal.NullDecimal `json:"gst"`
	Litres       decimal.NullDecimal `json:"litres"`
	CreatedAt    string              `json:"createdAt"`
}

// CreditQuery 查询参数，全部是原始字符串，无法解析的时间边界直接忽略
type CreditQuery struct {
	RefCode      string
	CustomerCode string
	From         string
	To           string
}

type CreditService struct {
	db         *gorm.DB
	creditRepo *repository.CreditRepository
	outboxRepo *repository.OutboxRepository
	topic      string
	now        func() time.Time
}

func NewCreditService(db *gorm.DB, cfg *config.Config) *CreditService {
	s := &CreditService{
		db:         db,
		creditRepo: repository.NewCreditRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		now:        time.Now,
	}
	if cfg != nil && cfg.Kafka.Enabled {
		s.topic = cfg.Kafka.Topic.CreditRecorded
	}
	return s
}

// RecordCredit 追加一条积分流水，返回带 credit_no 的记录
func (s *CreditService) RecordCredit(ctx context.Context, req *RecordCreditRequest) (*model.Credit, error) {
	req.CustomerCode = strings.TrimSpace(req.CustomerCode)
	req.RefCode = strings.TrimSpace(req.RefCode)

	ve := validateStruct(req)
	now := s.now().UTC()
	createdAt := now
	if strings.TrimSpace(req.CreatedAt) != "" {
		t, ok := parseInstant(req.CreatedAt)
		if !ok {
			ve.Add("createdAt", "datetime", "时间格式不正确")
		} else {
			createdAt = t
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	credit := &model.Credit{
		CreditNo:     idgen.GenerateCreditNo(),
		InvoiceID:    string(req.InvoiceID),
		CustomerCode: req.CustomerCode,
		RefCode:      req.RefCode,
		Subtotal:     roundNull(req.Subtotal, 2),
		GST:          roundNull(req.GST, 2),
		Litres:       roundNull(req.Litres, 3),
		CreatedAt:    createdAt,
		TS:           now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.creditRepo.Create(ctx, tx, credit); err != nil {
			return fmt.Errorf("写入积分流水失败: %w", err)
		}
		if s.topic == "" {
			return nil
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":         "credit.recorded",
			"id":            credit.ID,
			"credit_no":     credit.CreditNo,
			"invoice_id":    credit.InvoiceID,
			"customer_code": credit.CustomerCode,
			"ref_code":      credit.RefCode,
			"subtotal":      credit.Subtotal,
			"gst":           credit.GST,
			"litres":        credit.Litres,
			"created_at":    credit.CreatedAt.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: credit.CreditNo,
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
		return nil, err
	}

	log.Printf("[Credit] 积分流水写入成功: id=%d, creditNo=%s, refCode=%s, customer=%s",
		credit.ID, credit.CreditNo, credit.RefCode, credit.CustomerCode)
	return credit, nil
}

// ListCredits 按推荐码、客户码、时间窗口过滤，最新的在前
//
// from 包含，to 不包含；to 只有日期时覆盖当天整天
func (s *CreditService) ListCredits(ctx context.Context, q CreditQuery) ([]*model.Credit, error) {
	f := repository.CreditFilter{
		RefCode:      strings.TrimSpace(q.RefCode),
		CustomerCode: strings.TrimSpace(q.CustomerCode),
		Limit:        maxCreditList,
	}
	if t, ok := parseBound(q.From, false); ok {
		f.From = &t
	}
	if t, ok := parseBound(q.To, true); ok {
		f.To = &t
	}
	return s.creditRepo.List(ctx, f)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseBound(s string, upper bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		if upper {
			return t.AddDate(0, 0, 1), true
		}
		return t, true
	}
	return parseInstant(s)
}

func roundNull(d decimal.NullDecimal, places int32) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(places))
}
