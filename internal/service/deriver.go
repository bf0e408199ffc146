package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 从发票派生推荐记录（尽力而为）
// ============================================================================
//
// 账单系统里发票的字段名并不统一，这里按固定顺序探测候选字段，
// 第一个存在且非空的值生效。任何字段缺失或无法解析时放弃本次派生，只打日志。
//
// 【关键点】这条路径绝不能影响账单主流程：
//   - 不返回错误，不阻塞调用方
//   - 提交在独立 goroutine 中进行，带超时，panic 也会被捕获
//   - 提交结果（成功 / 重复 / 失败）只记录日志
//
// ============================================================================

// ReferralFieldProbe 一个推荐字段的候选来源，按顺序探测
type ReferralFieldProbe struct {
	Field      string
	Candidates []string
}

var (
	// ReferralProbes 推荐字段 -> 发票字段候选
	ReferralProbes = []ReferralFieldProbe{
		{Field: "referrer_customer_code", Candidates: []string{"referrer_customer_code", "referral_code", "customer_referral_code"}},
		{Field: "referred_invoice_code", Candidates: []string{"invoice_number", "invoice_no", "inv_no", "bill_no", "id"}},
		{Field: "franchisee_code", Candidates: []string{"franchisee_code", "franchise_code"}},
		{Field: "invoice_amount_inr", Candidates: []string{"total_with_gst", "total_amount", "grand_total"}},
		{Field: "invoice_date", Candidates: []string{"created_at", "invoice_date", "date", "createdon", "created_on"}},
	}

	// 没有含税总额时，用 税前金额 + 税额 计算
	subtotalCandidates = []string{"total_before_gst", "subtotal_ex_gst", "subtotal", "amount_before_tax"}
	taxCandidates      = []string{"gst_amount", "tax_amount", "gst_value"}

	dateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		model.DateLayout,
	}
)

func probeCandidates(field string) []string {
	for _, p := range ReferralProbes {
		if p.Field == field {
			return p.Candidates
		}
	}
	return nil
}

// pick 第一个存在且去掉空白后非空的值
func pick(invoice map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		v, ok := invoice[k]
		if !ok || v == nil {
			continue
		}
		if strings.TrimSpace(toText(v)) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func toText(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case int32:
		return decimal.NewFromInt32(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

// deriveAmount 含税总额优先，否则 税前 + 税额（缺的部分按 0）
func deriveAmount(invoice map[string]interface{}) (decimal.Decimal, bool) {
	var amount decimal.Decimal
	if v, ok := pick(invoice, probeCandidates("invoice_amount_inr")); ok {
		d, ok := toDecimal(v)
		if !ok {
			return decimal.Zero, false
		}
		amount = d
	} else {
		sub, tax := decimal.Zero, decimal.Zero
		if v, ok := pick(invoice, subtotalCandidates); ok {
			d, ok := toDecimal(v)
			if !ok {
				return decimal.Zero, false
			}
			sub = d
		}
		if v, ok := pick(invoice, taxCandidates); ok {
			d, ok := toDecimal(v)
			if !ok {
				return decimal.Zero, false
			}
			tax = d
		}
		amount = sub.Add(tax)
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// NormalizeDate 各种日期写法统一成 UTC 的 YYYY-MM-DD；数字按毫秒时间戳处理
func NormalizeDate(v interface{}) (string, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.UTC().Format(model.DateLayout), true
	case model.Date:
		return x.String(), !x.IsZero()
	case float64, float32, int, int64, int32, json.Number:
		d, ok := toDecimal(x)
		if !ok {
			return "", false
		}
		return fromEpochMillis(d.IntPart())
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(ms)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(model.DateLayout), true
			}
		}
	}
	return "", false
}

func fromEpochMillis(ms int64) (string, bool) {
	if ms <= 0 {
		return "", false
	}
	return time.UnixMilli(ms).UTC().Format(model.DateLayout), true
}

// DeriveReferral 从发票探测出推荐请求，返回缺失的字段
func DeriveReferral(invoice map[string]interface{}) (*CreateReferralRequest, []string) {
	req := &CreateReferralRequest{}
	var missing []string

	text := func(field string) string {
		v, ok := pick(invoice, probeCandidates(field))
		if !ok {
			missing = append(missing, field)
			return ""
		}
		return strings.TrimSpace(toText(v))
	}

	req.ReferrerCustomerCode = text("referrer_customer_code")
	req.ReferredInvoiceCode = text("referred_invoice_code")
	req.FranchiseeCode = text("franchisee_code")

	if amount, ok := deriveAmount(invoice); ok {
		req.InvoiceAmountINR = amount
	} else {
		missing = append(missing, "invoice_amount_inr")
	}

	date := ""
	if v, ok := pick(invoice, probeCandidates("invoice_date")); ok {
		date, ok = NormalizeDate(v)
		if !ok {
			date = ""
		}
	}
	if date == "" {
		missing = append(missing, "invoice_date")
	}
	req.InvoiceDate = date

	return req, missing
}

// ReferralDeriver 发票 -> 推荐记录的异步派生器
type ReferralDeriver struct {
	submitter ReferralSubmitter
	enabled   bool
	debug     bool
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewReferralDeriver(submitter ReferralSubmitter, enabled, debug bool, timeout time.Duration) *ReferralDeriver {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &ReferralDeriver{
		submitter: submitter,
		enabled:   enabled,
		debug:     debug,
		timeout:   timeout,
	}
}

// SendForInvoice 派生并异步提交，返回是否已发起提交
//
// 不返回错误，调用方不需要也不应该关心结果
func (d *ReferralDeriver) SendForInvoice(invoice map[string]interface{}) (dispatched bool) {
	if !d.enabled {
		if d.debug {
			log.Println("[ReferralDeriver] 未启用，跳过")
		}
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ReferralDeriver] 派生异常: %v", r)
			dispatched = false
		}
	}()

	req, missing := DeriveReferral(invoice)
	if len(missing) > 0 {
		if d.debug {
			log.Printf("[ReferralDeriver] 字段缺失，跳过: missing=%v", missing)
		}
		return false
	}

	d.wg.Add(1)
	go d.submit(req)
	return true
}

func (d *ReferralDeriver) submit(req *CreateReferralRequest) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ReferralDeriver] 提交异常: invoice=%s, err=%v", req.ReferredInvoiceCode, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ref, err := d.submitter.Submit(ctx, req)
	switch {
	case errors.Is(err, ErrDuplicateReferral):
		if d.debug {
			log.Printf("[ReferralDeriver] 发票已有推荐记录: invoice=%s", req.ReferredInvoiceCode)
		}
	case err != nil:
		log.Printf("[ReferralDeriver] 提交失败: invoice=%s, err=%v", req.ReferredInvoiceCode, err)
	default:
		if d.debug {
			log.Printf("[ReferralDeriver] 提交成功: invoice=%s, id=%d, reward=%s",
				ref.ReferredInvoiceCode, ref.ID, ref.ReferralRewardINR.StringFixed(2))
		}
	}
}

// Wait 等待进行中的提交完成，优雅关闭时调用
func (d *ReferralDeriver) Wait() {
	d.wg.Wait()
}
