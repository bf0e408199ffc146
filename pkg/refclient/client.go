// Package refclient 调用推荐服务的 HTTP 客户端
package refclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/signature"

	"github.com/shopspring/decimal"
)

const (
	// APIKeyHeader 写入接口使用的鉴权头
	APIKeyHeader   = "X-REF-API-KEY"
	defaultTimeout = 1500 * time.Millisecond
)

var (
	ErrNoBaseURL   = errors.New("未配置推荐服务地址")
	ErrNoWriterKey = errors.New("未配置写入 key")
	ErrNoSecret    = errors.New("未配置签名密钥")
	// ErrUpstream 网络错误、超时、无法解析的响应
	ErrUpstream = errors.New("推荐服务调用失败")
)

// APIError 对端返回了非 2xx
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("推荐服务返回 %d: %s %s", e.StatusCode, e.Code, e.Message)
}

// IsConflict 对端认为记录已存在
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

type Config struct {
	BaseURL    string
	WriterKey  string
	SigningKey string
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	writerKey  string
	signingKey string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		writerKey:  cfg.WriterKey,
		signingKey: cfg.SigningKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ReferralPayload POST /referrals 的请求体
type ReferralPayload struct {
	ReferrerCustomerCode string          `json:"referrer_customer_code"`
	ReferredInvoiceCode  string          `json:"referred_invoice_code"`
	FranchiseeCode       string          `json:"franchisee_code"`
	InvoiceAmountINR     decimal.Decimal `json:"invoice_amount_inr"`
	InvoiceDate          string          `json:"invoice_date"`
}

// ReferralResult 写入成功后对端返回的记录
type ReferralResult struct {
	ID                   int64           `json:"id"`
	ReferrerCustomerCode string          `json:"referrer_customer_code"`
	ReferredInvoiceCode  string          `json:"referred_invoice_code"`
	FranchiseeCode       string          `json:"franchisee_code"`
	InvoiceAmountINR     decimal.Decimal `json:"invoice_amount_inr"`
	ReferralRewardINR    decimal.Decimal `json:"referral_reward_inr"`
	InvoiceDate          string          `json:"invoice_date"`
}

// CreditPayload POST /api/referrals/credit 的请求体
type CreditPayload struct {
	InvoiceID    string          `json:"invoiceId,omitempty"`
	CustomerCode string          `json:"customerCode"`
	RefCode      string          `json:"refCode"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	GST          decimal.Decimal `json:"gst"`
	Litres       decimal.Decimal `json:"litres"`
	CreatedAt    string          `json:"createdAt,omitempty"`
}

type CreditResult struct {
	ID       int64  `json:"id"`
	CreditNo string `json:"credit_no"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// PostReferral 提交一条推荐记录
func (c *Client) PostReferral(ctx context.Context, p ReferralPayload) (*ReferralResult, error) {
	if c.baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if c.writerKey == "" {
		return nil, ErrNoWriterKey
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var out ReferralResult
	headers := map[string]string{APIKeyHeader: c.writerKey}
	if err := c.post(ctx, "/referrals", body, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostCredit 提交一条签名的积分流水
func (c *Client) PostCredit(ctx context.Context, p CreditPayload) (*CreditResult, error) {
	if c.baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if c.signingKey == "" {
		return nil, ErrNoSecret
	}

	sig, body, err := signature.SignJSON(p, c.signingKey)
	if err != nil {
		return nil, err
	}

	var out CreditResult
	headers := map[string]string{signature.HeaderName: sig}
	if err := c.post(ctx, "/api/referrals/credit", body, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: 读取响应失败: %v", ErrUpstream, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: 解析响应失败: %v", ErrUpstream, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Error, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: 解析响应数据失败: %v", ErrUpstream, err)
		}
	}
	return nil
}
