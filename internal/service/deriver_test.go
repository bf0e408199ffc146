package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/testutil"

	"github.com/shopspring/decimal"
)

func TestDeriveReferralProbesCandidates(t *testing.T) {
	invoice := map[string]interface{}{
		"referral_code":   "C01",
		"invoice_no":      "INV-100",
		"id":              "ignored-because-invoice_no-wins",
		"franchise_code":  "F01",
		"grand_total":     "1,180.00",
		"total_amount":    "",
		"invoice_date":    "2025-02-03T18:30:00Z",
		"created_at":      nil,
		"unrelated_field": 42,
	}

	req, missing := DeriveReferral(invoice)
	if len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
	if req.ReferrerCustomerCode != "C01" || req.ReferredInvoiceCode != "INV-100" || req.FranchiseeCode != "F01" {
		t.Fatalf("codes = %+v", req)
	}
	if !req.InvoiceAmountINR.Equal(decimal.NewFromInt(1180)) {
		t.Fatalf("amount = %s, want 1180", req.InvoiceAmountINR)
	}
	if req.InvoiceDate != "2025-02-03" {
		t.Fatalf("date = %s", req.InvoiceDate)
	}
}

func TestDeriveReferralAmountFallback(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"referrer_customer_code": "C01",
			"invoice_number":         float64(54),
			"franchisee_code":        "F01",
			"date":                   "2025-01-15",
		}
	}

	cases := []struct {
		name   string
		extra  map[string]interface{}
		want   string
		wantOK bool
	}{
		{"subtotal plus tax", map[string]interface{}{"subtotal": 1000.0, "gst_amount": "180"}, "1180", true},
		{"subtotal only", map[string]interface{}{"total_before_gst": "850.5"}, "850.5", true},
		{"total wins", map[string]interface{}{"total_with_gst": 2000.0, "subtotal": 1.0}, "2000", true},
		{"unparseable total", map[string]interface{}{"total_with_gst": "abc", "subtotal": 1000.0}, "", false},
		{"zero", map[string]interface{}{"total_with_gst": 0.0}, "", false},
		{"nothing", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := base()
			for k, v := range tc.extra {
				inv[k] = v
			}
			req, missing := DeriveReferral(inv)
			gotMissing := len(missing) == 1 && missing[0] == "invoice_amount_inr"
			if tc.wantOK {
				if len(missing) != 0 {
					t.Fatalf("missing = %v", missing)
				}
				if !req.InvoiceAmountINR.Equal(decimal.RequireFromString(tc.want)) {
					t.Fatalf("amount = %s, want %s", req.InvoiceAmountINR, tc.want)
				}
			} else if !gotMissing {
				t.Fatalf("missing = %v, want [invoice_amount_inr]", missing)
			}
			if req.ReferredInvoiceCode != "54" {
				t.Fatalf("invoice code = %q", req.ReferredInvoiceCode)
			}
		})
	}
}

func TestDeriveReferralReportsMissing(t *testing.T) {
	_, missing := DeriveReferral(map[string]interface{}{
		"invoice_number": "INV-1",
		"grand_total":    100.0,
		"created_at":     "not a date",
	})
	want := []string{"referrer_customer_code", "franchisee_code", "invoice_date"}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in     interface{}
		want   string
		wantOK bool
	}{
		{"2025-01-15", "2025-01-15", true},
		{"2025-01-15 10:20:30", "2025-01-15", true},
		{"2025-01-15T23:30:00+05:30", "2025-01-15", true},
		{"2025-01-15T00:30:00+05:30", "2025-01-14", true},
		{float64(1736899200000), "2025-01-15", true},
		{"1736899200000", "2025-01-15", true},
		{json.Number("1736899200000"), "2025-01-15", true},
		{time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC), "2025-01-15", true},
		{"15/01/2025", "", false},
		{"", "", false},
		{float64(0), "", false},
		{true, "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeDate(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("NormalizeDate(%v) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []*CreateReferralRequest
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, req *CreateReferralRequest) (*model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &model.Referral{ID: int64(len(s.reqs)), ReferredInvoiceCode: req.ReferredInvoiceCode}, nil
}

func completeInvoice(code string) map[string]interface{} {
	return map[string]interface{}{
		"referrer_customer_code": "C01",
		"invoice_number":         code,
		"franchisee_code":        "F01",
		"total_with_gst":         1000.0,
		"created_at":             "2025-01-15T10:00:00Z",
	}
}

func TestReferralDeriverDispatch(t *testing.T) {
	sub := &recordingSubmitter{}
	d := NewReferralDeriver(sub, true, true, time.Second)

	if !d.SendForInvoice(completeInvoice("INV-01")) {
		t.Fatal("complete invoice not dispatched")
	}
	if d.SendForInvoice(map[string]interface{}{"invoice_number": "INV-02"}) {
		t.Fatal("incomplete invoice dispatched")
	}
	d.Wait()

	if len(sub.reqs) != 1 || sub.reqs[0].ReferredInvoiceCode != "INV-01" {
		t.Fatalf("submitted = %+v", sub.reqs)
	}
}

func TestReferralDeriverDisabled(t *testing.T) {
	sub := &recordingSubmitter{}
	d := NewReferralDeriver(sub, false, false, time.Second)
	if d.SendForInvoice(completeInvoice("INV-01")) {
		t.Fatal("disabled deriver dispatched")
	}
	d.Wait()
	if len(sub.reqs) != 0 {
		t.Fatalf("submitted = %d, want 0", len(sub.reqs))
	}
}

type panickingSubmitter struct{}

func (panickingSubmitter) Submit(context.Context, *CreateReferralRequest) (*model.Referral, error) {
	panic("boom")
}

func TestReferralDeriverSwallowsFailures(t *testing.T) {
	failing := NewReferralDeriver(&recordingSubmitter{err: errors.New("upstream down")}, true, false, time.Second)
	failing.SendForInvoice(completeInvoice("INV-01"))
	failing.Wait()

	crashing := NewReferralDeriver(panickingSubmitter{}, true, false, time.Second)
	if !crashing.SendForInvoice(completeInvoice("INV-02")) {
		t.Fatal("not dispatched")
	}
	crashing.Wait()
}

func TestReferralDeriverLocalSubmitterIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	d := NewReferralDeriver(NewLocalSubmitter(NewReferralService(db, nil)), true, false, time.Second)

	d.SendForInvoice(completeInvoice("INV-09"))
	d.Wait()
	d.SendForInvoice(completeInvoice("INV-09"))
	d.Wait()

	var refs []model.Referral
	db.Find(&refs)
	if len(refs) != 1 {
		t.Fatalf("rows = %d, want 1", len(refs))
	}
	if !refs[0].ReferralRewardINR.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("reward = %s", refs[0].ReferralRewardINR)
	}
}
