package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/testutil"

	"github.com/shopspring/decimal"
)

func TestInvoiceCodeCandidates(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"54", []string{"54", "0054"}},
		{" 7 ", []string{"7", "0007"}},
		{"0054", []string{"0054"}},
		{"12345", []string{"12345"}},
		{"INV-54", []string{"INV-54"}},
		{"", nil},
	}
	for _, tc := range cases {
		if got := InvoiceCodeCandidates(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("InvoiceCodeCandidates(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

type adminFixture struct {
	referrals *ReferralService
	admin     *AdminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &adminFixture{
		referrals: NewReferralService(db, nil),
		admin:     NewAdminService(repository.NewReferralRepository(db)),
	}

	seed := []struct {
		referrer, invoice, franchisee, amount, date string
	}{
		{"C01", "0054", "MAXTT-DEL-001", "1000", "2025-01-15"},
		{"C01", "INV-02", "MAXTT-DEL-001", "1250", "2025-01-31"},
		{"C02", "INV-03", "MAXTT-MUM-001", "5000", "2025-02-01"},
	}
	for _, s := range seed {
		_, err := f.referrals.CreateReferral(context.Background(), &CreateReferralRequest{
			ReferrerCustomerCode: s.referrer,
			ReferredInvoiceCode:  s.invoice,
			FranchiseeCode:       s.franchisee,
			InvoiceAmountINR:     decimal.RequireFromString(s.amount),
			InvoiceDate:          s.date,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", s.invoice, err)
		}
	}
	return f
}

func TestAdminListReferralsByMonth(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	jan, err := f.admin.ListReferrals(ctx, "2025-01")
	if err != nil {
		t.Fatalf("ListReferrals: %v", err)
	}
	if len(jan) != 2 {
		t.Fatalf("january = %d, want 2", len(jan))
	}
	// 最新的在前
	if jan[0].ReferredInvoiceCode != "INV-02" {
		t.Fatalf("first = %s, want INV-02", jan[0].ReferredInvoiceCode)
	}

	all, _ := f.admin.ListReferrals(ctx, "")
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	var ve *ValidationError
	if _, err := f.admin.ListReferrals(ctx, "2025-13"); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestAdminSummary(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	byCustomer, err := f.admin.Summary(ctx, "C01", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if byCustomer.Count != 2 || !byCustomer.TotalReward.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("customer summary = %+v, want 2 / 50", byCustomer)
	}

	byFranchisee, err := f.admin.Summary(ctx, "MAXTT-DEL-001", "2025-01")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if byFranchisee.Count != 2 {
		t.Fatalf("franchisee summary = %+v, want 2", byFranchisee)
	}

	empty, err := f.admin.Summary(ctx, "C01", "2024-12")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if empty.Count != 0 || !empty.TotalReward.IsZero() {
		t.Fatalf("empty summary = %+v", empty)
	}
}

func TestAdminListReferralsMonthIsUncapped(t *testing.T) {
	db := testutil.NewDB(t)
	admin := NewAdminService(repository.NewReferralRepository(db))
	ctx := context.Background()

	march := model.NewDate(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	refs := make([]*model.Referral, 0, listReferralLimit+1)
	for i := 0; i <= listReferralLimit; i++ {
		refs = append(refs, &model.Referral{
			ReferrerCustomerCode: "C01",
			ReferredInvoiceCode:  fmt.Sprintf("INV-%04d", i),
			FranchiseeCode:       "F01",
			InvoiceAmountINR:     decimal.NewFromInt(1000),
			ReferralRewardINR:    decimal.NewFromInt(20),
			InvoiceDate:          march,
		})
	}
	if err := db.CreateInBatches(refs, 100).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	inMonth, err := admin.ListReferrals(ctx, "2025-03")
	if err != nil {
		t.Fatalf("ListReferrals: %v", err)
	}
	if len(inMonth) != listReferralLimit+1 {
		t.Fatalf("month = %d, want %d", len(inMonth), listReferralLimit+1)
	}

	recent, err := admin.ListReferrals(ctx, "")
	if err != nil {
		t.Fatalf("ListReferrals: %v", err)
	}
	if len(recent) != listReferralLimit {
		t.Fatalf("recent = %d, want %d", len(recent), listReferralLimit)
	}
}

func TestAdminSummaryPrefixIsCaseSensitive(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	req := validRequest("INV-LOWER")
	req.ReferrerCustomerCode = "maxtt-c09"
	if _, err := f.referrals.CreateReferral(ctx, req); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}

	// 小写前缀按推荐客户汇总
	summary, err := f.admin.Summary(ctx, "maxtt-c09", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Count != 1 {
		t.Fatalf("summary = %+v, want 1 row by customer", summary)
	}

	upper, err := f.admin.Summary(ctx, "MAXTT-C09", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if upper.Count != 0 {
		t.Fatalf("summary = %+v, want 0 rows by franchisee", upper)
	}
}

func TestAdminDeleteByCodeMatchesPaddedCode(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	found, err := f.admin.Find(ctx, "54", 0, 0)
	if err != nil || len(found) != 1 {
		t.Fatalf("Find = %d, %v", len(found), err)
	}

	// 月份不匹配时不删除
	res, err := f.admin.DeleteByCode(ctx, "54", "2025-02")
	if err != nil {
		t.Fatalf("DeleteByCode: %v", err)
	}
	if res.Deleted != 0 || !res.MonthApplied {
		t.Fatalf("result = %+v, want nothing deleted", res)
	}

	res, err = f.admin.DeleteByCode(ctx, "54", "2025-01")
	if err != nil {
		t.Fatalf("DeleteByCode: %v", err)
	}
	if res.Deleted != 1 || !reflect.DeepEqual(res.Candidates, []string{"54", "0054"}) {
		t.Fatalf("result = %+v", res)
	}

	if _, err := f.referrals.GetByInvoiceCode(ctx, "0054"); !errors.Is(err, repository.ErrReferralNotFound) {
		t.Fatalf("err = %v, want ErrReferralNotFound", err)
	}
}

func TestAdminDeleteByID(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	ref, _ := f.referrals.GetByInvoiceCode(ctx, "INV-03")

	found, err := f.admin.Find(ctx, "", ref.ID, 0)
	if err != nil || len(found) != 1 {
		t.Fatalf("Find by id = %d, %v", len(found), err)
	}

	res, err := f.admin.DeleteByID(ctx, ref.ID, "")
	if err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if res.Deleted != 1 || res.MonthApplied {
		t.Fatalf("result = %+v", res)
	}

	res, _ = f.admin.DeleteByID(ctx, ref.ID, "")
	if res.Deleted != 0 {
		t.Fatalf("second delete = %d, want 0", res.Deleted)
	}

	var ve *ValidationError
	if _, err := f.admin.DeleteByID(ctx, 0, ""); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, err := f.admin.Find(ctx, "", 0, 0); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
