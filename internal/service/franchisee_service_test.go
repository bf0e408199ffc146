package service

import (
	"context"
	"errors"
	"testing"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/testutil"
)

func newFranchiseeService(t *testing.T) *FranchiseeService {
	t.Helper()
	return NewFranchiseeService(repository.NewFranchiseeRepository(testutil.NewDB(t)))
}

func TestFranchiseeUpsert(t *testing.T) {
	svc := newFranchiseeService(t)
	ctx := context.Background()

	f, err := svc.Upsert(ctx, &UpsertFranchiseeRequest{Code: " MAXTT-DEL-001 ", Name: "Delhi North"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if f.Code != "MAXTT-DEL-001" || !f.Active {
		t.Fatalf("franchisee = %+v, want trimmed code and active by default", f)
	}

	inactive := false
	f, err = svc.Upsert(ctx, &UpsertFranchiseeRequest{Code: "MAXTT-DEL-001", Name: "Delhi North 2", Active: &inactive})
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if f.Name != "Delhi North 2" || f.Active {
		t.Fatalf("franchisee = %+v, want overwritten", f)
	}

	_, err = svc.Upsert(ctx, &UpsertFranchiseeRequest{Code: "X", ContactEmail: "not-an-email"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{"code", "name", "contact_email"} {
		if !ve.Has(field) {
			t.Errorf("missing error for %s in %v", field, ve.Fields)
		}
	}
}

func TestFranchiseeList(t *testing.T) {
	svc := newFranchiseeService(t)
	ctx := context.Background()

	inactive := false
	for _, req := range []*UpsertFranchiseeRequest{
		{Code: "MAXTT-DEL-001", Name: "Delhi North"},
		{Code: "MAXTT-MUM-001", Name: "Mumbai Central"},
		{Code: "MAXTT-DEL-002", Name: "Delhi South", Active: &inactive},
	} {
		if _, err := svc.Upsert(ctx, req); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cases := []struct {
		name   string
		active string
		q      string
		limit  int
		want   []string
	}{
		{"all ordered by code", "", "", 0, []string{"MAXTT-DEL-001", "MAXTT-DEL-002", "MAXTT-MUM-001"}},
		{"active only", "true", "", 0, []string{"MAXTT-DEL-001", "MAXTT-MUM-001"}},
		{"inactive only", "false", "", 0, []string{"MAXTT-DEL-002"}},
		{"search name", "", "delhi", 0, []string{"MAXTT-DEL-001", "MAXTT-DEL-002"}},
		{"search with active", "true", "delhi", 0, []string{"MAXTT-DEL-001"}},
		{"search code", "", "mum", 0, []string{"MAXTT-MUM-001"}},
		{"bad active ignored", "maybe", "", 0, []string{"MAXTT-DEL-001", "MAXTT-DEL-002", "MAXTT-MUM-001"}},
		{"limit", "", "", 1, []string{"MAXTT-DEL-001"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := svc.List(ctx, tc.active, tc.q, tc.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var got []string
			for _, f := range list {
				got = append(got, f.Code)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("codes = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("codes = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestFranchiseeUpdate(t *testing.T) {
	svc := newFranchiseeService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, &UpsertFranchiseeRequest{Code: "MAXTT-DEL-001", Name: "Delhi North", ContactPhone: "111"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	inactive := false
	phone := "999"
	f, err := svc.Update(ctx, "MAXTT-DEL-001", &UpdateFranchiseeRequest{ContactPhone: &phone, Active: &inactive})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.ContactPhone != "999" || f.Active || f.Name != "Delhi North" {
		t.Fatalf("franchisee = %+v", f)
	}

	if _, err := svc.Update(ctx, "MAXTT-DEL-001", &UpdateFranchiseeRequest{}); !errors.Is(err, ErrNoFieldsToUpdate) {
		t.Fatalf("err = %v, want ErrNoFieldsToUpdate", err)
	}
	if _, err := svc.Update(ctx, "MAXTT-XXX-404", &UpdateFranchiseeRequest{ContactPhone: &phone}); !errors.Is(err, repository.ErrFranchiseeNotFound) {
		t.Fatalf("err = %v, want ErrFranchiseeNotFound", err)
	}
}
