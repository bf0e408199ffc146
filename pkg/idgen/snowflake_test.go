package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestNewRejectsWorkerOutOfRange(t *testing.T) {
	if _, err := New(-1); err == nil {
		t.Error("expected error for -1")
	}
	if _, err := New(maxWorkerID + 1); err == nil {
		t.Error("expected error for maxWorkerID+1")
	}
	if _, err := New(maxWorkerID); err != nil {
		t.Errorf("maxWorkerID should be accepted: %v", err)
	}
}

func TestGenerateUniqueConcurrent(t *testing.T) {
	g, err := New(3)
	if err != nil {
		t.Fatal(err)
	}

	const n = 5000
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/10; j++ {
				ids <- g.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateCreditNo(t *testing.T) {
	a, b := GenerateCreditNo(), GenerateCreditNo()
	if !strings.HasPrefix(a, "CRD") || len(a) != len("CRD")+14+8 {
		t.Errorf("credit no = %q", a)
	}
	if a == b {
		t.Errorf("credit numbers should differ: %s", a)
	}
}
