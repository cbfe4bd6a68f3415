package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wa-flows.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkProcessedDedup(t *testing.T) {
	s := testStore(t)

	dup, err := s.MarkProcessed("wamid.1", "+628111111111")
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("first mark reported duplicate")
	}

	dup, err = s.MarkProcessed("wamid.1", "+628111111111")
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Fatal("second mark not reported duplicate")
	}

	dup, err = s.MarkProcessed("wamid.2", "+628111111111")
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("distinct id reported duplicate")
	}
}

func TestDedupSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wa-flows.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkProcessed("wamid.persist", "+62"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	dup, err := s2.MarkProcessed("wamid.persist", "+62")
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Fatal("dedup lost across reopen")
	}
}

func TestRecordCompletion(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 3; i++ {
		if err := s.RecordCompletion("tok", "LOAN_FLOW_ID_1", "complete_loan_request"); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CompletionCount("LOAN_FLOW_ID_1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("completion count = %d, want 3", n)
	}

	n, err = s.CompletionCount("OTHER")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("completion count = %d, want 0", n)
	}
}

func TestPruneProcessed(t *testing.T) {
	s := testStore(t)

	if _, err := s.MarkProcessed("wamid.old", "+62"); err != nil {
		t.Fatal(err)
	}

	// keep=0 prunes everything recorded before now.
	time.Sleep(10 * time.Millisecond)
	pruned, err := s.PruneProcessed(0)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	dup, err := s.MarkProcessed("wamid.old", "+62")
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("pruned id still reported duplicate")
	}
}
