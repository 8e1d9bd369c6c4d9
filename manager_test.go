package repcrec

import (
	"strings"
	"testing"

	"github.com/kartikbazzad/repcrec/site"
)

func newTestManager() *Manager {
	return NewManager(site.DefaultTopology(), nil)
}

func mustOK(t *testing.T, outcome *Outcome, err error) *Outcome {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return outcome
}

// S1 - basic commit/abort: T1 and T2 each write a variable the other reads,
// forming a cycle once both are considered; T1 commits, T2 must abort.
func TestScenarioS1BasicCommitAbort(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	mustOK(t, m.Begin("T2"))
	mustOK(t, m.Write("T1", "x1", 101))
	mustOK(t, m.Write("T2", "x2", 202))

	r2 := mustOK(t, m.Read("T1", "x2"))
	if r2.Kind != OutcomeValue || r2.Value != 20 {
		t.Fatalf("T1 reads x2 = %+v, want value 20", r2)
	}
	r1 := mustOK(t, m.Read("T2", "x1"))
	if r1.Kind != OutcomeValue || r1.Value != 10 {
		t.Fatalf("T2 reads x1 = %+v, want value 10", r1)
	}

	end1 := mustOK(t, m.End("T1"))
	if end1.Kind != OutcomeCommit {
		t.Fatalf("T1 end = %+v, want commit", end1)
	}
	end2 := mustOK(t, m.End("T2"))
	if end2.Kind != OutcomeAbort {
		t.Fatalf("T2 end = %+v, want abort (cycle T1 <-> T2)", end2)
	}
}

// S2 - a read-only transaction's snapshot is unaffected by a site failing
// and recovering after the transaction began.
func TestScenarioS2ReadOnlySnapshotPastFailure(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.BeginRO("T1"))
	mustOK(t, m.Fail(2))
	first := mustOK(t, m.Read("T1", "x2"))
	mustOK(t, m.Recover(2))
	second := mustOK(t, m.Read("T1", "x2"))

	if first.Kind != OutcomeValue || first.Value != 20 {
		t.Fatalf("first read = %+v, want value 20", first)
	}
	if second.Kind != OutcomeValue || second.Value != 20 {
		t.Fatalf("second read = %+v, want value 20", second)
	}
}

// S3 - unreadable after recovery: a replicated variable's recovered site may
// not serve reads until a fresh commit targets it again.
func TestScenarioS3UnreadableAfterRecovery(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	mustOK(t, m.Write("T1", "x4", 400))
	end := mustOK(t, m.End("T1"))
	if end.Kind != OutcomeCommit {
		t.Fatalf("T1 end = %+v, want commit", end)
	}

	mustOK(t, m.Fail(3))
	mustOK(t, m.Recover(3))

	mustOK(t, m.Begin("T2"))
	read := mustOK(t, m.Read("T2", "x4"))
	if read.Kind != OutcomeValue || read.Value != 400 {
		t.Fatalf("T2 reads x4 = %+v, want value 400 from some other up site", read)
	}
	if read.SourceSite == 3 {
		t.Errorf("site 3 should still be unreadable for x4 just after recovery")
	}
}

// S4 - first-committer-wins: the later committer of the same variable must
// abort even though it validated fine up to that point.
func TestScenarioS4FirstCommitterWins(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	mustOK(t, m.Begin("T2"))
	mustOK(t, m.Write("T1", "x6", 61))
	mustOK(t, m.Write("T2", "x6", 62))

	end2 := mustOK(t, m.End("T2"))
	if end2.Kind != OutcomeCommit {
		t.Fatalf("T2 end = %+v, want commit", end2)
	}
	end1 := mustOK(t, m.End("T1"))
	if end1.Kind != OutcomeAbort {
		t.Fatalf("T1 end = %+v, want abort (first-committer-wins)", end1)
	}
}

// S5 - a non-replicated variable's home site failing before end must abort
// the writer even though the write itself succeeded at buffer time.
func TestScenarioS5NonReplicatedHomeFailure(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	w := mustOK(t, m.Write("T1", "x3", 333))
	if len(w.TargetSites) != 1 || w.TargetSites[0] != 4 {
		t.Fatalf("expected x3's only target to be site 4, got %+v", w.TargetSites)
	}
	mustOK(t, m.Fail(4))
	end := mustOK(t, m.End("T1"))
	if end.Kind != OutcomeAbort {
		t.Fatalf("T1 end = %+v, want abort (write site failed)", end)
	}
}

// S6 - dump shape: every site up, every replicated variable at its initial
// value everywhere, every non-replicated variable only at its home site.
func TestScenarioS6DumpShape(t *testing.T) {
	m := newTestManager()
	outcome := m.Dump()
	if outcome.Kind != OutcomeDump {
		t.Fatalf("got %+v", outcome)
	}
	if len(outcome.Dump) != 10 {
		t.Fatalf("expected 10 sites, got %d", len(outcome.Dump))
	}

	for _, row := range outcome.Dump {
		if !row.Up {
			t.Errorf("site %d should be up", row.SiteID)
		}
		var sawX2 bool
		for _, v := range row.Vars {
			if v.Var == "x2" {
				sawX2 = true
				if v.Value != 20 {
					t.Errorf("site %d x2 = %d, want 20", row.SiteID, v.Value)
				}
			}
			if v.Var == "x3" && row.SiteID != 4 {
				t.Errorf("x3 should only be hosted at site 4, found at site %d", row.SiteID)
			}
		}
		if !sawX2 {
			t.Errorf("site %d should host replicated variable x2", row.SiteID)
		}
	}
}

func TestDumpIsIdempotent(t *testing.T) {
	m := newTestManager()
	first := m.Dump()
	second := m.Dump()
	if len(first.Dump) != len(second.Dump) {
		t.Fatalf("two dumps produced different shapes")
	}
	for i := range first.Dump {
		if first.Dump[i].Up != second.Dump[i].Up {
			t.Errorf("site %d up-status differs between dumps", first.Dump[i].SiteID)
		}
	}
}

func TestReadYourWrites(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	mustOK(t, m.Write("T1", "x1", 555))
	read := mustOK(t, m.Read("T1", "x1"))
	if read.Value != 555 || !strings.Contains(read.Message, "write cache") {
		t.Fatalf("read-your-writes failed: %+v", read)
	}
}

func TestDuplicateBeginIsProgrammerError(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	_, err := m.Begin("T1")
	if err == nil {
		t.Fatalf("expected a ProgrammerError for duplicate begin")
	}
	if _, ok := err.(*ProgrammerError); !ok {
		t.Fatalf("expected *ProgrammerError, got %T", err)
	}
}

func TestWriteOnReadOnlyTransactionIsProgrammerError(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.BeginRO("T1"))
	_, err := m.Write("T1", "x1", 1)
	if _, ok := err.(*ProgrammerError); !ok {
		t.Fatalf("expected *ProgrammerError, got %v", err)
	}
}

func TestResetClearsAllState(t *testing.T) {
	m := newTestManager()
	mustOK(t, m.Begin("T1"))
	mustOK(t, m.Fail(1))
	m.Reset()

	_, err := m.Begin("T1")
	if err != nil {
		t.Fatalf("expected T1 to be startable again after Reset, got %v", err)
	}
	dump := m.Dump()
	for _, row := range dump.Dump {
		if row.SiteID == 1 && !row.Up {
			t.Errorf("site 1 should be up again after Reset")
		}
	}
}
