package mvcc

import "testing"

func TestNewListSeedsInitialVersion(t *testing.T) {
	l := NewList(50)
	v, ok := l.AsOf(0)
	if !ok {
		t.Fatalf("expected initial version to exist at time 0")
	}
	if v.Value != 50 || v.Writer != T0 || v.CommitTime != 0 {
		t.Errorf("unexpected initial version: %+v", v)
	}
}

func TestAsOfPicksGreatestCommitAtOrBeforeTimestamp(t *testing.T) {
	l := NewList(10)
	l.Append(Version{Value: 20, Writer: "T1", CommitTime: 5})
	l.Append(Version{Value: 30, Writer: "T2", CommitTime: 10})

	cases := []struct {
		ts   int64
		want int64
	}{
		{0, 10},
		{4, 10},
		{5, 20},
		{9, 20},
		{10, 30},
		{100, 30},
	}
	for _, c := range cases {
		v, ok := l.AsOf(c.ts)
		if !ok {
			t.Fatalf("AsOf(%d): expected a version", c.ts)
		}
		if v.Value != c.want {
			t.Errorf("AsOf(%d) = %d, want %d", c.ts, v.Value, c.want)
		}
	}
}

func TestAppendKeepsSortedOrderEvenOutOfOrder(t *testing.T) {
	l := NewList(1)
	l.Append(Version{Value: 3, Writer: "T2", CommitTime: 8})
	l.Append(Version{Value: 2, Writer: "T1", CommitTime: 4})

	snap := l.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].CommitTime >= snap[i].CommitTime {
			t.Fatalf("version list not strictly sorted: %+v", snap)
		}
	}
}

func TestLatestReturnsMostRecentCommit(t *testing.T) {
	l := NewList(10)
	l.Append(Version{Value: 99, Writer: "T1", CommitTime: 3})
	if got := l.Latest().Value; got != 99 {
		t.Errorf("Latest().Value = %d, want 99", got)
	}
}
