// Package site implements the per-site multiversion storage and the
// available-copies replication protocol: each Site tracks its own up/down
// status and a version history per variable it hosts, and a Registry owns
// all sites plus the variable-to-site(s) mapping derived from the
// replication rule.
//
// The Site/Registry split mirrors the teacher's raft.Node/pool.Pool pair —
// one participant's local mutable state (Site), and a fixed
// membership of participants that the caller fans work out to (Registry) —
// repurposed from consensus participants and pooled connections to storage
// replicas.
package site

import (
	"fmt"
	"sort"

	"github.com/kartikbazzad/repcrec/mvcc"
)

// Never is the sentinel value for last-fail-time / last-recover-time before
// either has ever happened.
const Never int64 = -1

// Site is one replica in the cluster. It stores the variables assigned to it
// (every replicated variable, plus whichever non-replicated variables call
// it home) and tracks its own availability.
type Site struct {
	ID int

	up              bool
	lastFailTime    int64
	lastRecoverTime int64

	versions map[string]*mvcc.List
	current  map[string]int64

	// replicated records, for each variable hosted here, whether it is a
	// replicated variable (present at every site) or this site's private
	// non-replicated variable.
	replicated map[string]bool

	order []string // variables hosted here, in x<N> numeric order, for dump rendering
}

// New creates a site numbered id, hosting the given variables with their
// initial values (x<N> -> 10*N) and their replicated-ness.
func New(id int, vars map[string]bool, initial map[string]int64) *Site {
	s := &Site{
		ID:              id,
		up:              true,
		lastFailTime:    Never,
		lastRecoverTime: Never,
		versions:        make(map[string]*mvcc.List),
		current:         make(map[string]int64),
		replicated:      make(map[string]bool),
	}
	for name, isReplicated := range vars {
		s.versions[name] = mvcc.NewList(initial[name])
		s.current[name] = initial[name]
		s.replicated[name] = isReplicated
		s.order = append(s.order, name)
	}
	sort.Slice(s.order, func(i, j int) bool { return varIndex(s.order[i]) < varIndex(s.order[j]) })
	return s
}

func varIndex(name string) int {
	var n int
	fmt.Sscanf(name, "x%d", &n)
	return n
}

// IsUp reports whether the site is currently reachable.
func (s *Site) IsUp() bool { return s.up }

// LastFailTime returns the clock reading of the site's most recent failure,
// or Never.
func (s *Site) LastFailTime() int64 { return s.lastFailTime }

// LastRecoverTime returns the clock reading of the site's most recent
// recovery, or Never.
func (s *Site) LastRecoverTime() int64 { return s.lastRecoverTime }

// Hosts reports whether this site stores var at all.
func (s *Site) Hosts(varName string) bool {
	_, ok := s.versions[varName]
	return ok
}

// Fail marks the site down at time now. Version history is retained; only
// availability changes.
func (s *Site) Fail(now int64) {
	s.up = false
	s.lastFailTime = now
}

// Recover marks the site up at time now. Every replicated variable hosted
// here has its displayed current value rewound to the version last
// committed strictly before the failure (if any) — the reference's behavior
// of discarding whatever the failed site might have believed its value was
// and falling back to what every other replica agreed on at the moment it
// went down. Readability of those variables is gated separately, by the
// continuity check in SnapshotVersionAt.
func (s *Site) Recover(now int64) {
	s.up = true
	s.lastRecoverTime = now

	for name, isReplicated := range s.replicated {
		if !isReplicated {
			continue
		}
		if s.lastFailTime != Never {
			if v, ok := s.versions[name].Before(s.lastFailTime); ok {
				s.current[name] = v.Value
			}
		}
	}
}

// CommitWrite appends a new version for var and updates its current value.
func (s *Site) CommitWrite(varName string, val int64, writer mvcc.TxnID, commitTime int64) {
	list, ok := s.versions[varName]
	if !ok {
		return
	}
	list.Append(mvcc.Version{Value: val, Writer: writer, CommitTime: commitTime})
	s.current[varName] = val
}

// SnapshotAt implements §4.2's snapshot_at: the value of var visible to a
// reader whose transaction started at ts, or false if none is available
// from this site.
func (s *Site) SnapshotAt(varName string, ts int64) (int64, bool) {
	v, ok := s.SnapshotVersionAt(varName, ts)
	return v.Value, ok
}

// SnapshotVersionAt is SnapshotAt's full-version counterpart: it returns the
// whole version (value and commit time), so a caller recording read_set can
// use the commit time it actually observed instead of re-deriving it.
func (s *Site) SnapshotVersionAt(varName string, ts int64) (mvcc.Version, bool) {
	if !s.up {
		return mvcc.Version{}, false
	}
	list, ok := s.versions[varName]
	if !ok {
		return mvcc.Version{}, false
	}

	if !s.replicated[varName] {
		return list.AsOf(ts)
	}

	v, ok := list.AsOf(ts)
	if !ok {
		// Unreachable once NewList has seeded an initial version at time
		// 0 and ts >= 0, but kept for fidelity with the continuity rule
		// applied to a site with no qualifying commit at all.
		if s.continuouslyUpThrough(ts) {
			return list.Latest(), true
		}
		return mvcc.Version{}, false
	}

	// Unreadable if the site failed strictly between the chosen version's
	// commit and the reader's start — the "unreadable after recovery"
	// rule falls naturally out of this continuity check.
	if s.lastFailTime != Never && s.lastFailTime > v.CommitTime && s.lastFailTime < ts {
		return mvcc.Version{}, false
	}
	return v, true
}

func (s *Site) continuouslyUpThrough(ts int64) bool {
	return s.lastFailTime == Never || (s.lastFailTime < ts && s.lastRecoverTime > s.lastFailTime)
}

// DumpView returns the variable/value pairs presently hosted at this site,
// in x<N> numeric order, for `dump()` rendering. It returns nil if the site
// is down.
func (s *Site) DumpView() []VarValue {
	if !s.up {
		return nil
	}
	out := make([]VarValue, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, VarValue{Var: name, Value: s.current[name]})
	}
	return out
}

// VarValue is one (variable, current value) pair in a site's dump view.
type VarValue struct {
	Var   string
	Value int64
}

// Reset restores the site to its freshly-created state: up, with every
// hosted variable back to its initial version.
func (s *Site) Reset(initial map[string]int64) {
	s.up = true
	s.lastFailTime = Never
	s.lastRecoverTime = Never
	for name := range s.versions {
		s.versions[name] = mvcc.NewList(initial[name])
		s.current[name] = initial[name]
	}
}
