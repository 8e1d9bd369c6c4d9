// Package repcrec is the transaction manager: it orchestrates begin, read,
// write, end, fail, recover and dump against the sites and serialization
// graph, exactly as spec'd in §4.3–4.7. It is the composite-value owner the
// design notes call for — one struct holding the clock, the site registry,
// the graph, and every live transaction — rather than package-level
// singletons.
package repcrec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kartikbazzad/repcrec/audit"
	"github.com/kartikbazzad/repcrec/clock"
	"github.com/kartikbazzad/repcrec/graph"
	"github.com/kartikbazzad/repcrec/mvcc"
	"github.com/kartikbazzad/repcrec/site"
	"github.com/kartikbazzad/repcrec/txn"
)

// Manager owns all mutable system state and is the only thing that mutates
// it. A sync.Mutex guards every public method for API safety, even though
// the scheduling model (§5) never suspends mid-operation and a single
// caller goroutine is the common case.
type Manager struct {
	mu sync.Mutex

	topology site.Topology
	clock    *clock.Clock
	registry *site.Registry
	graph    *graph.Graph
	audit    *audit.Logger

	txns  map[txn.ID]*txn.Txn
	order []txn.ID // begin order, for deterministic iteration in graph updates
}

// NewManager builds a manager over the given topology. A nil audit logger is
// a safe no-op.
func NewManager(topo site.Topology, logger *audit.Logger) *Manager {
	if logger == nil {
		logger = audit.Discard()
	}
	return &Manager{
		topology: topo,
		clock:    clock.New(),
		registry: site.NewRegistry(topo),
		graph:    graph.New(),
		audit:    logger,
		txns:     make(map[txn.ID]*txn.Txn),
	}
}

// Reset restores the manager to a freshly-constructed state over the same
// topology, for a `// Test <n>` marker.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.Reset()
	m.registry.Reset()
	m.graph.Reset()
	m.txns = make(map[txn.ID]*txn.Txn)
	m.order = nil
}

// Begin starts a read-write transaction.
func (m *Manager) Begin(tid string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin(tid, txn.ReadWrite)
}

// BeginRO starts a read-only transaction.
func (m *Manager) BeginRO(tid string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin(tid, txn.ReadOnly)
}

func (m *Manager) begin(tid string, kind txn.Kind) (*Outcome, error) {
	id := txn.ID(tid)
	if _, exists := m.txns[id]; exists {
		return nil, &ProgrammerError{Op: "begin", Tid: tid, Reason: "transaction already exists"}
	}
	now := m.clock.Advance()
	t := txn.New(id, kind, now)
	m.txns[id] = t
	m.order = append(m.order, id)

	verb := "begin"
	evt := audit.EventBegin
	if kind == txn.ReadOnly {
		verb = "beginRO"
		evt = audit.EventBeginRO
	}
	m.audit.Record(evt, tid, nil)
	return &Outcome{Kind: OutcomeOK, Message: fmt.Sprintf("%s %s", verb, tid)}, nil
}

// Read executes R(tid, var) per §4.3.
func (m *Manager) Read(tid, varName string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.txns[txn.ID(tid)]
	if !ok || t.Status != txn.Active {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}

	if val, buffered := t.BufferedValue(varName); buffered {
		t.RecordRead(varName, t.Start)
		m.audit.Record(audit.EventRead, tid, map[string]interface{}{"var": varName, "value": val, "source": "write cache"})
		return &Outcome{Kind: OutcomeValue, Value: val, Message: fmt.Sprintf("%s reads %s: %d [from write cache]", tid, varName, val)}, nil
	}

	if home, nonReplicated := m.registry.HomeSite(varName); nonReplicated {
		if s := m.registry.Site(home); s == nil || !s.IsUp() {
			msg := fmt.Sprintf("%s waits for site %d to recover (contains %s)", tid, home, varName)
			m.audit.Record(audit.EventRead, tid, map[string]interface{}{"var": varName, "wait": "site down"})
			return &Outcome{Kind: OutcomeWait, Message: msg}, nil
		}
	}

	v, siteID, ok := m.registry.ReadCandidate(varName, t.Start)
	if !ok {
		msg := fmt.Sprintf("%s waits - no available version of %s at any site", tid, varName)
		m.audit.Record(audit.EventRead, tid, map[string]interface{}{"var": varName, "wait": "no available version"})
		return &Outcome{Kind: OutcomeWait, Message: msg}, nil
	}

	t.RecordRead(varName, v.CommitTime)
	m.audit.Record(audit.EventRead, tid, map[string]interface{}{"var": varName, "value": v.Value, "site": siteID})
	outcome := &Outcome{
		Kind:       OutcomeValue,
		Value:      v.Value,
		SourceSite: siteID,
		Message:    fmt.Sprintf("%s reads %s: %d [from site %d]", tid, varName, v.Value, siteID),
	}

	if aborted, reason := m.updateGraphOnRead(t.ID, varName); aborted {
		outcome.Kind = OutcomeAbort
		outcome.AbortReason = reason
		outcome.Message = fmt.Sprintf("%s aborts due to serialization cycle", tid)
	}
	return outcome, nil
}

// updateGraphOnRead adds the W -> reader edge for the writer of the version
// the reader just observed, then checks for a cycle. It returns whether the
// reader itself must now be aborted.
func (m *Manager) updateGraphOnRead(reader txn.ID, varName string) (bool, string) {
	commitTime, ok := m.txns[reader].ReadSet[varName]
	if !ok {
		return false, ""
	}

	var writer txn.ID
	found := false
	for _, id := range m.order {
		cand := m.txns[id]
		if cand.Status == txn.Committed && cand.CommitTime == commitTime {
			if _, wrote := cand.WriteSet[varName]; wrote {
				writer = id
				found = true
				break
			}
		}
	}
	if !found || writer == reader {
		return false, ""
	}

	m.graph.AddEdge(string(writer), string(reader))
	if m.graph.HasCycle() {
		m.abort(m.txns[reader])
		return true, "serialization cycle"
	}
	return false, ""
}

// Write executes W(tid, var, val) per §4.4.
func (m *Manager) Write(tid, varName string, val int64) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.txns[txn.ID(tid)]
	if !ok {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}
	if t.IsReadOnly() {
		return nil, &ProgrammerError{Op: "write", Tid: tid, Reason: "read-only transaction cannot write"}
	}
	if t.Status != txn.Active {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}

	targets := m.registry.TargetSitesForWrite(varName)
	if len(targets) == 0 {
		msg := fmt.Sprintf("%s waits - no available sites for writing %s", tid, varName)
		m.audit.Record(audit.EventWrite, tid, map[string]interface{}{"var": varName, "wait": true})
		return &Outcome{Kind: OutcomeWait, Message: msg}, nil
	}

	t.BufferWrite(varName, val)

	ids := make([]int, 0, len(targets))
	for _, s := range targets {
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = fmt.Sprintf("%d", id)
	}
	m.audit.Record(audit.EventWrite, tid, map[string]interface{}{"var": varName, "value": val, "sites": ids})
	return &Outcome{
		Kind:        OutcomeWriteBuffered,
		TargetSites: ids,
		Message:     fmt.Sprintf("%s writes %s: %d [to sites %s]", tid, varName, val, joinInts(strs)),
	}, nil
}

func joinInts(strs []string) string {
	out := ""
	for i, s := range strs {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// End executes end(tid) per §4.5.
func (m *Manager) End(tid string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.txns[txn.ID(tid)]
	if !ok {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}

	if t.Status == txn.Aborted {
		return &Outcome{Kind: OutcomeAbort, Message: fmt.Sprintf("%s aborts", tid)}, nil
	}

	if t.ShouldAbort {
		m.abort(t)
		m.audit.Record(audit.EventAbort, tid, map[string]interface{}{"reason": "write site failed"})
		return &Outcome{Kind: OutcomeAbort, AbortReason: "write site failed", Message: fmt.Sprintf("%s aborts", tid)}, nil
	}

	if len(t.WriteSet) == 0 {
		now := m.clock.Advance()
		t.Status = txn.Committed
		t.CommitTime = now
		m.updateGraphOnCommit(t)
		m.audit.Record(audit.EventCommit, tid, nil)
		return &Outcome{Kind: OutcomeCommit, Message: fmt.Sprintf("%s commits", tid)}, nil
	}

	return m.commitWithWrites(t)
}

func (m *Manager) abort(t *txn.Txn) {
	t.Status = txn.Aborted
	t.Discard()
}

// commitWithWrites runs the full write-commit validation of §4.5.
func (m *Manager) commitWithWrites(t *txn.Txn) (*Outcome, error) {
	tid := string(t.ID)

	if m.writeCommitShouldAbort(t) {
		m.abort(t)
		m.audit.Record(audit.EventAbort, tid, map[string]interface{}{"reason": "write-commit validation failed"})
		return &Outcome{Kind: OutcomeAbort, AbortReason: "write-commit validation failed", Message: fmt.Sprintf("%s aborts", tid)}, nil
	}

	m.updateGraphOnCommit(t)
	m.updateGraphForWWConflicts(t)

	if m.graph.HasCycle() {
		m.abort(t)
		m.audit.Record(audit.EventAbort, tid, map[string]interface{}{"reason": "serialization cycle"})
		return &Outcome{Kind: OutcomeAbort, AbortReason: "serialization cycle", Message: fmt.Sprintf("%s aborts", tid)}, nil
	}

	commitTime := m.clock.Advance()
	for varName, val := range t.WriteBuffer {
		for _, s := range m.registry.CommitTargetsForWrite(varName, t.Start, commitTime) {
			s.CommitWrite(varName, val, mvcc.TxnID(tid), commitTime)
		}
	}
	t.Status = txn.Committed
	t.CommitTime = commitTime
	m.audit.Record(audit.EventCommit, tid, map[string]interface{}{"writes": len(t.WriteSet)})
	return &Outcome{Kind: OutcomeCommit, Message: fmt.Sprintf("%s commits", tid)}, nil
}

// writeCommitShouldAbort implements §4.5's pre-graph checks: site
// availability for the committer's own non-replicated writes, and
// first-committer-wins.
func (m *Manager) writeCommitShouldAbort(t *txn.Txn) bool {
	for varName := range t.WriteSet {
		if home, nonReplicated := m.registry.HomeSite(varName); nonReplicated {
			if s := m.registry.Site(home); s == nil || !s.IsUp() {
				return true
			}
		}
	}

	for varName := range t.WriteSet {
		for _, id := range m.order {
			other := m.txns[id]
			if other.ID == t.ID {
				continue
			}
			if _, wrote := other.WriteSet[varName]; !wrote {
				continue
			}
			if other.Status == txn.Committed && other.CommitTime > t.Start {
				return true
			}
		}
	}
	return false
}

// updateGraphOnCommit adds the two "reads in common" edges of §4.6: this
// transaction's reads against already-committed writers (reader -> writer),
// and this transaction's writes against anyone who has read the same
// variable and hasn't aborted (reader -> this writer).
func (m *Manager) updateGraphOnCommit(t *txn.Txn) {
	for varName := range t.ReadSet {
		for _, id := range m.order {
			other := m.txns[id]
			if other.ID == t.ID || other.Status != txn.Committed {
				continue
			}
			if _, wrote := other.WriteSet[varName]; wrote {
				m.graph.AddEdge(string(t.ID), string(other.ID))
			}
		}
	}

	for varName := range t.WriteSet {
		for _, id := range m.order {
			other := m.txns[id]
			if other.ID == t.ID || other.Status == txn.Aborted {
				continue
			}
			if _, read := other.ReadSet[varName]; read {
				m.graph.AddEdge(string(other.ID), string(t.ID))
			}
		}
	}
}

// updateGraphForWWConflicts adds write-write ordering edges: any prior
// committed writer of the same variable that committed before this
// transaction started must serialize before it.
func (m *Manager) updateGraphForWWConflicts(t *txn.Txn) {
	for varName := range t.WriteSet {
		for _, id := range m.order {
			other := m.txns[id]
			if other.ID == t.ID || other.Status != txn.Committed {
				continue
			}
			if _, wrote := other.WriteSet[varName]; wrote && other.CommitTime < t.Start {
				m.graph.AddEdge(string(other.ID), string(t.ID))
			}
		}
	}
}

// Fail executes fail(site_id) per §4.7.
func (m *Manager) Fail(siteID int) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.registry.Site(siteID)
	if s == nil {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}

	now := m.clock.Advance()
	s.Fail(now)

	for _, id := range m.order {
		t := m.txns[id]
		if t.Status != txn.Active {
			continue
		}
		for varName := range t.WriteSet {
			if m.registry.IsReplicated(varName) {
				t.ShouldAbort = true
				continue
			}
			if home, ok := m.registry.HomeSite(varName); ok && home == siteID {
				t.ShouldAbort = true
			}
		}
	}

	m.audit.Record(audit.EventSiteFail, "", map[string]interface{}{"site": siteID})
	return &Outcome{Kind: OutcomeOK, Message: fmt.Sprintf("Site %d fails", siteID)}, nil
}

// Recover executes recover(site_id) per §4.7.
func (m *Manager) Recover(siteID int) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.registry.Site(siteID)
	if s == nil {
		return &Outcome{Kind: OutcomeIgnored}, nil
	}

	now := m.clock.Advance()
	s.Recover(now)
	m.audit.Record(audit.EventSiteRecover, "", map[string]interface{}{"site": siteID})
	return &Outcome{Kind: OutcomeOK, Message: fmt.Sprintf("Site %d recovers", siteID)}, nil
}

// Dump returns every site's current view, for dump().
func (m *Manager) Dump() *Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DumpSite
	for _, id := range m.registry.SiteIDs() {
		s := m.registry.Site(id)
		row := DumpSite{SiteID: id, Up: s.IsUp()}
		if s.IsUp() {
			for _, vv := range s.DumpView() {
				row.Vars = append(row.Vars, DumpVar{Var: vv.Var, Value: vv.Value})
			}
		}
		out = append(out, row)
	}
	return &Outcome{Kind: OutcomeDump, Dump: out}
}

// DumpColumns exposes the registry's fixed, numerically-ordered variable
// column set for a table renderer.
func (m *Manager) DumpColumns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.DumpColumns()
}
