package site

import (
	"fmt"
	"sort"

	"github.com/kartikbazzad/repcrec/mvcc"
)

// Topology describes the shape of the replicated cluster: how many sites,
// how many variables, and which variables replicate. A variable x<i>
// replicates when i is a multiple of ReplicationEvery; otherwise its home is
// site 1+(i mod Sites). Default topology is exactly spec.md §3: 10 sites,
// 20 variables, every-2nd (i.e. even-indexed) replicated.
type Topology struct {
	Sites            int
	Variables        int
	ReplicationEvery int
}

// DefaultTopology returns the spec's fixed topology.
func DefaultTopology() Topology {
	return Topology{Sites: 10, Variables: 20, ReplicationEvery: 2}
}

// Registry owns every site in the cluster plus the variable-to-site(s)
// mapping implied by the topology's replication rule. It is the fan-out
// point for reads and writes: grounded on the teacher's connection pool (a
// fixed registry of named resources with availability tracking) repurposed
// from pooled DB connections to storage replicas, and on the teacher's
// Raft broadcastAppendEntries (iterate peers, apply to each reachable one)
// for CommitTargetsForWrite's write fan-out — simplified because there is no replicated
// log to keep consistent, only a value that either lands on a site or not.
type Registry struct {
	topology Topology
	siteIDs  []int
	sites    map[int]*Site
	variable []string // x1..xN in numeric order

	replicated map[string]bool
	home       map[string]int // non-replicated variable -> home site id
}

// NewRegistry builds a registry for the given topology, with every site up
// and every variable at its initial value (10 * index).
func NewRegistry(topo Topology) *Registry {
	r := &Registry{
		topology:   topo,
		sites:      make(map[int]*Site),
		replicated: make(map[string]bool),
		home:       make(map[string]int),
	}

	for i := 1; i <= topo.Variables; i++ {
		name := fmt.Sprintf("x%d", i)
		r.variable = append(r.variable, name)
		if i%topo.ReplicationEvery == 0 {
			r.replicated[name] = true
		} else {
			r.home[name] = 1 + (i % topo.Sites)
		}
	}

	hostedVars := make(map[int]map[string]bool)
	for i := 1; i <= topo.Sites; i++ {
		hostedVars[i] = make(map[string]bool)
		r.siteIDs = append(r.siteIDs, i)
	}
	initial := make(map[string]int64, len(r.variable))
	for i, name := range r.variable {
		initial[name] = int64(10 * (i + 1))
		if r.replicated[name] {
			for s := 1; s <= topo.Sites; s++ {
				hostedVars[s][name] = true
			}
		} else {
			hostedVars[r.home[name]][name] = true
		}
	}
	sort.Ints(r.siteIDs)
	for _, s := range r.siteIDs {
		r.sites[s] = New(s, hostedVars[s], initial)
	}
	return r
}

// Site returns the site with the given id, or nil if it does not exist.
func (r *Registry) Site(id int) *Site { return r.sites[id] }

// SiteIDs returns every site id, in ascending order.
func (r *Registry) SiteIDs() []int { return append([]int(nil), r.siteIDs...) }

// IsReplicated reports whether var is a replicated variable.
func (r *Registry) IsReplicated(varName string) bool { return r.replicated[varName] }

// HomeSite returns the home site id for a non-replicated variable, and
// whether var is in fact non-replicated.
func (r *Registry) HomeSite(varName string) (int, bool) {
	id, ok := r.home[varName]
	return id, ok
}

// UpSites returns, in descending site-id order (the tie-break rule for read
// selection — §4.3 step 5 and §9's "highest site id" rule — is easiest to
// apply by scanning highest-first and stopping at the first candidate), the
// currently-up sites.
func (r *Registry) UpSites() []*Site {
	out := make([]*Site, 0, len(r.siteIDs))
	for i := len(r.siteIDs) - 1; i >= 0; i-- {
		s := r.sites[r.siteIDs[i]]
		if s.IsUp() {
			out = append(out, s)
		}
	}
	return out
}

// TargetSitesForWrite returns the sites a write to var would currently be
// sent to: every up site for a replicated variable, or the home site alone
// (if up) for a non-replicated one.
func (r *Registry) TargetSitesForWrite(varName string) []*Site {
	if home, ok := r.HomeSite(varName); ok {
		s := r.sites[home]
		if s.IsUp() {
			return []*Site{s}
		}
		return nil
	}
	var out []*Site
	for _, id := range r.siteIDs {
		if s := r.sites[id]; s.IsUp() {
			out = append(out, s)
		}
	}
	return out
}

// CommitTargetsForWrite returns the sites a committed write to var must
// land on: the home site for a non-replicated variable (if up), or every
// site that has been continuously up from startTime through commitTime for
// a replicated variable (§4.5's "on success" rule).
func (r *Registry) CommitTargetsForWrite(varName string, startTime, commitTime int64) []*Site {
	if home, ok := r.HomeSite(varName); ok {
		s := r.sites[home]
		if s.IsUp() {
			return []*Site{s}
		}
		return nil
	}
	var out []*Site
	for _, id := range r.siteIDs {
		s := r.sites[id]
		if !s.IsUp() {
			continue
		}
		if s.continuouslyUpSince(startTime, commitTime) {
			out = append(out, s)
		}
	}
	return out
}

// continuouslyUpSince reports whether the site has had no failure landing
// in (start, commit] — i.e. hasn't gone down since the writer started and
// come back without yet having re-failed.
func (s *Site) continuouslyUpSince(start, commit int64) bool {
	if s.lastFailTime == Never {
		return true
	}
	return s.lastFailTime <= start || s.lastFailTime > commit
}

// ReadCandidate scans up sites in descending site-id order (§4.3 step 5's
// tie-break rule) for a readable version of var as of ts, returning the
// first one found along with the id of the site it came from.
func (r *Registry) ReadCandidate(varName string, ts int64) (mvcc.Version, int, bool) {
	for _, s := range r.UpSites() {
		if v, ok := s.SnapshotVersionAt(varName, ts); ok {
			return v, s.ID, true
		}
	}
	return mvcc.Version{}, 0, false
}

// DumpColumns returns every variable present at any currently-up site, in
// x<N> numeric order — the fixed column set for `dump()` rendering.
func (r *Registry) DumpColumns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, name := range r.variable {
		for _, id := range r.siteIDs {
			s := r.sites[id]
			if s.IsUp() && s.Hosts(name) {
				if !seen[name] {
					seen[name] = true
					cols = append(cols, name)
				}
				break
			}
		}
	}
	return cols
}

// Reset restores every site to its initial state.
func (r *Registry) Reset() {
	initial := make(map[string]int64, len(r.variable))
	for i, name := range r.variable {
		initial[name] = int64(10 * (i + 1))
	}
	for _, id := range r.siteIDs {
		r.sites[id].Reset(initial)
	}
}
