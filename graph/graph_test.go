package graph

import "testing"

func TestEmptyGraphHasNoCycle(t *testing.T) {
	g := New()
	if g.HasCycle() {
		t.Errorf("empty graph should not report a cycle")
	}
}

func TestTwoCycle(t *testing.T) {
	g := New()
	g.AddEdge("T1", "T2")
	g.AddEdge("T2", "T1")
	if !g.HasCycle() {
		t.Errorf("expected T1 -> T2 -> T1 to be detected as a cycle")
	}
}

func TestAcyclicChainHasNoCycle(t *testing.T) {
	g := New()
	g.AddEdge("T1", "T2")
	g.AddEdge("T2", "T3")
	g.AddEdge("T1", "T3")
	if g.HasCycle() {
		t.Errorf("acyclic chain should not report a cycle")
	}
}

func TestLongerCycle(t *testing.T) {
	g := New()
	g.AddEdge("T1", "T2")
	g.AddEdge("T2", "T3")
	g.AddEdge("T3", "T1")
	if !g.HasCycle() {
		t.Errorf("expected T1 -> T2 -> T3 -> T1 to be detected as a cycle")
	}
}

func TestSelfEdgeIsIgnored(t *testing.T) {
	g := New()
	g.AddEdge("T1", "T1")
	if g.HasCycle() {
		t.Errorf("a self-edge should not count as a cycle")
	}
}

func TestResetClearsGraph(t *testing.T) {
	g := New()
	g.AddEdge("T1", "T2")
	g.AddEdge("T2", "T1")
	g.Reset()
	if g.HasCycle() {
		t.Errorf("expected graph to be empty after Reset")
	}
}
