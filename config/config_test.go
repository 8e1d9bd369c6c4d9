package config

import "testing"

func TestLoadEmptyPathReturnsDefaultTopology(t *testing.T) {
	topo, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topo.Sites != 10 || topo.Variables != 20 || topo.ReplicationEvery != 2 {
		t.Errorf("got %+v, want default 10/20/2", topo)
	}
}

func TestParseValidDocument(t *testing.T) {
	topo, err := Parse([]byte(`{"sites": 5, "variables": 8, "replicationEvery": 3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topo.Sites != 5 || topo.Variables != 8 || topo.ReplicationEvery != 3 {
		t.Errorf("got %+v", topo)
	}
}

func TestParseRejectsMissingField(t *testing.T) {
	_, err := Parse([]byte(`{"sites": 5, "variables": 8}`))
	if err == nil {
		t.Errorf("expected an error for a document missing replicationEvery")
	}
}

func TestParseRejectsNonPositiveSites(t *testing.T) {
	_, err := Parse([]byte(`{"sites": 0, "variables": 8, "replicationEvery": 2}`))
	if err == nil {
		t.Errorf("expected an error for zero sites")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	if err == nil {
		t.Errorf("expected an error for malformed JSON")
	}
}
