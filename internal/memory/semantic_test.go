package memory

import "testing"

func TestStoreSupersedes(t *testing.T) {
	s := NewSemantic(true)
	s.Store("user", "location", "Paris", "sess", 0.85)
	s.Store("user", "location", "Berlin", "sess", 0.85)

	active, ok := s.Query("user", "location")
	if !ok || active.Object != "Berlin" {
		t.Fatalf("Query() = %+v, %v, want Berlin active", active, ok)
	}
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}
	if s.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", s.ActiveCount())
	}
}

func TestQueryRelevantScoresAndSorts(t *testing.T) {
	s := NewSemantic(true)
	s.Store("user", "location", "Paris", "sess", 0.85)
	s.Store("user", "employer", "Acme", "sess", 0.85)
	s.Store("bob", "location", "Rome", "sess", 0.85)

	got := s.QueryRelevant([]string{"paris", "user"})
	if len(got) == 0 {
		t.Fatal("expected at least one match")
	}
	// "user" alone matches subject of both user facts (+1 each); "paris"
	// additionally matches the Paris object, so it should score highest
	// and sort first.
	if got[0].Object != "Paris" {
		t.Errorf("top match = %+v, want Paris first", got[0])
	}
}

func TestQueryRelevantNoMatch(t *testing.T) {
	s := NewSemantic(true)
	s.Store("user", "location", "Paris", "sess", 0.85)
	if got := s.QueryRelevant([]string{"zzz"}); len(got) != 0 {
		t.Errorf("QueryRelevant = %v, want empty", got)
	}
}
