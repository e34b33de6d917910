package city

import "testing"

func TestMatch_PriorityOrder(t *testing.T) {
	tbl := Default()

	c, ok := tbl.Match("will the high temperature in nyc exceed chicago's?")
	if !ok {
		t.Fatal("expected a match")
	}
	if c.Code != "NYC" {
		t.Errorf("expected NYC to win on priority, got %s", c.Code)
	}
}

func TestMatch_ShortVariantNeedsWordBoundary(t *testing.T) {
	tbl := Default()

	// "atl" appears inside "atlantic" but must not match on its own.
	if c, ok := tbl.Match("atlantic hurricane temperature"); ok {
		t.Errorf("expected no match, got %s", c.Code)
	}

	c, ok := tbl.Match("highest temperature at atl on may 3")
	if !ok || c.Code != "ATL" {
		t.Errorf("expected ATL, got %v %v", c.Code, ok)
	}
}

func TestMatch_NoCity(t *testing.T) {
	if _, ok := Default().Match("highest temperature in reykjavik"); ok {
		t.Error("expected no match for untracked city")
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	c, ok := Default().Lookup("mia")
	if !ok {
		t.Fatal("expected MIA to be found")
	}
	if c.Name != "Miami" {
		t.Errorf("expected Miami, got %s", c.Name)
	}
}
