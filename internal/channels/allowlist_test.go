package channels

import "testing"

func TestAllowListEmptyAllowsEveryone(t *testing.T) {
	var a AllowList
	if !a.Allows("anyone") {
		t.Fatal("empty allow-list should allow everyone")
	}
}

func TestAllowListMatchesNormalizedToken(t *testing.T) {
	a := AllowList{"@Alice", "bob"}
	if !a.Allows("alice") {
		t.Fatal("expected normalized match for alice")
	}
	if !a.Allows("BOB") {
		t.Fatal("expected case-insensitive match for bob")
	}
	if a.Allows("carol") {
		t.Fatal("expected carol to be rejected")
	}
}

func TestAllowListWildcard(t *testing.T) {
	a := AllowList{"*"}
	if !a.Allows("anyone") {
		t.Fatal("wildcard should allow everyone")
	}
}
