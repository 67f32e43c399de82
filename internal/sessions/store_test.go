package sessions

import "testing"

func TestBuildKeyMainForm(t *testing.T) {
	got := BuildKey("agent1", "", "")
	want := "agent:agent1:main"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildKeyPerPeerForm(t *testing.T) {
	got := BuildKey("agent1", "telegram", "42")
	want := "agent:agent1:telegram:42"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	agentID, channel, peerID, ok := ParseKey("agent:agent1:telegram:42")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if agentID != "agent1" || channel != "telegram" || peerID != "42" {
		t.Fatalf("unexpected parse: %s %s %s", agentID, channel, peerID)
	}
}

func TestParseKeyMainForm(t *testing.T) {
	agentID, channel, peerID, ok := ParseKey("agent:agent1:main")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if agentID != "agent1" || channel != "" || peerID != "" {
		t.Fatalf("unexpected parse: %s %s %s", agentID, channel, peerID)
	}
}

func TestParseKeyInvalid(t *testing.T) {
	if _, _, _, ok := ParseKey("not-a-key"); ok {
		t.Fatal("expected ok=false for malformed key")
	}
}
