package flood

import "testing"

func TestAllowWithinLimit(t *testing.T) {
	th := New(3)
	defer th.Stop()

	for i := 0; i < 3; i++ {
		if !th.Allow("1.2.3.4") {
			t.Fatalf("Allow() = false on request %d within the limit", i+1)
		}
	}
	if th.Allow("1.2.3.4") {
		t.Error("Allow() = true beyond the limit")
	}
}

func TestAllowPerClientIsolation(t *testing.T) {
	th := New(1)
	defer th.Stop()

	if !th.Allow("1.2.3.4") {
		t.Fatal("first client rejected")
	}
	if !th.Allow("5.6.7.8") {
		t.Error("second client throttled by the first client's requests")
	}
	if th.Allow("1.2.3.4") {
		t.Error("first client allowed beyond its limit")
	}
}

func TestActiveClients(t *testing.T) {
	th := New(10)
	defer th.Stop()

	th.Allow("a")
	th.Allow("b")
	th.Allow("a")

	if got := th.ActiveClients(); got != 2 {
		t.Errorf("ActiveClients() = %d, expected 2", got)
	}
}
