package pathpolicy

import "testing"

func TestIsReservedExact(t *testing.T) {
	for _, p := range Reserved {
		if !IsReserved(p) {
			t.Errorf("IsReserved(%q) = false, want true", p)
		}
	}
}

func TestIsReservedChild(t *testing.T) {
	if !IsReserved("/run/host/etc") {
		t.Error("expected /run/host/etc to be reserved (child of /run/host)")
	}

	if !IsReserved("/usr/local") {
		t.Error("expected /usr/local to be reserved (child of /usr)")
	}
}

func TestIsReservedParentOfReserved(t *testing.T) {
	// Exposing "/run" must be refused because it would shadow /run/host etc.
	if !IsReserved("/run") {
		t.Error("expected /run to be reserved as a bidirectional parent of /run/host")
	}
}

func TestIsReservedUnrelated(t *testing.T) {
	for _, p := range []string{"/home/alice", "/tmp/foo", "/mnt/data", "/"} {
		if IsReserved(p) {
			t.Errorf("IsReserved(%q) = true, want false", p)
		}
	}
}

func TestIsSensitive(t *testing.T) {
	cases := map[string]bool{
		"/home/alice/.ssh":             true,
		"/home/alice/.aws":             true,
		"/home/alice/.docker/config.json": true,
		"/home/alice/projects":         false,
	}

	for path, want := range cases {
		if got := IsSensitive(path); got != want {
			t.Errorf("IsSensitive(%q) = %v, want %v", path, got, want)
		}
	}
}
