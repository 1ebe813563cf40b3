package ui

import "testing"

func TestGetTheme(t *testing.T) {
	if got := GetTheme("dark"); got.Name != "dark" {
		t.Fatalf("GetTheme(dark).Name = %q, want dark", got.Name)
	}
	if got := GetTheme("Kanagawa"); got.Name != "kanagawa" {
		t.Fatalf("GetTheme is case-sensitive: got %q", got.Name)
	}
	if got := GetTheme("unknown"); got.Name != "dark" {
		t.Fatalf("GetTheme(unknown).Name = %q, want dark (fallback)", got.Name)
	}
	if got := GetTheme(""); got.Name != "dark" {
		t.Fatalf("GetTheme(empty).Name = %q, want dark", got.Name)
	}
}

func TestNextThemeCycles(t *testing.T) {
	seen := map[string]bool{}
	name := ThemeNames()[0]
	for range ThemeNames() {
		if seen[name] {
			t.Fatalf("theme cycle revisited %q early", name)
		}
		seen[name] = true
		name = NextTheme(name)
	}
	if name != ThemeNames()[0] {
		t.Fatalf("cycle did not wrap: ended at %q", name)
	}
	if got := NextTheme("unknown"); got != ThemeNames()[0] {
		t.Fatalf("NextTheme(unknown) = %q, want %q", got, ThemeNames()[0])
	}
}

func TestStateColor(t *testing.T) {
	th := GetTheme("dark")
	if got := th.StateColor("  Connected "); got != th.StateColors["connected"] {
		t.Fatalf("StateColor = %q, want %q", got, th.StateColors["connected"])
	}
	if got := th.StateColor("nonsense"); got != th.Muted {
		t.Fatalf("StateColor fallback = %q, want %q", got, th.Muted)
	}
}

func TestAllThemesCoverStates(t *testing.T) {
	states := []string{
		"connected", "connecting", "disconnected",
		"idle", "syncing", "error", "unknown",
		"accepting", "saving", "rejecting", "deleting",
	}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, s := range states {
			if _, ok := th.StateColors[s]; !ok {
				t.Fatalf("theme %q missing state color %q", name, s)
			}
		}
	}
}
