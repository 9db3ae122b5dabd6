package ui

import (
	"testing"

	"github.com/famigo/famigo/internal/apierr"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 2 {
		t.Fatalf("ThemeNames() returned %d names, want 2", len(names))
	}
	if names[0] != "Nightfox" || names[1] != "Slate" {
		t.Fatalf("ThemeNames() = %v, want [Nightfox Slate]", names)
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Nightfox"); got != "Slate" {
		t.Fatalf("NextTheme(Nightfox) = %q, want Slate", got)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := NextTheme("missing"); got != "Nightfox" {
		t.Fatalf("NextTheme(missing) = %q, want Nightfox", got)
	}
}

func TestGetThemeFallsBack(t *testing.T) {
	if got := GetTheme("nope").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(nope).Name = %q, want Nightfox", got)
	}
}

func TestEveryKindHasAColor(t *testing.T) {
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, kind := range apierr.Kinds {
			if th.KindColors[kind] == "" {
				t.Errorf("%s: no color for %s", name, kind)
			}
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"playground", 5, "play…"},
		{"ab", 1, "a"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestStars(t *testing.T) {
	if got := stars(3); got != "★★★☆☆" {
		t.Fatalf("stars(3) = %q", got)
	}
	if got := stars(9); got != "★★★★★" {
		t.Fatalf("stars(9) = %q", got)
	}
}
