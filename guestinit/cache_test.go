package guestinit

import "testing"

func TestParseCacheLinks_Valid(t *testing.T) {
	links, err := parseCacheLinks("go-build:/root/.cache/go-build, npm:/root/.npm")
	if err != nil {
		t.Fatalf("parseCacheLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2", len(links))
	}
	if links[0].CacheRoot != "/cache/go-build" || links[0].GuestPath != "/root/.cache/go-build" {
		t.Fatalf("links[0] = %+v", links[0])
	}
	if links[1].CacheRoot != "/cache/npm" || links[1].GuestPath != "/root/.npm" {
		t.Fatalf("links[1] = %+v", links[1])
	}
}

func TestParseCacheLinks_Invalid(t *testing.T) {
	if _, err := parseCacheLinks("not-a-valid-pair"); err == nil {
		t.Fatal("expected an error for a malformed cache pair")
	}
}

func TestParseCacheLinks_IgnoresBlankEntries(t *testing.T) {
	links, err := parseCacheLinks("go-build:/x,, ")
	if err != nil {
		t.Fatalf("parseCacheLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("len(links) = %d, want 1", len(links))
	}
}
