package models

import "testing"

func TestNaturalKeyDeterministic(t *testing.T) {
	a := NaturalKey("https://books.example/catalogue/a-light-in-the-attic_1000/index.html")
	b := NaturalKey("https://books.example/catalogue/a-light-in-the-attic_1000/index.html")
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if c := NaturalKey("https://books.example/catalogue/other_2/index.html"); c == a {
		t.Fatal("expected different content to produce a different key")
	}
}

func TestNaturalKeyPartsAreSeparated(t *testing.T) {
	if NaturalKey("ab", "c") == NaturalKey("a", "bc") {
		t.Fatal("expected part boundaries to affect the key")
	}
}
