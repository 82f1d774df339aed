// Package sha256 includes tests for the SHA-256 id hasher.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := &Hasher{size: 32}
	got := h.hash([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := h.hash([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestHasherTruncates(t *testing.T) {
	t.Parallel()

	if got := New().hash([]byte("hello world")); got != "b94d27b9934d3e08a52e52d7da7dabfa" {
		t.Fatalf("unexpected truncated digest %s", got)
	}
}

func TestHashPartsSeparatesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	if h.HashParts("ab", "c") == h.HashParts("a", "bc") {
		t.Fatal("expected distinct digests for different part boundaries")
	}
	if h.HashParts("src", "key") != h.HashParts("src", "key") {
		t.Fatal("expected stable digest")
	}
}
