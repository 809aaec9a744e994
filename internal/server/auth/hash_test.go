package auth

import (
	"testing"
)

func TestHashRefreshToken(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashRefreshToken("abc"); got != want {
		t.Fatalf("HashRefreshToken = %q, want %q", got, want)
	}
	if HashRefreshToken("a") == HashRefreshToken("b") {
		t.Fatal("different tokens must hash differently")
	}
}
