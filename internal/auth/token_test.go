package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestStaticToken(t *testing.T) {
	t.Parallel()

	if _, ok := StaticToken("").Token(); ok {
		t.Fatal("empty token must report absent")
	}
	token, ok := StaticToken(" abc ").Token()
	if !ok || token != "abc" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}
}

func TestFileTokenReadsAndRefreshes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	src := NewFileToken(path)
	token, ok := src.Token()
	if !ok || token != "first" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}

	// Rewrite with a newer mtime; the source must pick up the change.
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite token file: %v", err)
	}
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("bump mtime: %v", err)
	}
	token, ok = src.Token()
	if !ok || token != "second" {
		t.Fatalf("expected refreshed token, got %q ok=%v", token, ok)
	}
}

func TestFileTokenMissingFile(t *testing.T) {
	t.Parallel()

	src := NewFileToken(filepath.Join(t.TempDir(), "absent"))
	if _, ok := src.Token(); ok {
		t.Fatal("missing file must yield no credential")
	}
}

func TestExpired(t *testing.T) {
	t.Parallel()

	if Expired(signedToken(t, time.Now().Add(time.Hour))) {
		t.Fatal("valid token reported expired")
	}
	if !Expired(signedToken(t, time.Now().Add(-time.Hour))) {
		t.Fatal("expired token not detected")
	}
	if Expired("opaque-session-token") {
		t.Fatal("opaque tokens must never be considered expired")
	}
}

func TestBearerScreensExpiredCredential(t *testing.T) {
	t.Parallel()

	if _, ok := Bearer(StaticToken(signedToken(t, time.Now().Add(-time.Minute)))); ok {
		t.Fatal("expired credential must not be attached")
	}
	token, ok := Bearer(StaticToken("opaque"))
	if !ok || token != "opaque" {
		t.Fatalf("unexpected bearer: %q ok=%v", token, ok)
	}
	if _, ok := Bearer(nil); ok {
		t.Fatal("nil source must yield no credential")
	}
}
