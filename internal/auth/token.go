// Package auth provides the bearer credential source attached to outbound
// broker-authorization and attachment requests.
package auth

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var timeNow = time.Now

// TokenSource yields the current bearer credential, if any.
type TokenSource interface {
	Token() (string, bool)
}

// StaticToken is a fixed in-memory credential.
type StaticToken string

// Token returns the credential; ok is false when it is empty.
func (s StaticToken) Token() (string, bool) {
	token := strings.TrimSpace(string(s))
	return token, token != ""
}

// FileToken reads the credential from a file, re-reading when the file
// changes. Session storage lives outside this core; the file is the handoff.
type FileToken struct {
	path string

	mu      sync.Mutex
	cached  string
	modTime int64
}

// NewFileToken creates a file-backed token source.
func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

// Token returns the file contents, trimmed. Missing or unreadable files
// yield no credential rather than an error: requests proceed
// unauthenticated, matching the degraded tiers elsewhere in this core.
func (f *FileToken) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, err := os.Stat(f.path)
	if err != nil {
		return "", false
	}
	mod := info.ModTime().UnixNano()
	if mod != f.modTime {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return "", false
		}
		f.cached = strings.TrimSpace(string(data))
		f.modTime = mod
	}
	return f.cached, f.cached != ""
}

// Expired reports whether token is a JWT whose exp claim has passed.
// Opaque (non-JWT) tokens are never considered expired; signature
// verification is the server's job, not this client's.
func Expired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(timeNow())
}

// Bearer resolves the credential to attach to a request: empty when the
// source has none or the token is visibly expired.
func Bearer(src TokenSource) (string, bool) {
	if src == nil {
		return "", false
	}
	token, ok := src.Token()
	if !ok || Expired(token) {
		return "", false
	}
	return token, true
}
