package attachment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deskwire/deskwire/internal/auth"
)

// Retriever runs the retrieval cascade for attachment references.
type Retriever struct {
	origin string
	client *http.Client
	tokens auth.TokenSource
	logger *slog.Logger
}

// NewRetriever creates a retriever against the given API origin.
func NewRetriever(log *slog.Logger, origin string, tokens auth.TokenSource) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{
		origin: strings.TrimRight(strings.TrimSpace(origin), "/"),
		client: &http.Client{Timeout: 60 * time.Second},
		tokens: tokens,
		logger: log.With(slog.String("component", "attachment")),
	}
}

// strategy is one tier of the cascade. applies gates the tier on the
// reference's shape; run performs the retrieval.
type strategy struct {
	name    string
	applies func(ref Ref) bool
	run     func(ctx context.Context, ref Ref) (Download, error)
}

func (r *Retriever) strategies() []strategy {
	return []strategy{
		{
			name:    "secure_endpoint",
			applies: func(ref Ref) bool { return ref.DownloadID() != "" },
			run:     r.fromSecureEndpoint,
		},
		{
			name:    "authenticated_url",
			applies: func(ref Ref) bool { return strings.TrimSpace(ref.URL) != "" },
			run:     r.fromDirectURL,
		},
		{
			name:    "direct_link",
			applies: func(ref Ref) bool { return strings.TrimSpace(ref.URL) != "" },
			run:     r.asLinkHandoff,
		},
	}
}

// Retrieve walks the cascade in order and returns the first success. Each
// tier's failure is logged and absorbed; only full exhaustion, or a
// reference with no source at all, reaches the caller.
func (r *Retriever) Retrieve(ctx context.Context, ref Ref) (Download, error) {
	applicable := 0
	for _, s := range r.strategies() {
		if !s.applies(ref) {
			continue
		}
		applicable++
		dl, err := s.run(ctx, ref)
		if err != nil {
			r.logger.Warn("retrieval strategy failed",
				slog.String("strategy", s.name),
				slog.String("attachment_id", ref.DownloadID()),
				slog.Any("error", err),
			)
			continue
		}
		r.logger.Debug("attachment retrieved",
			slog.String("strategy", s.name),
			slog.String("filename", dl.Filename),
		)
		return dl, nil
	}
	if applicable == 0 {
		r.logger.Error("attachment has no id or url", slog.String("filename", ref.Filename))
		return Download{}, ErrNoSource
	}
	return Download{}, ErrExhausted
}

func (r *Retriever) fromSecureEndpoint(ctx context.Context, ref Ref) (Download, error) {
	endpoint := r.origin + "/attachments/" + ref.DownloadID() + "/download"
	return r.fetch(ctx, ref, endpoint, true)
}

func (r *Retriever) fromDirectURL(ctx context.Context, ref Ref) (Download, error) {
	return r.fetch(ctx, ref, ref.URL, true)
}

// asLinkHandoff is the last resort: hand the raw URL back without proving
// authorization. It performs no network call and cannot fail loudly.
func (r *Retriever) asLinkHandoff(_ context.Context, ref Ref) (Download, error) {
	return Download{
		Filename: fallbackFilename(ref),
		Mime:     ref.Mime,
		Size:     ref.Size,
		URL:      ref.URL,
		LinkOnly: true,
	}, nil
}

func (r *Retriever) fetch(ctx context.Context, ref Ref, url string, authenticated bool) (Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Download{}, fmt.Errorf("build request: %w", err)
	}
	if authenticated {
		if token, ok := auth.Bearer(r.tokens); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return Download{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	dl := Download{
		Filename: filenameFromResponse(resp, ref),
		Mime:     ref.Mime,
		Size:     ref.Size,
		Body:     resp.Body,
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		dl.Mime = ct
	}
	if resp.ContentLength > 0 {
		dl.Size = resp.ContentLength
	}
	return dl, nil
}

// filenameFromResponse prefers the Content-Disposition filename, else the
// reference's stored filename.
func filenameFromResponse(resp *http.Response, ref Ref) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return filepath.Base(name)
			}
		}
	}
	return fallbackFilename(ref)
}

func fallbackFilename(ref Ref) string {
	if name := strings.TrimSpace(ref.Filename); name != "" {
		return filepath.Base(name)
	}
	return "attachment"
}

// SaveTo materializes a retrieval into dir and returns the written path.
// Link handoffs are returned as-is with an empty path; the caller decides
// how to open the URL.
func (r *Retriever) SaveTo(ctx context.Context, ref Ref, dir string) (string, Download, error) {
	dl, err := r.Retrieve(ctx, ref)
	if err != nil {
		return "", Download{}, err
	}
	if dl.LinkOnly {
		return "", dl, nil
	}
	defer func() {
		_ = dl.Close()
	}()
	path := filepath.Join(dir, filepath.Base(dl.Filename))
	out, err := os.Create(path)
	if err != nil {
		return "", Download{}, fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, dl.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", Download{}, fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", Download{}, fmt.Errorf("close file: %w", err)
	}
	return path, Download{Filename: dl.Filename, Mime: dl.Mime, Size: dl.Size}, nil
}
