// Package attachment retrieves message attachment binaries through a ranked
// cascade of strategies, preferring the most secure path and degrading
// gracefully when identifiers, credentials, or endpoints are unavailable.
package attachment

import (
	"io"
	"strings"
)

// Ref is the reference metadata the server embeds in a message. It is not
// the binary content; content is fetched on demand.
type Ref struct {
	ID       string `json:"id,omitempty"`
	LegacyID string `json:"attachment_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Mime     string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// DownloadID returns the identifier usable against the secure by-id
// endpoint: the stable id when present, else the legacy id.
func (r Ref) DownloadID() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return strings.TrimSpace(r.LegacyID)
}

// Download is the outcome of a successful retrieval. Either Body carries the
// materialized content, or LinkOnly is set and URL is a direct link the
// caller hands off to an external opener, accepting that the link may
// require authorization this client could not prove.
type Download struct {
	Filename string
	Mime     string
	Size     int64
	Body     io.ReadCloser
	URL      string
	LinkOnly bool
}

// Close releases the materialized body, if any.
func (d Download) Close() error {
	if d.Body == nil {
		return nil
	}
	return d.Body.Close()
}
