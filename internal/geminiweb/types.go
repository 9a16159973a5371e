package geminiweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ModelOutput is one parsed backend reply.
//
// Metadata is the conversation triple [chatID, replyID] as returned by the
// backend body; the chosen candidate's RCID completes the triple. Order
// matters and absent entries are simply missing, never padded.
type ModelOutput struct {
	Candidates []Candidate
	Metadata   []string
	Chosen     int
}

// Candidate is one reply candidate within a ModelOutput.
type Candidate struct {
	RCID            string
	Text            string
	Thoughts        string
	WebImages       []WebImage
	GeneratedImages []GeneratedImage
}

// Text returns the chosen candidate's text, or "" when there is none.
func (o *ModelOutput) Text() string {
	if c := o.chosen(); c != nil {
		return c.Text
	}
	return ""
}

// Thoughts returns the chosen candidate's reasoning trace, or "".
func (o *ModelOutput) Thoughts() string {
	if c := o.chosen(); c != nil {
		return c.Thoughts
	}
	return ""
}

// RCID returns the chosen candidate's reply-candidate id, or "".
func (o *ModelOutput) RCID() string {
	if c := o.chosen(); c != nil {
		return c.RCID
	}
	return ""
}

func (o *ModelOutput) chosen() *Candidate {
	if o == nil || o.Chosen < 0 || o.Chosen >= len(o.Candidates) {
		return nil
	}
	return &o.Candidates[o.Chosen]
}

// WebImage is an image the model fetched from the web. The distinction from
// GeneratedImage is resolved once here at the parse boundary, not re-derived
// downstream.
type WebImage struct {
	URL   string
	Title string
	Alt   string
}

// GeneratedImage is an image the model synthesized. Downloading it requires
// the full cookie set of the session that produced it.
type GeneratedImage struct {
	URL     string
	Title   string
	Alt     string
	Cookies map[string]string
}

// Save downloads the image into dir under filename and returns the saved
// path. The request carries the owning session's cookies; the image host
// rejects anonymous fetches.
func (g *GeneratedImage) Save(ctx context.Context, client *http.Client, dir, filename string) (string, error) {
	if g.URL == "" {
		return "", &APIError{Operation: "save image", Message: "empty image URL"}
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return "", &APIError{Operation: "save image", Message: "building request", Err: err}
	}
	for name, value := range g.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &APIError{Operation: "save image", Message: "fetching " + g.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Operation: "save image", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", &APIError{Operation: "save image", Message: "creating directory", Err: err}
	}
	path := filepath.Join(dir, filename)
	f, err := os.Create(path) // #nosec G304 -- dir is a request-scoped temp dir
	if err != nil {
		return "", &APIError{Operation: "save image", Message: "creating file", Err: err}
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", &APIError{Operation: "save image", Message: "writing file", Err: err}
	}
	return path, nil
}
