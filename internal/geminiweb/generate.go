// Wire codec for the StreamGenerate batch endpoint. The backend speaks
// nested JSON arrays inside a form-encoded envelope; sjson builds the
// request and gjson walks the reply.
package geminiweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GenerateContent sends a single-turn prompt. files are local paths staged
// by the caller; each is uploaded first and referenced by resource id in
// the payload. Multi-turn callers go through ChatSession instead.
func (c *Client) GenerateContent(ctx context.Context, prompt string, model Model, files []string) (*ModelOutput, error) {
	return c.generate(ctx, prompt, model, files, nil)
}

// generate is the shared single call path. metadata, when non-empty, is the
// conversation continuation triple in order; entries are forwarded exactly
// as supplied, never padded.
func (c *Client) generate(ctx context.Context, prompt string, model Model, files []string, metadata []string) (*ModelOutput, error) {
	if prompt == "" {
		return nil, &APIError{Operation: "generate", Message: "empty prompt"}
	}
	if !c.Running() {
		return nil, &AuthError{Reason: "session not initialized"}
	}

	payload, err := c.buildPayload(ctx, prompt, files, metadata)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("f.req", payload)
	form.Set("at", c.token())

	reqURL := endpointGenerate + "?" + url.Values{
		"bl":     {"boq_assistant-bard-web-server_20250814.06_p1"},
		"_reqid": {strconv.Itoa(c.nextReqID())},
		"rt":     {"c"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &APIError{Operation: "generate", Message: "building request", Err: err}
	}
	c.applyHeaders(req)
	c.applyCookies(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	if model.Header != "" {
		req.Header.Set("x-goog-ext-525001261-jspb", model.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutExceeded{Operation: "generate"}
		}
		return nil, &APIError{Operation: "generate", Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TemporarilyBlocked{}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The backend invalidated the cookies out-of-band. Flag the
		// session dead so the owner evicts it instead of reusing.
		c.markDead()
		return nil, &AuthError{Reason: fmt.Sprintf("generate returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &APIError{Operation: "generate", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Operation: "generate", Message: "reading response", Err: err}
	}

	output, err := parseGenerateResponse(body, model, c.Cookies())
	if err != nil {
		return nil, err
	}
	return output, nil
}

// buildPayload assembles the f.req envelope: a doubly-encoded nested array
// [null, "[[prompt,0,null,files],[\"en\"],metadata]"].
func (c *Client) buildPayload(ctx context.Context, prompt string, files []string, metadata []string) (string, error) {
	inner := "[]"
	inner, _ = sjson.Set(inner, "0", prompt)
	inner, _ = sjson.Set(inner, "1", 0)
	inner, _ = sjson.SetRaw(inner, "2", "null")

	for i, path := range files {
		resourceID, err := c.uploadFile(ctx, path)
		if err != nil {
			return "", err
		}
		key := "3." + strconv.Itoa(i)
		inner, _ = sjson.Set(inner, key+".0.0", resourceID)
		inner, _ = sjson.Set(inner, key+".1", filepath.Base(path))
	}

	fr := "[]"
	fr, _ = sjson.SetRaw(fr, "0", inner)
	fr, _ = sjson.SetRaw(fr, "1", `["en"]`)
	if len(metadata) > 0 {
		meta := "[]"
		for i, m := range metadata {
			meta, _ = sjson.Set(meta, strconv.Itoa(i), m)
		}
		fr, _ = sjson.SetRaw(fr, "2", meta)
	} else {
		fr, _ = sjson.SetRaw(fr, "2", "null")
	}

	envelope := "[]"
	envelope, _ = sjson.SetRaw(envelope, "0", "null")
	envelope, _ = sjson.Set(envelope, "1", fr)
	return envelope, nil
}

// parseGenerateResponse walks the streamed batch reply. The stream is a
// sequence of length-prefixed lines; the payload line is a JSON array whose
// first element is ["wrb.fr", null, "<body>"], with the interesting content
// doubly encoded in <body>.
func parseGenerateResponse(raw []byte, model Model, cookies map[string]string) (*ModelOutput, error) {
	var body gjson.Result
	for _, line := range strings.Split(string(raw), "\n") {
		parsed := gjson.Parse(line)
		if !parsed.IsArray() {
			continue
		}
		part := parsed.Get("0")
		if part.Get("0").String() != "wrb.fr" {
			continue
		}
		if inner := part.Get("2"); inner.Exists() && inner.String() != "" {
			body = gjson.Parse(inner.String())
			if body.Get("4").Exists() {
				break
			}
		}
	}

	if !body.Exists() {
		return nil, &APIError{Operation: "generate", Message: "no payload in response; the backend may have rejected the request"}
	}

	candidates := body.Get("4").Array()
	if len(candidates) == 0 {
		// An empty candidate list with an error marker means quota.
		if body.Get("0.5").Int() == usageLimitMarker {
			return nil, &UsageLimitExceeded{ModelName: model.Name}
		}
		return nil, &APIError{Operation: "generate", Message: "response contained no candidates"}
	}

	out := &ModelOutput{}
	for _, m := range body.Get("1").Array() {
		out.Metadata = append(out.Metadata, m.String())
	}

	for _, cand := range candidates {
		parsed := Candidate{
			RCID:     cand.Get("0").String(),
			Text:     cand.Get("1.0").String(),
			Thoughts: cand.Get("37.0.0").String(),
		}

		for _, img := range cand.Get("12.1").Array() {
			parsed.WebImages = append(parsed.WebImages, WebImage{
				URL:   img.Get("0.0.0").String(),
				Title: img.Get("7.0").String(),
				Alt:   img.Get("0.4").String(),
			})
		}

		for i, img := range cand.Get("12.7.0").Array() {
			title := img.Get("3.6").String()
			if title == "" {
				title = fmt.Sprintf("[Generated Image %d]", i+1)
			}
			parsed.GeneratedImages = append(parsed.GeneratedImages, GeneratedImage{
				URL:     img.Get("0.3.3").String(),
				Title:   title,
				Alt:     img.Get("3.5.0").String(),
				Cookies: cookies,
			})
		}

		out.Candidates = append(out.Candidates, parsed)
	}

	return out, nil
}

// usageLimitMarker is the backend's error tag for a model usage cap.
const usageLimitMarker = 1037
