// Package gateway - handlers.go maps REST calls onto upstream operations.
//
// DESIGN: Every session-backed handler follows the same shape:
//   - identity extraction (400 before any cache or body work)
//   - request decode and validation
//   - session acquire from the keyed cache
//   - one upstream call (or the fixed image-template retry loop)
//   - response shaping or taxonomy translation
//
// Telemetry rides a per-request event finalized on every exit path.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geminiweb/gemini-gateway/internal/config"
	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
	"github.com/geminiweb/gemini-gateway/internal/monitoring"
	"github.com/geminiweb/gemini-gateway/internal/utils"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type chatRequest struct {
	Prompt           string `json:"prompt"`
	Model            string `json:"model"`
	ChatID           string `json:"chat_id"`
	ReplyID          string `json:"reply_id"`
	ReplyCandidateID string `json:"reply_candidate_id"`
}

// GenerateImageResponse is the body of POST /generate-image.
type GenerateImageResponse struct {
	Text   string      `json:"text"`
	Images []ImageInfo `json:"images"`
}

// testImageGenResponse is the debug shape of POST /test-image-gen. Failures
// ride an HTTP 200 so probing scripts see the reason without status handling.
type testImageGenResponse struct {
	Success     bool        `json:"success"`
	Text        string      `json:"text,omitempty"`
	ImagesCount int         `json:"images_count"`
	Images      []ImageInfo `json:"images,omitempty"`
	Thoughts    string      `json:"thoughts,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorType   string      `json:"error_type,omitempty"`
}

// =============================================================================
// TELEMETRY HELPERS
// =============================================================================

func (g *Gateway) newRequestEvent(r *http.Request) *monitoring.RequestEvent {
	size := 0
	if r.ContentLength > 0 {
		size = int(r.ContentLength)
	}
	return &monitoring.RequestEvent{
		RequestID:       g.getRequestID(r),
		Timestamp:       time.Now(),
		Method:          r.Method,
		Path:            r.URL.Path,
		ClientIP:        clientIP(r),
		RequestBodySize: size,
	}
}

// finishEvent finalizes and publishes one request event. Runs deferred on
// every exit path of the session-backed handlers.
func (g *Gateway) finishEvent(ev *monitoring.RequestEvent, start time.Time) {
	ev.TotalLatencyMs = time.Since(start).Milliseconds()

	g.metrics.RecordRequest(ev.Success, time.Duration(ev.TotalLatencyMs)*time.Millisecond)
	if ev.PromptTokens > 0 || ev.ResponseTokens > 0 {
		g.metrics.RecordTokens(ev.PromptTokens, ev.ResponseTokens)
	}

	g.tracker.RecordRequest(ev)
	if g.history != nil {
		err := g.history.Record(monitoring.HistoryRow{
			ID:             ev.RequestID,
			Timestamp:      ev.Timestamp,
			Method:         ev.Method,
			Path:           ev.Path,
			Status:         ev.StatusCode,
			LatencyMs:      ev.TotalLatencyMs,
			Model:          ev.Model,
			PromptTokens:   ev.PromptTokens,
			ResponseTokens: ev.ResponseTokens,
			ClientKey:      ev.ClientKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to record request history")
		}
	}
	g.events.Publish(ev)
}

// respond writes a JSON body and records its size/status on the event.
func (g *Gateway) respond(w http.ResponseWriter, ev *monitoring.RequestEvent, status int, payload any) {
	data, err := utils.MarshalNoEscape(payload)
	if err != nil {
		g.fail(w, ev, http.StatusInternalServerError, errTypeUpstream, "Failed to encode response: "+err.Error())
		return
	}
	ev.StatusCode = status
	ev.ResponseBodySize = len(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (g *Gateway) ok(w http.ResponseWriter, ev *monitoring.RequestEvent, payload any) {
	ev.Success = true
	g.respond(w, ev, http.StatusOK, payload)
}

func (g *Gateway) fail(w http.ResponseWriter, ev *monitoring.RequestEvent, status int, errType, detail string) {
	ev.StatusCode = status
	ev.Success = false
	ev.Error = detail
	writeErrorEnvelope(w, status, errType, detail)
}

// =============================================================================
// SESSION HELPERS
// =============================================================================

// requireIdentity extracts the cookie pair, failing 400 before any session
// cache access when the primary cookie is absent.
func (g *Gateway) requireIdentity(w http.ResponseWriter, r *http.Request, ev *monitoring.RequestEvent) (Identity, bool) {
	id, err := identityFromRequest(r)
	if err != nil {
		g.fail(w, ev, http.StatusBadRequest, errTypeMissingIdentity, missingIdentityDetail)
		return Identity{}, false
	}
	ev.ClientKey = id.maskedKey()
	return id, true
}

// acquire fetches a live session for the identity, translating failures
// through the taxonomy with the handler's detail prefix.
func (g *Gateway) acquire(w http.ResponseWriter, r *http.Request, ev *monitoring.RequestEvent, id Identity, prefix string) (Session, bool) {
	sess, reused, err := g.sessions.Acquire(r.Context(), id)
	if err != nil {
		status, errType := upstreamErrorClass(err, errTypeUpstream)
		g.fail(w, ev, status, errType, prefix+err.Error())
		return nil, false
	}
	ev.SessionReused = reused
	return sess, true
}

func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, ev *monitoring.RequestEvent, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// =============================================================================
// STATIC SURFACES
// =============================================================================

// handleRoot serves endpoint discovery. The root pattern also catches
// unknown paths, which 404.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErrorEnvelope(w, http.StatusNotFound, errTypeBadRequest, "Unknown endpoint: "+r.URL.Path)
		return
	}

	payload := map[string]any{
		"service": "gemini-webapi",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /generate":            "Single-turn text generation {prompt, model}",
			"POST /chat":                "Multi-turn chat {prompt, model, chat_id?, reply_id?, reply_candidate_id?}",
			"POST /generate-image":      "Image generation with prompt-template retry {prompt, model}",
			"POST /test-image-gen":      "Image generation smoke test (fixed prompt)",
			"POST /edit-image":          "Image editing (multipart: prompt, model, image)",
			"POST /generate-with-files": "Generation with file attachments (multipart: prompt, model, files)",
			"GET /download-image":       "Authenticated image download proxy (?url=)",
			"GET /models":               "Available model listing",
			"GET /health":               "Service health",
		},
		"authentication": "Send your Gemini cookies in the Cookie header: " +
			cookiePSID + " (required), " + cookiePSIDTS + " (recommended)",
		"examples": []string{
			`curl -X POST http://localhost:8000/generate -H 'Cookie: __Secure-1PSID=...' -H 'Content-Type: application/json' -d '{"prompt":"Hello"}'`,
			`curl -X POST http://localhost:8000/generate-image -H 'Cookie: __Secure-1PSID=...' -H 'Content-Type: application/json' -d '{"prompt":"a lighthouse at dusk"}'`,
		},
	}

	data, _ := utils.MarshalNoEscape(payload)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "gemini-webapi",
	})
}

func (g *Gateway) handleModels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"models": geminiweb.AvailableModels(),
	})
}

// =============================================================================
// GENERATION
// =============================================================================

func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	var req generateRequest
	if !g.decodeJSON(w, r, ev, &req) {
		return
	}
	if req.Prompt == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to generate content: prompt is required")
		return
	}

	sess, ok := g.acquire(w, r, ev, id, "Failed to generate content: ")
	if !ok {
		return
	}

	model := geminiweb.ModelFromName(req.Model)
	ev.Model = model.Name

	upstreamStart := time.Now()
	out, err := sess.GenerateContent(r.Context(), req.Prompt, model, nil)
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		status, errType := upstreamErrorClass(err, errTypeUpstream)
		g.fail(w, ev, status, errType, "Failed to generate content: "+err.Error())
		return
	}

	ev.PromptTokens = g.tokens.Count(req.Prompt)
	ev.ResponseTokens = g.tokens.Count(out.Text())

	resp := shapeGenerate(out)
	ev.ImageCount = len(resp.Images)
	g.ok(w, ev, resp)
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	var req chatRequest
	if !g.decodeJSON(w, r, ev, &req) {
		return
	}
	if req.Prompt == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to chat: prompt is required")
		return
	}

	sess, ok := g.acquire(w, r, ev, id, "Failed to chat: ")
	if !ok {
		return
	}

	model := geminiweb.ModelFromName(req.Model)
	ev.Model = model.Name

	// Continuation token: exactly the present fields, original order, no
	// null padding.
	metadata := make([]string, 0, 3)
	if req.ChatID != "" {
		metadata = append(metadata, req.ChatID)
	}
	if req.ReplyID != "" {
		metadata = append(metadata, req.ReplyID)
	}
	if req.ReplyCandidateID != "" {
		metadata = append(metadata, req.ReplyCandidateID)
	}

	turn := sess.StartChat(model, metadata)

	upstreamStart := time.Now()
	out, err := turn.SendMessage(r.Context(), req.Prompt)
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		status, errType := upstreamErrorClass(err, errTypeUpstream)
		g.fail(w, ev, status, errType, "Failed to chat: "+err.Error())
		return
	}

	ev.PromptTokens = g.tokens.Count(req.Prompt)
	ev.ResponseTokens = g.tokens.Count(out.Text())

	resp := shapeChat(out, turn.Metadata())
	ev.ImageCount = len(resp.Images)
	g.ok(w, ev, resp)
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// imagePromptTemplates are tried in order until an attempt yields at least
// one image with a non-empty URL.
var imagePromptTemplates = []string{
	"Create an image of %s",
	"Generate a picture showing %s",
	"Draw %s",
	"Make an image: %s",
}

// generatedContentMarker distinguishes synthesized images from web results
// in the image generation handler, where callers care about the kind
// regardless of which reply slot carried it.
const generatedContentMarker = "googleusercontent.com/image_generation_content"

// collectImagesByMarker flattens the chosen candidate's images, classifying
// each by the generated-content URL marker. Entries without a URL are
// dropped; titles fall back to "Generated Image".
func collectImagesByMarker(out *geminiweb.ModelOutput) []ImageInfo {
	images := make([]ImageInfo, 0)
	if out.Chosen < 0 || out.Chosen >= len(out.Candidates) {
		return images
	}
	cand := out.Candidates[out.Chosen]

	add := func(url, title, alt string) {
		if url == "" {
			return
		}
		kind := "web"
		if strings.Contains(url, generatedContentMarker) {
			kind = "generated"
		}
		if title == "" {
			title = "Generated Image"
		}
		images = append(images, ImageInfo{URL: url, Title: title, Alt: alt, Type: kind})
	}

	for _, img := range cand.WebImages {
		add(img.URL, img.Title, img.Alt)
	}
	for _, img := range cand.GeneratedImages {
		add(img.URL, img.Title, img.Alt)
	}
	return images
}

func (g *Gateway) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	var req generateRequest
	if !g.decodeJSON(w, r, ev, &req) {
		return
	}
	if req.Prompt == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to generate image: prompt is required")
		return
	}

	sess, ok := g.acquire(w, r, ev, id, "Failed to generate image: ")
	if !ok {
		return
	}

	model := geminiweb.ModelFromName(req.Model)
	ev.Model = model.Name
	ev.PromptTokens = g.tokens.Count(req.Prompt)

	upstreamStart := time.Now()
	attempts := 0
	lastReason := "all prompt templates exhausted without producing an image"

	for _, tpl := range imagePromptTemplates {
		attempts++
		out, err := sess.GenerateContent(r.Context(), fmt.Sprintf(tpl, req.Prompt), model, nil)
		if err != nil {
			lastReason = err.Error()
			log.Debug().Int("attempt", attempts).Err(err).Msg("image generation attempt failed")
			continue
		}

		images := collectImagesByMarker(out)
		if len(images) == 0 {
			lastReason = fmt.Sprintf("no image in response for template %q", tpl)
			continue
		}

		ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
		ev.RetryAttempts = attempts
		ev.ImageCount = len(images)
		ev.ResponseTokens = g.tokens.Count(out.Text())
		g.metrics.RecordImageRetry(attempts, len(images))
		g.ok(w, ev, GenerateImageResponse{Text: out.Text(), Images: images})
		return
	}

	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	ev.RetryAttempts = attempts
	g.metrics.RecordImageRetry(attempts, 0)
	g.fail(w, ev, http.StatusInternalServerError, errTypeImageGeneration, "Failed to generate image: "+lastReason)
}

// testImagePrompt drives the smoke-test endpoint.
const testImagePrompt = "Create a simple drawing of a red apple"

func (g *Gateway) handleTestImageGen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	// Failures below this point ride an HTTP 200 with success:false; the
	// endpoint exists for probing, not for production callers.
	writeDebugFailure := func(err error) {
		_, errType := upstreamErrorClass(err, errTypeImageGeneration)
		ev.Success = false
		ev.Error = err.Error()
		g.respond(w, ev, http.StatusOK, testImageGenResponse{
			Success:   false,
			Error:     err.Error(),
			ErrorType: errType,
		})
	}

	sess, reused, err := g.sessions.Acquire(r.Context(), id)
	if err != nil {
		writeDebugFailure(err)
		return
	}
	ev.SessionReused = reused
	ev.Model = geminiweb.DefaultModel.Name

	upstreamStart := time.Now()
	out, err := sess.GenerateContent(r.Context(), testImagePrompt, geminiweb.DefaultModel, nil)
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		writeDebugFailure(err)
		return
	}

	images := collectImagesByMarker(out)
	ev.ImageCount = len(images)
	ev.Success = true
	g.respond(w, ev, http.StatusOK, testImageGenResponse{
		Success:     true,
		Text:        out.Text(),
		ImagesCount: len(images),
		Images:      images,
		Thoughts:    out.Thoughts(),
	})
}

// =============================================================================
// FILE-AUGMENTED GENERATION
// =============================================================================

func (g *Gateway) handleEditImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadSize)
	if err := r.ParseMultipartForm(config.MultipartMemoryLimit); err != nil {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	prompt := r.FormValue("prompt")
	if prompt == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to edit image: prompt is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to edit image: image file is required")
		return
	}
	_ = file.Close()

	staged, err := stageUpload(header)
	if err != nil {
		g.fail(w, ev, http.StatusInternalServerError, errTypeAttachment, "Failed to edit image: "+err.Error())
		return
	}
	defer releaseStaged([]string{staged})

	sess, ok := g.acquire(w, r, ev, id, "Failed to edit image: ")
	if !ok {
		return
	}

	model := geminiweb.ModelFromName(r.FormValue("model"))
	ev.Model = model.Name

	upstreamStart := time.Now()
	out, err := sess.GenerateContent(r.Context(), "Edit this image: "+prompt, model, []string{staged})
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		status, errType := upstreamErrorClass(err, errTypeAttachment)
		g.fail(w, ev, status, errType, "Failed to edit image: "+err.Error())
		return
	}

	ev.PromptTokens = g.tokens.Count(prompt)
	ev.ResponseTokens = g.tokens.Count(out.Text())

	resp := shapeGenerate(out)
	ev.ImageCount = len(resp.Images)
	g.ok(w, ev, resp)
}

func (g *Gateway) handleGenerateWithFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadSize)
	if err := r.ParseMultipartForm(config.MultipartMemoryLimit); err != nil {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	prompt := r.FormValue("prompt")
	if prompt == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to generate content with files: prompt is required")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Failed to generate content with files: at least one file is required")
		return
	}

	// All files stage before the upstream call; release runs on every exit
	// path from here on.
	staged := make([]string, 0, len(headers))
	defer func() { releaseStaged(staged) }()
	for _, header := range headers {
		path, err := stageUpload(header)
		if err != nil {
			g.fail(w, ev, http.StatusInternalServerError, errTypeAttachment, "Failed to generate content with files: "+err.Error())
			return
		}
		staged = append(staged, path)
	}

	sess, ok := g.acquire(w, r, ev, id, "Failed to generate content with files: ")
	if !ok {
		return
	}

	model := geminiweb.ModelFromName(r.FormValue("model"))
	ev.Model = model.Name

	upstreamStart := time.Now()
	out, err := sess.GenerateContent(r.Context(), prompt, model, staged)
	ev.UpstreamLatencyMs = time.Since(upstreamStart).Milliseconds()
	if err != nil {
		status, errType := upstreamErrorClass(err, errTypeAttachment)
		g.fail(w, ev, status, errType, "Failed to generate content with files: "+err.Error())
		return
	}

	ev.PromptTokens = g.tokens.Count(prompt)
	ev.ResponseTokens = g.tokens.Count(out.Text())

	resp := shapeGenerate(out)
	ev.ImageCount = len(resp.Images)
	g.ok(w, ev, resp)
}

// =============================================================================
// DOWNLOAD PROXY
// =============================================================================

func (g *Gateway) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	ev := g.newRequestEvent(r)
	defer g.finishEvent(ev, start)

	id, ok := g.requireIdentity(w, r, ev)
	if !ok {
		return
	}

	imageURL := r.URL.Query().Get("url")
	if imageURL == "" {
		g.fail(w, ev, http.StatusBadRequest, errTypeBadRequest, "Error downloading image: url query parameter is required")
		return
	}

	// Everything past the identity check is one fetch attempt: acquisition
	// failures included, any error here is a 500 proxy failure.
	proxyFail := func(err error) {
		g.fail(w, ev, http.StatusInternalServerError, errTypeProxyFetch, "Error downloading image: "+err.Error())
	}

	sess, reused, err := g.sessions.Acquire(r.Context(), id)
	if err != nil {
		proxyFail(err)
		return
	}
	ev.SessionReused = reused

	dir, err := os.MkdirTemp("", "gateway-download-*")
	if err != nil {
		proxyFail(err)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Str("dir", dir).Err(err).Msg("failed to remove download temp dir")
		}
	}()

	img := &geminiweb.GeneratedImage{URL: imageURL, Cookies: sess.Cookies()}
	path, err := img.Save(r.Context(), nil, dir, "temp_image.png")
	if err != nil {
		proxyFail(err)
		return
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is inside our own temp dir
	if err != nil {
		proxyFail(err)
		return
	}

	g.metrics.RecordBytesProxied(len(data))
	ev.StatusCode = http.StatusOK
	ev.Success = true
	ev.ResponseBodySize = len(data)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename=temp_image.png`)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", config.DownloadCacheMaxAge))
	_, _ = w.Write(data)
}
