package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geminiweb/gemini-gateway/internal/gateway"
	"github.com/geminiweb/gemini-gateway/internal/geminiweb"
)

const testCookieHeader = "__Secure-1PSID=psid-test-value-0123456789; __Secure-1PSIDTS=ts-test-value"

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (message, errType string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Message, envelope.Error.Type
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestGenerate_MissingCookieIs400BeforeSessionWork(t *testing.T) {
	created := false
	gw, err := gateway.New(testConfig(), gateway.WithSessionFactory(func(_ gateway.Identity) gateway.Session {
		created = true
		return &stubSession{}
	}))
	require.NoError(t, err)

	for _, path := range []string{"/generate", "/chat", "/generate-image", "/edit-image", "/generate-with-files", "/download-image"} {
		method := http.MethodPost
		if path == "/download-image" {
			method = http.MethodGet
		}
		w := doJSON(t, gw.Handler(), method, path, map[string]string{"prompt": "hi"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)

		message, errType := decodeError(t, w)
		assert.Equal(t, "missing_identity", errType, path)
		assert.Contains(t, message, "__Secure-1PSID", path)
	}

	assert.False(t, created, "missing identity must never reach the session factory")
	assert.Equal(t, 0, gw.Sessions().Len())
}

func TestGenerate_UnrelatedCookiesAreIgnored(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": "hi"}, "NID=abc; OTZ=def")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, errType := decodeError(t, w)
	assert.Equal(t, "missing_identity", errType)
}

// =============================================================================
// GENERATE
// =============================================================================

func TestGenerate_ShapesTextAndMetadata(t *testing.T) {
	sess := &stubSession{generateFunc: func(_ context.Context, prompt string, _ geminiweb.Model, _ []string) (*geminiweb.ModelOutput, error) {
		assert.Equal(t, "tell me a story", prompt)
		return &geminiweb.ModelOutput{
			Candidates: []geminiweb.Candidate{{RCID: "rc_9", Text: "once upon a time", Thoughts: "plotting"}},
			Metadata:   []string{"c_9", "r_9"},
		}, nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": "tell me a story"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Text         string `json:"text"`
		Thoughts     string `json:"thoughts"`
		Images       []any  `json:"images"`
		ChatMetadata struct {
			ChatID           *string `json:"chat_id"`
			ReplyID          *string `json:"reply_id"`
			ReplyCandidateID *string `json:"reply_candidate_id"`
		} `json:"chat_metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "once upon a time", resp.Text)
	assert.Equal(t, "plotting", resp.Thoughts)
	assert.NotNil(t, resp.Images)
	assert.Empty(t, resp.Images)
	require.NotNil(t, resp.ChatMetadata.ChatID)
	assert.Equal(t, "c_9", *resp.ChatMetadata.ChatID)
	require.NotNil(t, resp.ChatMetadata.ReplyID)
	assert.Equal(t, "r_9", *resp.ChatMetadata.ReplyID)
	require.NotNil(t, resp.ChatMetadata.ReplyCandidateID)
	assert.Equal(t, "rc_9", *resp.ChatMetadata.ReplyCandidateID)
}

func TestGenerate_EmptyPromptIs400(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": ""}, testCookieHeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, errType := decodeError(t, w)
	assert.Equal(t, "bad_request", errType)
}

func TestGenerate_AuthRejectionIs401(t *testing.T) {
	sess := &stubSession{initErr: &geminiweb.AuthError{Reason: "no access token in app shell"}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": "hi"}, testCookieHeader)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	message, errType := decodeError(t, w)
	assert.Equal(t, "auth_rejected", errType)
	assert.True(t, strings.HasPrefix(message, "Failed to generate content: "), message)
	assert.Equal(t, 0, gw.Sessions().Len())
}

func TestGenerate_UpstreamFailureIs500(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return nil, &geminiweb.APIError{Operation: "generate", Message: "response contained no candidates"}
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": "hi"}, testCookieHeader)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	message, errType := decodeError(t, w)
	assert.Equal(t, "upstream_error", errType)
	assert.Contains(t, message, "Failed to generate content: ")
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_ContinuationTokenIsExactSubsetInOrder(t *testing.T) {
	var seen []string
	sess := &stubSession{}
	sess.generateFunc = func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return &geminiweb.ModelOutput{
			Candidates: []geminiweb.Candidate{{RCID: "rc_new", Text: "reply"}},
			Metadata:   []string{"c_new", "r_new"},
		}, nil
	}

	gw, err := gateway.New(testConfig(), gateway.WithSessionFactory(func(_ gateway.Identity) gateway.Session {
		return &recordingChatSession{stubSession: sess, onStartChat: func(metadata []string) {
			seen = metadata
		}}
	}))
	require.NoError(t, err)

	tests := []struct {
		name string
		body map[string]string
		want []string
	}{
		{
			name: "all three present",
			body: map[string]string{"prompt": "hi", "chat_id": "c1", "reply_id": "r1", "reply_candidate_id": "rc1"},
			want: []string{"c1", "r1", "rc1"},
		},
		{
			name: "no padding for absent middle entry",
			body: map[string]string{"prompt": "hi", "chat_id": "c1", "reply_candidate_id": "rc1"},
			want: []string{"c1", "rc1"},
		},
		{
			name: "chat id only",
			body: map[string]string{"prompt": "hi", "chat_id": "c1"},
			want: []string{"c1"},
		},
		{
			name: "fresh conversation",
			body: map[string]string{"prompt": "hi"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			w := doJSON(t, gw.Handler(), http.MethodPost, "/chat", tt.body, testCookieHeader)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			if tt.want == nil {
				assert.Empty(t, seen)
			} else {
				assert.Equal(t, tt.want, seen)
			}
		})
	}
}

func TestChat_ResponseIDsAlwaysPresent(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return &geminiweb.ModelOutput{
			Candidates: []geminiweb.Candidate{{RCID: "rc_new", Text: "reply"}},
			Metadata:   []string{"c_new", "r_new"},
		}, nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/chat",
		map[string]string{"prompt": "hi"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "c_new", raw["chat_id"])
	assert.Equal(t, "r_new", raw["reply_id"])
	assert.Equal(t, "rc_new", raw["reply_candidate_id"])
}

// recordingChatSession intercepts StartChat to observe the forwarded
// continuation metadata.
type recordingChatSession struct {
	*stubSession
	onStartChat func(metadata []string)
}

func (s *recordingChatSession) StartChat(model geminiweb.Model, metadata []string) gateway.ChatTurn {
	if s.onStartChat != nil {
		s.onStartChat(append([]string(nil), metadata...))
	}
	return s.stubSession.StartChat(model, metadata)
}

// =============================================================================
// IMAGE GENERATION RETRY
// =============================================================================

func TestGenerateImage_LaterTemplateWinsAndLoopStops(t *testing.T) {
	// The first three attempts come back imageless; the fourth template
	// produces an image. No fifth call may happen.
	attempt := 0
	sess := &stubSession{}
	sess.generateFunc = func(_ context.Context, prompt string, _ geminiweb.Model, _ []string) (*geminiweb.ModelOutput, error) {
		attempt++
		if attempt < 4 {
			return textOutput("no image, sorry"), nil
		}
		return imageOutput("https://lh3.googleusercontent.com/image_generation_content/abc123"), nil
	}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate-image",
		map[string]string{"prompt": "a lighthouse"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Text   string `json:"text"`
		Images []struct {
			URL  string `json:"url"`
			Type string `json:"type"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "generated", resp.Images[0].Type)

	calls := sess.calls()
	require.Len(t, calls, 4, "the winning attempt must stop the loop")
	assert.Equal(t, "Create an image of a lighthouse", calls[0].prompt)
	assert.Equal(t, "Generate a picture showing a lighthouse", calls[1].prompt)
	assert.Equal(t, "Draw a lighthouse", calls[2].prompt)
	assert.Equal(t, "Make an image: a lighthouse", calls[3].prompt)
}

func TestGenerateImage_FirstTemplateSuccessSkipsRest(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return imageOutput("https://lh3.googleusercontent.com/image_generation_content/first"), nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate-image",
		map[string]string{"prompt": "a fox"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sess.calls(), 1)
}

func TestGenerateImage_ExhaustionIs500WithLastReason(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return nil, errors.New("upstream said no")
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate-image",
		map[string]string{"prompt": "a fox"}, testCookieHeader)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	message, errType := decodeError(t, w)
	assert.Equal(t, "image_generation_failed", errType)
	assert.True(t, strings.HasPrefix(message, "Failed to generate image: "), message)
	assert.Contains(t, message, "upstream said no")
	assert.Len(t, sess.calls(), 4, "all four templates must be tried before giving up")
}

func TestGenerateImage_WebOnlyImagesCountAsResult(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return &geminiweb.ModelOutput{
			Candidates: []geminiweb.Candidate{{
				Text:      "found this",
				WebImages: []geminiweb.WebImage{{URL: "https://example.com/pic.jpg", Title: "Pic"}},
			}},
		}, nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate-image",
		map[string]string{"prompt": "a fox"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Images []struct {
			Type string `json:"type"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "web", resp.Images[0].Type)
	assert.Len(t, sess.calls(), 1)
}

func TestTestImageGen_FailureRidesHTTP200(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return nil, &geminiweb.APIError{Operation: "generate", Message: "boom"}
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/test-image-gen", nil, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		ErrorType string `json:"error_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, "image_generation_failed", resp.ErrorType)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := mw.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("file-content-" + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestGenerateWithFiles_StagedFilesReleasedAfterUpstreamFailure(t *testing.T) {
	sess := &stubSession{generateFunc: func(context.Context, string, geminiweb.Model, []string) (*geminiweb.ModelOutput, error) {
		return nil, &geminiweb.APIError{Operation: "generate", Message: "upload rejected"}
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "describe these"},
		map[string][]string{"files": {"a.txt", "b.png"}},
	)
	req := httptest.NewRequest(http.MethodPost, "/generate-with-files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	message, errType := decodeError(t, w)
	assert.Equal(t, "attachment_failed", errType)
	assert.Contains(t, message, "Failed to generate content with files: ")

	calls := sess.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].files, 2)
	for _, path := range calls[0].files {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "staged file %s must be released after failure", path)
	}
}

func TestGenerateWithFiles_PreservesExtensionAndSucceeds(t *testing.T) {
	sess := &stubSession{generateFunc: func(_ context.Context, prompt string, _ geminiweb.Model, files []string) (*geminiweb.ModelOutput, error) {
		return textOutput("looked at " + fmt.Sprint(len(files)) + " files"), nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "describe"},
		map[string][]string{"files": {"report.pdf"}},
	)
	req := httptest.NewRequest(http.MethodPost, "/generate-with-files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := sess.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].files, 1)
	assert.True(t, strings.HasSuffix(calls[0].files[0], ".pdf"), "staging must preserve the extension")

	// Cleanup runs on the success path too.
	_, statErr := os.Stat(calls[0].files[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestEditImage_PrefixesPromptAndStagesImage(t *testing.T) {
	sess := &stubSession{generateFunc: func(_ context.Context, prompt string, _ geminiweb.Model, files []string) (*geminiweb.ModelOutput, error) {
		return textOutput("edited"), nil
	}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "make it blue"},
		map[string][]string{"image": {"photo.jpg"}},
	)
	req := httptest.NewRequest(http.MethodPost, "/edit-image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := sess.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Edit this image: make it blue", calls[0].prompt)
	require.Len(t, calls[0].files, 1)
	assert.True(t, strings.HasSuffix(calls[0].files[0], ".jpg"))
}

func TestEditImage_MissingImageIs400(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string]string{"prompt": "make it blue"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/edit-image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, errType := decodeError(t, w)
	assert.Equal(t, "bad_request", errType)
}

// =============================================================================
// DOWNLOAD PROXY
// =============================================================================

func TestDownloadImage_ProxiesBytesWithCookies(t *testing.T) {
	imageBytes := []byte("\x89PNG fake image data")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session-extra")
		require.NoError(t, err)
		assert.Equal(t, "from-handshake", cookie.Value)
		_, _ = w.Write(imageBytes)
	}))
	defer upstream.Close()

	sess := &stubSession{cookies: map[string]string{"session-extra": "from-handshake"}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/download-image?url="+upstream.URL+"/img", nil)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, imageBytes, w.Body.Bytes())
}

func TestDownloadImage_FetchFailureIs500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/download-image?url="+upstream.URL+"/img", nil)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	message, errType := decodeError(t, w)
	assert.Equal(t, "proxy_fetch_failed", errType)
	assert.True(t, strings.HasPrefix(message, "Error downloading image: "), message)
}

func TestDownloadImage_AcquisitionFailureIs500NotAuthStatus(t *testing.T) {
	sess := &stubSession{initErr: &geminiweb.AuthError{Reason: "cookies rejected"}}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/download-image?url=https://example.com/img", nil)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, errType := decodeError(t, w)
	assert.Equal(t, "proxy_fetch_failed", errType)
}

func TestDownloadImage_MissingURLIs400(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/download-image", nil)
	req.Header.Set("Cookie", testCookieHeader)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, errType := decodeError(t, w)
	assert.Equal(t, "bad_request", errType)
}

// =============================================================================
// STATIC SURFACES AND PLUMBING
// =============================================================================

func TestHealth_ReportsHealthy(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "gemini-webapi", resp["service"])
}

func TestModels_ListsAllFour(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodGet, "/models", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 4)

	names := make([]string, 0, 4)
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "gemini-2.5-flash")
	assert.Contains(t, names, "gemini-3.0-pro")
	assert.Contains(t, names, "unspecified")
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_EchoedOnResponses(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-fixed-id")
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-fixed-id", w.Header().Get("X-Request-ID"))

	// Without a caller-supplied id, one is generated.
	w2 := doJSON(t, gw.Handler(), http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, w2.Header().Get("X-Request-ID"))
}

func TestUnknownPathIs404(t *testing.T) {
	gw, err := newTestGateway(nil)
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodGet, "/no-such-endpoint", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShutdown_DrainsSessionCache(t *testing.T) {
	sess := &stubSession{}
	gw, err := newTestGateway(map[string]*stubSession{"psid-test-value-0123456789": sess})
	require.NoError(t, err)

	w := doJSON(t, gw.Handler(), http.MethodPost, "/generate",
		map[string]string{"prompt": "hi"}, testCookieHeader)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, gw.Sessions().Len())

	require.NoError(t, gw.Shutdown(context.Background()))
	assert.Equal(t, 1, sess.closeCount())
	assert.Equal(t, 0, gw.Sessions().Len())
}
