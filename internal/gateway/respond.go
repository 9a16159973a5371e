// Package gateway - respond.go shapes upstream output into wire responses.
//
// DESIGN: One shaper translates ModelOutput into the wire form. The
// web/generated distinction is carried by the boundary variant, surfaced as
// the "type" field. Success bodies are encoded without HTML escaping so
// image URLs with "&" survive intact.
package gateway

import "github.com/geminiweb/gemini-gateway/internal/geminiweb"

// ImageInfo is one image entry in a response.
type ImageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Alt   string `json:"alt"`
	Type  string `json:"type"` // "web" or "generated"
}

// ChatMetadata is the conversation continuation triple. Values are null when
// the backend did not supply them.
type ChatMetadata struct {
	ChatID           *string `json:"chat_id"`
	ReplyID          *string `json:"reply_id"`
	ReplyCandidateID *string `json:"reply_candidate_id"`
}

// GenerateResponse is the body of POST /generate (and the file-augmented
// variants, which share the shape).
type GenerateResponse struct {
	Text         string       `json:"text"`
	Thoughts     string       `json:"thoughts,omitempty"`
	Images       []ImageInfo  `json:"images"`
	ChatMetadata ChatMetadata `json:"chat_metadata"`
}

// ChatResponse is the body of POST /chat. The continuation ids are always
// present, empty string when absent, so stateless callers can echo them
// back without null checks.
type ChatResponse struct {
	Text             string      `json:"text"`
	Thoughts         string      `json:"thoughts,omitempty"`
	Images           []ImageInfo `json:"images"`
	ChatID           string      `json:"chat_id"`
	ReplyID          string      `json:"reply_id"`
	ReplyCandidateID string      `json:"reply_candidate_id"`
}

// shapeImages flattens both image variants of the chosen candidate into wire
// entries. Never nil: an imageless reply serializes as [].
func shapeImages(out *geminiweb.ModelOutput) []ImageInfo {
	images := make([]ImageInfo, 0)
	if out.Chosen < 0 || out.Chosen >= len(out.Candidates) {
		return images
	}
	cand := out.Candidates[out.Chosen]
	for _, img := range cand.WebImages {
		images = append(images, ImageInfo{URL: img.URL, Title: img.Title, Alt: img.Alt, Type: "web"})
	}
	for _, img := range cand.GeneratedImages {
		images = append(images, ImageInfo{URL: img.URL, Title: img.Title, Alt: img.Alt, Type: "generated"})
	}
	return images
}

// shapeGenerate builds the /generate response shape from one upstream reply.
func shapeGenerate(out *geminiweb.ModelOutput) GenerateResponse {
	resp := GenerateResponse{
		Text:   out.Text(),
		Images: shapeImages(out),
	}
	resp.Thoughts = out.Thoughts()

	if len(out.Metadata) >= 1 && out.Metadata[0] != "" {
		v := out.Metadata[0]
		resp.ChatMetadata.ChatID = &v
	}
	if len(out.Metadata) >= 2 && out.Metadata[1] != "" {
		v := out.Metadata[1]
		resp.ChatMetadata.ReplyID = &v
	}
	if rcid := out.RCID(); rcid != "" {
		resp.ChatMetadata.ReplyCandidateID = &rcid
	}
	return resp
}

// shapeChat builds the /chat response shape from the turn's updated
// continuation metadata.
func shapeChat(out *geminiweb.ModelOutput, metadata []string) ChatResponse {
	resp := ChatResponse{
		Text:     out.Text(),
		Thoughts: out.Thoughts(),
		Images:   shapeImages(out),
	}
	if len(metadata) >= 1 {
		resp.ChatID = metadata[0]
	}
	if len(metadata) >= 2 {
		resp.ReplyID = metadata[1]
	}
	if len(metadata) >= 3 {
		resp.ReplyCandidateID = metadata[2]
	}
	return resp
}
