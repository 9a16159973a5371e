package geminiweb

import "context"

// ChatSession continues a multi-turn conversation. It carries the
// conversation metadata triple [chatID, replyID, replyCandidateID] and
// forwards exactly the entries it was given, in order, with absent ones
// omitted rather than padded.
type ChatSession struct {
	client   *Client
	model    Model
	metadata []string
}

// StartChat opens a chat continuation on this client. metadata holds zero
// to three prior-conversation identifiers in order; pass nil for a fresh
// conversation.
func (c *Client) StartChat(model Model, metadata []string) *ChatSession {
	meta := make([]string, len(metadata))
	copy(meta, metadata)
	return &ChatSession{
		client:   c,
		model:    model,
		metadata: meta,
	}
}

// SendMessage sends one turn and updates the session metadata from the
// reply so a subsequent call continues the same thread.
func (s *ChatSession) SendMessage(ctx context.Context, prompt string) (*ModelOutput, error) {
	out, err := s.client.generate(ctx, prompt, s.model, nil, s.metadata)
	if err != nil {
		return nil, err
	}

	meta := make([]string, 0, 3)
	meta = append(meta, out.Metadata...)
	if rcid := out.RCID(); rcid != "" && len(meta) >= 2 {
		meta = append(meta, rcid)
	}
	s.metadata = meta

	return out, nil
}

// Metadata returns the current continuation triple.
func (s *ChatSession) Metadata() []string {
	meta := make([]string, len(s.metadata))
	copy(meta, s.metadata)
	return meta
}
