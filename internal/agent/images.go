package agent

import "github.com/flemzord/agentbridge/pkg/message"

// imageOmitted replaces content that became empty after trimming.
const imageOmitted = "[image omitted]"

// trimImages returns the history to send to the model. When n is set, the
// result is a copy in which image blocks, standalone or nested in tool
// results, survive only in the n most recent user turns that carry images.
// history itself is never modified.
func trimImages(history []message.Message, n *int) []message.Message {
	if n == nil {
		return history
	}
	keep := max(*n, 0)

	out := message.CloneHistory(history)
	seen := 0
	for i := len(out) - 1; i >= 0; i-- {
		msg := &out[i]
		if msg.Role != message.RoleUser || !msg.HasImages() {
			continue
		}
		seen++
		if seen <= keep {
			continue
		}
		msg.Content = stripImages(msg.Content)
	}
	return out
}

// stripImages drops image blocks in place. A tool result or a message left
// without content gets a text placeholder so the turn stays well formed.
func stripImages(blocks []message.ContentBlock) []message.ContentBlock {
	out := blocks[:0]
	for _, b := range blocks {
		switch b.Type {
		case message.BlockImage:
			continue
		case message.BlockToolResult:
			inner := make([]message.ContentBlock, 0, len(b.Content))
			removed := false
			for _, c := range b.Content {
				if c.Type == message.BlockImage {
					removed = true
					continue
				}
				inner = append(inner, c)
			}
			if removed && len(inner) == 0 {
				inner = append(inner, message.NewTextBlock(imageOmitted))
			}
			b.Content = inner
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		out = append(out, message.NewTextBlock(imageOmitted))
	}
	return out
}
