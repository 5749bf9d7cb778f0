package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/haowjy/meridian-stream-go"
)

var (
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// printer renders chunks for a terminal as they arrive.
type printer struct {
	w             io.Writer
	showReasoning bool
	last          llmprovider.ChunkKind
}

func (p *printer) chunk(c llmprovider.Chunk) {
	switch c := c.(type) {
	case llmprovider.ContentChunk:
		if p.last == llmprovider.ChunkKindReasoning {
			fmt.Fprint(p.w, "\n\n")
		}
		fmt.Fprint(p.w, c.Text)
		p.last = c.Kind()
	case llmprovider.ReasoningChunk:
		if !p.showReasoning || c.Text == "" {
			return
		}
		fmt.Fprint(p.w, reasoningStyle.Render(c.Text))
		p.last = c.Kind()
	}
}

// summary prints the assembled tool calls, finish reason and usage.
func (p *printer) summary(resp *llmprovider.GenerateResponse) {
	fmt.Fprintln(p.w)
	for _, call := range resp.ToolCalls {
		args, _ := json.Marshal(call.Arguments)
		fmt.Fprintln(p.w, toolStyle.Render(fmt.Sprintf("tool %s(%s)", call.Name, args)), dimStyle.Render(call.ID))
	}

	line := fmt.Sprintf("finish=%s", resp.FinishReason)
	if u := resp.Usage; u != nil {
		line += fmt.Sprintf(" input_tokens=%d output_tokens=%d", u.InputTokens, u.OutputTokens)
		if u.ReasoningTokens > 0 {
			line += fmt.Sprintf(" reasoning_tokens=%d", u.ReasoningTokens)
		}
	}
	fmt.Fprintln(p.w, dimStyle.Render(line))
}

// chunkRecord flattens a chunk into a JSON-friendly map.
func chunkRecord(c llmprovider.Chunk) map[string]any {
	rec := map[string]any{"kind": c.Kind()}
	switch c := c.(type) {
	case llmprovider.ContentChunk:
		rec["text"] = c.Text
	case llmprovider.ReasoningChunk:
		if c.Text != "" {
			rec["text"] = c.Text
		}
		if c.Signature != "" {
			rec["signature"] = c.Signature
		}
	case llmprovider.ToolCallChunk:
		rec["index"] = c.Index
		if c.ID != "" {
			rec["id"] = c.ID
		}
		if c.Name != "" {
			rec["name"] = c.Name
		}
		if c.Partial {
			rec["partial_json"] = c.PartialJSON
		} else {
			rec["arguments"] = c.Arguments
		}
		if len(c.Metadata) > 0 {
			rec["metadata"] = c.Metadata
		}
	case llmprovider.MetaChunk:
		rec["fields"] = c.Fields
	}
	return rec
}
