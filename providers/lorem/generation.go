package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"

	"github.com/haowjy/meridian-stream-go"
)

// wordsPerSecond returns the streaming pace for a model.
func wordsPerSecond(model string) rate.Limit {
	switch {
	case strings.Contains(model, "instant"):
		return rate.Inf
	case strings.Contains(model, "slow"):
		return 2
	case strings.Contains(model, "fast"):
		return 30
	default:
		return 10
	}
}

// isCutoffModel returns true if the model should simulate max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// generation renders one mock response as Chat Completions SSE.
type generation struct {
	req         *llmprovider.GenerateRequest
	params      *llmprovider.RequestParams
	id          string
	created     int64
	gen         *loremgen.Lorem
	limiter     *rate.Limiter
	fragmentMax int
	logger      *slog.Logger

	outputTokens    int
	reasoningTokens int
}

func newGeneration(req *llmprovider.GenerateRequest, fragmentMax int, logger *slog.Logger) *generation {
	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}
	return &generation{
		req:         req,
		params:      params,
		id:          "chatcmpl-lorem-" + uuid.NewString(),
		created:     time.Now().Unix(),
		gen:         loremgen.New(),
		limiter:     rate.NewLimiter(wordsPerSecond(req.Model), 1),
		fragmentMax: fragmentMax,
		logger:      logger,
	}
}

func (g *generation) stream(ctx context.Context, s *llmprovider.Session) error {
	if err := s.Feed(ctx, llmprovider.StatusEvent(http.StatusOK)); err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Content-Type", "text/event-stream")
	header.Set("X-Lorem-Mock", "true")
	if err := s.Feed(ctx, llmprovider.HeadersEvent(header)); err != nil {
		return err
	}

	budget := g.params.GetMaxTokens(defaultMaxTokens)
	g.logger.Debug("lorem stream started",
		"thinking_enabled", g.params.IsThinkingEnabled(),
		"tools", len(g.params.Tools),
		"max_tokens", budget)

	if err := g.emit(ctx, s, g.chunk(`{"role":"assistant","content":""}`)); err != nil {
		return err
	}

	finish := "stop"
	switch {
	case isCutoffModel(g.req.Model):
		if err := g.streamWords(ctx, s, "content", budget); err != nil {
			return err
		}
		finish = "length"

	default:
		if g.params.IsThinkingEnabled() {
			n := min(blockWords, budget)
			if err := g.streamWords(ctx, s, "reasoning", n); err != nil {
				return err
			}
			budget -= n
		}
		if budget > 0 {
			n := min(blockWords, budget)
			if err := g.streamWords(ctx, s, "content", n); err != nil {
				return err
			}
			budget -= n
		}
		if tool, ok := g.pickTool(); ok && budget > 0 {
			if err := g.toolCall(ctx, s, tool); err != nil {
				return err
			}
			finish = "tool_calls"
		}
	}

	final := g.chunk(`{}`)
	final, _ = sjson.Set(final, "choices.0.finish_reason", finish)
	final, _ = sjson.Set(final, "usage.prompt_tokens", estimateTokens(g.req.Messages))
	final, _ = sjson.Set(final, "usage.completion_tokens", g.outputTokens)
	final, _ = sjson.Set(final, "usage.total_tokens", estimateTokens(g.req.Messages)+g.outputTokens)
	if g.reasoningTokens > 0 {
		final, _ = sjson.Set(final, "usage.completion_tokens_details.reasoning_tokens", g.reasoningTokens)
	}
	if err := g.emit(ctx, s, final); err != nil {
		return err
	}

	g.logger.Debug("lorem stream finished", "finish_reason", finish, "output_tokens", g.outputTokens)
	return g.write(ctx, s, "data: [DONE]\n\n")
}

// streamWords streams n words into the given delta field, one paced chunk per word.
func (g *generation) streamWords(ctx context.Context, s *llmprovider.Session, field string, n int) error {
	words := g.text(n)
	for i, w := range words {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		if i < len(words)-1 {
			w += " "
		}
		delta, _ := sjson.Set(`{}`, field, w)
		if err := g.emit(ctx, s, g.chunk(delta)); err != nil {
			return err
		}
		g.outputTokens++
		if field == "reasoning" {
			g.reasoningTokens++
		}
	}
	return nil
}

// toolCall streams one call with its arguments split over several deltas.
func (g *generation) toolCall(ctx context.Context, s *llmprovider.Session, tool llmprovider.Tool) error {
	args, err := json.Marshal(g.mockArguments(tool))
	if err != nil {
		return fmt.Errorf("failed to marshal tool input: %w", err)
	}

	head := `{"tool_calls":[{"index":0,"type":"function","function":{"arguments":""}}]}`
	head, _ = sjson.Set(head, "tool_calls.0.id", fmt.Sprintf("call_%s_%s", tool.Function.Name, uuid.NewString()[:8]))
	head, _ = sjson.Set(head, "tool_calls.0.function.name", tool.Function.Name)
	if err := g.emit(ctx, s, g.chunk(head)); err != nil {
		return err
	}

	const piece = 12
	for start := 0; start < len(args); start += piece {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		end := min(start+piece, len(args))
		delta, _ := sjson.Set(`{"tool_calls":[{"index":0,"function":{}}]}`, "tool_calls.0.function.arguments", string(args[start:end]))
		if err := g.emit(ctx, s, g.chunk(delta)); err != nil {
			return err
		}
	}
	// Rough: 1 token per 4 chars of JSON
	g.outputTokens += len(args) / 4
	return nil
}

// pickTool honors a specific tool choice and otherwise uses the first tool.
func (g *generation) pickTool() (llmprovider.Tool, bool) {
	if len(g.params.Tools) == 0 {
		return llmprovider.Tool{}, false
	}
	if tc := g.params.ToolChoice; tc != nil {
		switch tc.Mode {
		case llmprovider.ToolChoiceModeNone:
			return llmprovider.Tool{}, false
		case llmprovider.ToolChoiceModeSpecific:
			for _, t := range g.params.Tools {
				if t.Function.Name == *tc.ToolName {
					return t, true
				}
			}
		}
	}
	return g.params.Tools[0], true
}

// mockArguments fills the tool's top-level schema properties with lorem values.
func (g *generation) mockArguments(tool llmprovider.Tool) map[string]any {
	props, _ := tool.Function.Parameters["properties"].(map[string]any)
	if len(props) == 0 {
		return map[string]any{"data": "mock input for " + tool.Function.Name}
	}

	args := make(map[string]any, len(props))
	for name, raw := range props {
		schema, _ := raw.(map[string]any)
		switch schema["type"] {
		case "integer", "number":
			args[name] = 3
		case "boolean":
			args[name] = true
		case "array":
			args[name] = []string{g.gen.Word(3, 8), g.gen.Word(3, 8)}
		case "object":
			args[name] = map[string]any{}
		default:
			if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
				args[name] = enum[0]
			} else {
				args[name] = g.gen.Word(4, 10)
			}
		}
	}
	return args
}

// text returns exactly n lorem words.
func (g *generation) text(n int) []string {
	var words []string
	for len(words) < n {
		words = append(words, strings.Fields(g.gen.Sentence(5, 15))...)
	}
	return words[:n]
}

// chunk wraps a delta object in a chat.completion.chunk envelope.
func (g *generation) chunk(delta string) string {
	out := `{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`
	out, _ = sjson.Set(out, "id", g.id)
	out, _ = sjson.Set(out, "created", g.created)
	out, _ = sjson.Set(out, "model", g.req.Model)
	out, _ = sjson.SetRaw(out, "choices.0.delta", delta)
	return out
}

func (g *generation) emit(ctx context.Context, s *llmprovider.Session, payload string) error {
	return g.write(ctx, s, "data: "+payload+"\n\n")
}

// write feeds one SSE event to the session split at random byte offsets.
func (g *generation) write(ctx context.Context, s *llmprovider.Session, event string) error {
	b := []byte(event)
	for len(b) > 0 {
		n := min(len(b), 1+rand.IntN(g.fragmentMax))
		if err := s.Feed(ctx, llmprovider.DataEvent(b[:n])); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// estimateTokens estimates the token count for a list of messages.
// Uses word count as a rough approximation.
func estimateTokens(messages []llmprovider.Message) int {
	totalWords := 0
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			if block.TextContent != nil {
				totalWords += len(strings.Fields(*block.TextContent))
			}
		}
	}
	return totalWords
}
