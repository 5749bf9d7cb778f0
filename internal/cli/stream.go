package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-stream-go"
)

const streamLongDesc string = `Stream a single prompt through a configured provider.

The provider is chosen from the model name unless --provider is given. The
prompt is taken from the arguments, or from stdin when no argument (or "-")
is passed. Text is printed as it arrives; tool calls, the finish reason and
token usage are printed once the stream ends.

Examples:
  meridian-stream stream -m lorem-fast "Tell me a story"
  meridian-stream stream -m claude-sonnet-4-5 --thinking --reasoning "Why is the sky blue?"
  echo "Summarize RFC 9110" | meridian-stream stream -m gpt-4o --json`

const streamShortDesc string = "Stream a prompt through any configured provider"

type streamCommander struct {
	g *globals

	model         string
	provider      string
	system        string
	maxTokens     int
	thinking      bool
	thinkingLevel string
	reasoning     bool
	jsonOut       bool
}

func newStreamCmd(g *globals) *cobra.Command {
	cmder := &streamCommander{g: g}

	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: streamShortDesc,
		Long:  streamLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), prompt)
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "lorem-fast", "Model name (e.g., claude-sonnet-4-5, gpt-4o, gemini-2.5-flash)")
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Provider id; inferred from the model when empty")
	cmd.Flags().StringVarP(&cmder.system, "system", "s", "", "System prompt")
	cmd.Flags().IntVar(&cmder.maxTokens, "max-tokens", 0, "Maximum output tokens (provider default when 0)")
	cmd.Flags().BoolVar(&cmder.thinking, "thinking", false, "Enable extended thinking")
	cmd.Flags().StringVar(&cmder.thinkingLevel, "thinking-level", "", "Thinking effort: low, medium or high")
	cmd.Flags().BoolVar(&cmder.reasoning, "reasoning", false, "Print reasoning text as it streams")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the full response as JSON instead of streaming text")

	return cmd
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt != "" && prompt != "-" {
		return prompt, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	prompt = strings.TrimSpace(string(b))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

func (c *streamCommander) resolve() (llmprovider.Provider, error) {
	log := c.g.logger.With("model", c.model)
	if c.provider != "" {
		return c.g.cfg.NewProvider(llmprovider.ProviderID(c.provider), log)
	}
	return c.g.cfg.ProviderForModel(c.model, log)
}

func (c *streamCommander) request(prompt string) *llmprovider.GenerateRequest {
	params := &llmprovider.RequestParams{}
	if c.system != "" {
		params.System = &c.system
	}
	if c.maxTokens > 0 {
		params.MaxTokens = &c.maxTokens
	}
	if c.thinking {
		params.ThinkingEnabled = &c.thinking
		if c.thinkingLevel != "" {
			params.ThinkingLevel = &c.thinkingLevel
		}
	}
	return &llmprovider.GenerateRequest{
		Model:    c.model,
		Messages: []llmprovider.Message{llmprovider.NewUserMessage(prompt)},
		Params:   params,
	}
}

func (c *streamCommander) run(ctx context.Context, w io.Writer, prompt string) error {
	p, err := c.resolve()
	if err != nil {
		return err
	}
	req := c.request(prompt)

	resp, err := p.StreamResponse(ctx, req)
	if err != nil {
		return err
	}
	c.g.logger.Debug("stream started", "provider", p.Name().String(), "model", req.Model)

	if c.jsonOut {
		out, err := resp.ToResponse(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	pr := &printer{w: w, showReasoning: c.reasoning}
	var chunks []llmprovider.Chunk
	for chunk, err := range resp.Stream().All(ctx) {
		if err != nil {
			resp.Cancel()
			return err
		}
		chunks = append(chunks, chunk)
		pr.chunk(chunk)
	}

	meta, err := resp.Metadata(ctx)
	if err != nil {
		return err
	}
	out, err := llmprovider.AssembleResponse(chunks, meta, req.Model)
	if err != nil {
		return err
	}
	pr.summary(out)
	return nil
}
