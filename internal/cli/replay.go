package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
	"github.com/haowjy/meridian-stream-go/internal/logger"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/bedrock"
	"github.com/haowjy/meridian-stream-go/providers/google"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

const replayLongDesc string = `Replay a captured response body through a streaming session.

The file is fed to the session in randomly sized fragments, the way a slow
network would deliver it, and every normalized chunk is printed as one JSON
line. A final "summary" line carries the assembled response. Pass "-" to read
the capture from stdin.

The provider selects the framing and decoder: bedrock captures are binary
eventstream, every other provider is SSE.

Examples:
  meridian-stream replay --provider anthropic capture.sse
  meridian-stream replay --provider bedrock --max-fragment 7 --seed 42 capture.bin`

const replayShortDesc string = "Replay a captured SSE or eventstream body"

type replayCommander struct {
	g *globals

	provider    string
	model       string
	maxFragment int
	seed        uint64
}

func newReplayCmd(g *globals) *cobra.Command {
	cmder := &replayCommander{g: g}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readCapture(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), data)
		},
	}

	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "openai", "Provider whose wire format the capture uses")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "replay", "Model name reported in the response")
	cmd.Flags().IntVar(&cmder.maxFragment, "max-fragment", 16, "Largest fragment size in bytes")
	cmd.Flags().Uint64Var(&cmder.seed, "seed", 0, "Fragmenting seed; random when 0")

	return cmd
}

func readCapture(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return data, nil
}

// wireFormat returns the decoder and reassembler for a provider's stream.
func (c *replayCommander) wireFormat(id llmprovider.ProviderID) (llmprovider.Decoder, frame.Reassembler, error) {
	switch id {
	case llmprovider.ProviderOpenAI, llmprovider.ProviderOpenRouter, llmprovider.ProviderGroq,
		llmprovider.ProviderXAI, llmprovider.ProviderLorem:
		return openai.Decoder, frame.SSE{}, nil
	case llmprovider.ProviderAnthropic:
		return anthropic.Decoder, frame.SSE{}, nil
	case llmprovider.ProviderGoogle:
		return google.Decoder, frame.SSE{}, nil
	case llmprovider.ProviderBedrock:
		r := frame.EventStream{}
		if c.g.debug {
			r.Logger = logger.Smithy(c.g.logger)
		}
		return bedrock.Decoder, r, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown provider %q", llmprovider.ErrUnsupportedFeature, id)
	}
}

func (c *replayCommander) run(ctx context.Context, w io.Writer, data []byte) error {
	if c.maxFragment < 1 {
		return fmt.Errorf("--max-fragment must be at least 1")
	}
	id := llmprovider.ProviderID(c.provider)
	dec, reassembler, err := c.wireFormat(id)
	if err != nil {
		return err
	}

	opts := append(c.g.cfg.Stream.SessionOptions(), llmprovider.WithLogger(c.g.logger.With("provider", c.provider)))
	s := llmprovider.NewSession(dec, reassembler, llmprovider.ModelContext{Provider: id, Model: c.model}, opts...)
	defer s.Cancel()

	seed := c.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c.g.logger.Debug("replaying capture", "bytes", len(data), "seed", seed, "max_fragment", c.maxFragment)
	go feedCapture(ctx, s, data, rand.New(rand.NewPCG(seed, seed)), c.maxFragment)

	enc := json.NewEncoder(w)
	var chunks []llmprovider.Chunk
	for chunk, err := range llmprovider.NewChunkStream(s, c.g.cfg.Stream.PullTimeout).All(ctx) {
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
		if err := enc.Encode(chunkRecord(chunk)); err != nil {
			return err
		}
	}

	meta, err := s.AwaitMetadata(ctx)
	if err != nil {
		return err
	}
	resp, err := llmprovider.AssembleResponse(chunks, meta, c.model)
	if err != nil {
		return err
	}
	return enc.Encode(map[string]any{
		"kind":          "summary",
		"text":          resp.Text,
		"reasoning":     resp.Reasoning,
		"tool_calls":    resp.ToolCalls,
		"finish_reason": resp.FinishReason,
		"usage":         resp.Usage,
	})
}

// feedCapture plays data into s as a successful response split at random
// offsets.
func feedCapture(ctx context.Context, s *llmprovider.Session, data []byte, rng *rand.Rand, maxFragment int) {
	if err := s.Feed(ctx, llmprovider.StatusEvent(http.StatusOK)); err != nil {
		return
	}
	for len(data) > 0 {
		n := min(len(data), 1+rng.IntN(maxFragment))
		if err := s.Feed(ctx, llmprovider.DataEvent(data[:n])); err != nil {
			return
		}
		data = data[n:]
	}
	_ = s.Feed(ctx, llmprovider.DoneEvent())
}
