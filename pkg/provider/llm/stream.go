package llm

import (
	"context"
	"iter"
	"strings"
)

// Finish reasons carried by [Chunk.FinishReason] and
// [CompletionResponse.FinishReason].
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishSafety = "safety"
	FinishError  = "error"
)

// NormalizeFinish maps a backend's finish reason onto the values above.
// Reasons with no equivalent are lower-cased and passed through.
func NormalizeFinish(raw string) string {
	switch r := strings.ToLower(raw); r {
	case "stop", "end_turn", "stop_sequence", "eos":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "safety", "content_filter", "prohibited_content", "blocklist", "spii", "recitation":
		return FinishSafety
	default:
		return r
	}
}

// Relay runs seq on its own goroutine and forwards every chunk to the
// returned channel. An error from seq is sent as a final chunk with
// [FinishError] and ends the relay. The channel is closed when seq is
// exhausted or ctx is done.
func Relay(ctx context.Context, seq iter.Seq2[Chunk, error]) <-chan Chunk {
	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		for c, err := range seq {
			if err != nil {
				c = Chunk{FinishReason: FinishError, Text: err.Error()}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
