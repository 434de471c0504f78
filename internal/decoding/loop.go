package decoding

import (
	"context"
	"log/slog"

	"github.com/pantrypal/pantry-scan/internal/capture"
)

// SymbolHandler receives each decoded symbol together with the ID of
// the session it came from, so stale deliveries can be discarded, and
// the frame it was decoded from.
type SymbolHandler func(sessionID string, symbol Symbol, frame capture.Frame)

// Loop runs a Decoder over the frames of a capture session. The loop
// is lazy and restartable: it yields a symbol for every successful
// decode and keeps going until the session stops or the context is
// canceled. Whether the first match ends the session is the caller's
// decision, not the loop's.
type Loop struct {
	decoder Decoder
}

// NewLoop creates a decode loop around a Decoder.
func NewLoop(decoder Decoder) *Loop {
	return &Loop{decoder: decoder}
}

// Run blocks, consuming frames until the session's channel closes or
// ctx is canceled. A frame without a symbol is skipped silently; a
// frame that fails to decode at all is logged and skipped.
func (l *Loop) Run(ctx context.Context, session *capture.Session, handler SymbolHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-session.Frames():
			if !ok {
				return
			}

			symbol, err := l.decoder.DecodeFrame(frame.Data, frame.ContentType)
			if err != nil {
				slog.Warn("Failed to decode frame",
					"session_id", session.ID(),
					"content_type", frame.ContentType,
					"frame_size", len(frame.Data),
					"error", err,
				)
				continue
			}
			if symbol == nil {
				// No symbol in this frame; the common case.
				continue
			}

			if symbol.DecodedAt.IsZero() {
				symbol.DecodedAt = frame.CapturedAt
			}
			handler(session.ID(), *symbol, frame)
		}
	}
}
