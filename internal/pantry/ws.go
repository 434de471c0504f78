package pantry

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pantrypal/pantry-scan/internal/capture"
)

// streamMessage is an inbound WebSocket command. The stream path is the
// live-camera flow: the client keeps pushing frames after a match and
// decides itself when to stop.
type streamMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	Image       string `json:"image,omitempty"` // base64
	ContentType string `json:"content_type,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
}

// streamError is an outbound error message.
type streamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleStream upgrades to a WebSocket and bridges it to the pipeline:
// pipeline events flow out, scan commands flow in.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading websocket", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	// Writer goroutine: conn writes must not interleave, so all
	// outbound traffic funnels through one channel.
	outbound := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("Error writing to websocket", "error", err)
				return
			}
		}
	}()

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for event := range events {
			select {
			case outbound <- event:
			case <-writerDone:
				return
			}
		}
	}()

	var sessionID string
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Websocket closed unexpectedly", "error", err)
			}
			break
		}
		s.handleStreamMessage(r.Context(), msg, &sessionID, outbound)
	}

	// The client owns the camera; a dropped connection means frames
	// stop coming, so the session ends with it.
	if sessionID != "" {
		s.service.StopScan(sessionID)
	}
	unsubscribe()
	<-forwardDone
	close(outbound)
	<-writerDone
}

func (s *Server) handleStreamMessage(ctx context.Context, msg streamMessage, sessionID *string, outbound chan<- any) {
	switch msg.Type {
	case "start_scan":
		// The stream stays open across matches; the client stops when
		// it has seen enough.
		*sessionID = s.service.StartScan(false)

	case "frame":
		if *sessionID == "" {
			sendStreamError(outbound, "no active session; send start_scan first")
			return
		}
		data, err := base64.StdEncoding.DecodeString(msg.Image)
		if err != nil {
			sendStreamError(outbound, "invalid base64 image data")
			return
		}
		frame := capture.Frame{Data: data, ContentType: msg.ContentType, CapturedAt: s.service.timeSource.Now()}
		if err := s.service.PushFrame(*sessionID, frame); err != nil {
			sendStreamError(outbound, err.Error())
		}

	case "stop_scan":
		id := msg.SessionID
		if id == "" {
			id = *sessionID
		}
		if id != "" {
			s.service.StopScan(id)
		}
		if id == *sessionID {
			*sessionID = ""
		}

	case "manual":
		if _, err := s.service.ManualBarcode(ctx, msg.Barcode); err != nil {
			sendStreamError(outbound, err.Error())
		}

	default:
		sendStreamError(outbound, "unknown message type: "+msg.Type)
	}
}

func sendStreamError(outbound chan<- any, message string) {
	select {
	case outbound <- streamError{Type: "error", Error: message}:
	default:
	}
}
