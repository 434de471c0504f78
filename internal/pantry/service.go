package pantry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pantrypal/pantry-scan/internal/capture"
	"github.com/pantrypal/pantry-scan/internal/decoding"
	"github.com/pantrypal/pantry-scan/internal/product"
)

// ErrNoActiveSession is returned when a frame or stop is addressed to
// a session that is not the active one.
var ErrNoActiveSession = errors.New("no active capture session")

// ErrNoSymbol is returned when a one-shot photo contains no readable
// barcode.
var ErrNoSymbol = errors.New("no barcode found in photo")

// State is the pipeline stage of the current add-item session.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateResolving  State = "resolving"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// Event is pushed to subscribers (the WebSocket stream) as the
// pipeline progresses.
type Event struct {
	Type      string           `json:"type"`
	State     State            `json:"state,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Symbol    *decoding.Symbol `json:"symbol,omitempty"`
	Draft     *InventoryDraft  `json:"draft,omitempty"`
	Item      *PersistedItem   `json:"item,omitempty"`
}

const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventSymbolDecoded  = "symbol_decoded"
	EventDraftUpdated   = "draft_updated"
	EventItemPersisted  = "item_persisted"
)

// Service orchestrates the scan pipeline: capture session lifecycle,
// the decode loop, product resolution, draft reconciliation and
// submission. Draft mutation is serialized through the DraftStore; a
// decode result from anything but the active session is discarded.
type Service struct {
	captures  *capture.Manager
	decoder   decoding.Decoder
	loop      *decoding.Loop
	resolver  product.Resolver
	store     *DraftStore
	gateway   Gateway
	db        DB
	snapshots Storage

	idGenerator IDGenerator
	timeSource  TimeSource

	mu           sync.Mutex
	state        State
	activeScanID string
	stopOnMatch  bool
	cancelLoop   context.CancelFunc
	lastScanID   string

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewService creates a new Service with default ID generator and time
// source.
func NewService(captures *capture.Manager, decoder decoding.Decoder, resolver product.Resolver, store *DraftStore, gateway Gateway, db DB, snapshots Storage) *Service {
	return NewServiceWithDeps(captures, decoder, resolver, store, gateway, db, snapshots, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing.
func NewServiceWithDeps(captures *capture.Manager, decoder decoding.Decoder, resolver product.Resolver, store *DraftStore, gateway Gateway, db DB, snapshots Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		captures:    captures,
		decoder:     decoder,
		loop:        decoding.NewLoop(decoder),
		resolver:    resolver,
		store:       store,
		gateway:     gateway,
		db:          db,
		snapshots:   snapshots,
		idGenerator: idGen,
		timeSource:  timeSrc,
		state:       StateIdle,
		subscribers: make(map[int]chan Event),
	}
}

// RestoreDraft loads a persisted draft from a prior interrupted
// session, if one exists.
func (s *Service) RestoreDraft() error {
	stored, err := s.db.LoadDraft()
	if err != nil {
		return fmt.Errorf("restoring draft: %w", err)
	}
	if stored == nil {
		return nil
	}
	s.store.Restore(stored.Draft, stored.Touched)
	s.mu.Lock()
	s.state = StateEditing
	s.mu.Unlock()
	slog.Info("Restored in-progress draft", "draft_id", stored.Draft.ID)
	return nil
}

// State returns the current pipeline state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartScan opens a capture session and starts the decode loop over
// it. Any prior session is stopped first. When stopOnMatch is set the
// session ends on the first decoded symbol; otherwise it runs until
// stopped, and the caller decides when a result is enough.
func (s *Service) StartScan(stopOnMatch bool) string {
	s.mu.Lock()
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
	s.mu.Unlock()

	session := s.captures.Start()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.activeScanID = session.ID()
	s.stopOnMatch = stopOnMatch
	s.cancelLoop = cancel
	s.state = StateScanning
	s.mu.Unlock()

	go s.loop.Run(ctx, session, s.handleSymbol)

	slog.Info("Capture session started", "session_id", session.ID())
	s.publish(Event{Type: EventSessionStarted, SessionID: session.ID(), State: StateScanning})
	return session.ID()
}

// StopScan stops a capture session. Stopping an unknown or
// already-stopped session is a no-op.
func (s *Service) StopScan(sessionID string) {
	s.stopSession(sessionID)

	s.mu.Lock()
	if s.state == StateScanning {
		s.state = StateEditing
	}
	state := s.state
	s.mu.Unlock()

	s.publish(Event{Type: EventSessionStopped, SessionID: sessionID, State: state})
}

// stopSession releases the capture session and the decode loop without
// touching pipeline state.
func (s *Service) stopSession(sessionID string) {
	s.captures.Stop(sessionID)

	s.mu.Lock()
	if s.activeScanID == sessionID {
		s.activeScanID = ""
		if s.cancelLoop != nil {
			s.cancelLoop()
			s.cancelLoop = nil
		}
	}
	s.mu.Unlock()
}

// PushFrame delivers a client frame to the active session.
func (s *Service) PushFrame(sessionID string, frame capture.Frame) error {
	session, ok := s.captures.Get(sessionID)
	if !ok {
		return ErrNoActiveSession
	}
	return session.Push(frame)
}

// handleSymbol is the decode loop callback. A symbol from a session
// that is no longer active is stale and discarded; cancellation has
// already happened and must win.
func (s *Service) handleSymbol(sessionID string, symbol decoding.Symbol, frame capture.Frame) {
	s.mu.Lock()
	if sessionID != s.activeScanID {
		s.mu.Unlock()
		slog.Info("Discarding stale decode result", "session_id", sessionID, "barcode", symbol.Text)
		return
	}
	stop := s.stopOnMatch
	s.state = StateResolving
	s.mu.Unlock()

	slog.Info("Barcode decoded", "session_id", sessionID, "barcode", symbol.Text, "format", symbol.Format)
	s.publish(Event{Type: EventSymbolDecoded, SessionID: sessionID, Symbol: &symbol, State: StateResolving})

	if stop {
		s.stopSession(sessionID)
	}

	s.resolveAndApply(context.Background(), symbol, frame)
}

// resolveAndApply runs the resolver for a symbol and merges the result
// into the draft. Resolution never fails; a miss degrades to the
// minimal record inside the resolver.
func (s *Service) resolveAndApply(ctx context.Context, symbol decoding.Symbol, frame capture.Frame) InventoryDraft {
	record := s.resolver.Resolve(ctx, symbol.Text)
	draft := s.store.ApplyResolved(record)
	s.persistDraft()
	s.recordScan(symbol, record, frame)

	s.mu.Lock()
	s.state = StateEditing
	s.mu.Unlock()

	s.publish(Event{Type: EventDraftUpdated, Draft: &draft, State: StateEditing})
	return draft
}

// ManualBarcode is the fallback path when the camera is unavailable:
// the user types the digits instead.
func (s *Service) ManualBarcode(ctx context.Context, raw string) (InventoryDraft, error) {
	digits := decoding.NormalizeDigits(raw)
	if digits == "" || !decoding.ValidCheckDigit(digits) {
		return InventoryDraft{}, &ValidationError{Field: "barcode", Message: fmt.Sprintf("invalid barcode %q", strings.TrimSpace(raw))}
	}

	symbol := decoding.Symbol{
		Text:      digits,
		Format:    decoding.FormatForLength(len(digits)),
		DecodedAt: s.timeSource.Now(),
	}
	return s.resolveAndApply(ctx, symbol, capture.Frame{}), nil
}

// ScanPhoto decodes a single uploaded photo outside any live session,
// for the upload-a-picture path.
func (s *Service) ScanPhoto(ctx context.Context, data []byte, contentType string) (InventoryDraft, error) {
	symbol, err := s.decoder.DecodeFrame(data, contentType)
	if err != nil {
		return InventoryDraft{}, fmt.Errorf("decoding photo: %w", err)
	}
	if symbol == nil {
		return InventoryDraft{}, ErrNoSymbol
	}

	frame := capture.Frame{Data: data, ContentType: contentType, CapturedAt: s.timeSource.Now()}
	return s.resolveAndApply(ctx, *symbol, frame), nil
}

// Draft returns the current draft snapshot.
func (s *Service) Draft() InventoryDraft {
	return s.store.Snapshot()
}

// EditDraft applies a user edit, marking the field as touched.
func (s *Service) EditDraft(field Field, value any) (InventoryDraft, error) {
	draft, err := s.store.Edit(field, value)
	if err != nil {
		return InventoryDraft{}, err
	}
	s.persistDraft()

	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateEditing
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventDraftUpdated, Draft: &draft, State: StateEditing})
	return draft, nil
}

// ResetDraft discards the current draft and seeds a fresh one.
func (s *Service) ResetDraft() InventoryDraft {
	draft := s.store.Initialize()
	if err := s.db.DeleteDraft(); err != nil {
		slog.Warn("Failed to delete persisted draft", "error", err)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.lastScanID = ""
	s.mu.Unlock()

	s.publish(Event{Type: EventDraftUpdated, Draft: &draft, State: StateIdle})
	return draft
}

// Submit validates and persists the finalized draft through the
// gateway. On any failure the draft is retained unmodified so the user
// can retry without re-entering data.
func (s *Service) Submit(ctx context.Context) (*PersistedItem, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return nil, fmt.Errorf("submission already in progress")
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	draft := s.store.Snapshot()
	item, err := s.gateway.Submit(ctx, draft)
	if err != nil {
		s.mu.Lock()
		s.state = StateEditing
		s.mu.Unlock()
		return nil, err
	}

	s.linkScanToItem(item.ID)

	if err := s.db.DeleteDraft(); err != nil {
		slog.Warn("Failed to delete persisted draft", "error", err)
	}
	fresh := s.store.Initialize()

	s.mu.Lock()
	s.state = StateIdle
	s.lastScanID = ""
	s.mu.Unlock()

	slog.Info("Item persisted", "item_id", item.ID, "name", item.Name)
	s.publish(Event{Type: EventItemPersisted, Item: item, Draft: &fresh, State: StateIdle})
	return item, nil
}

// History returns all scan records.
func (s *Service) History() ([]*ScanRecord, error) {
	scans, err := s.db.ListScans()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

// HistoryEntry retrieves one scan record by ID.
func (s *Service) HistoryEntry(id string) (*ScanRecord, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan record: %w", err)
	}
	return scan, nil
}

// HistorySnapshot returns the decoded frame image for a scan record.
func (s *Service) HistorySnapshot(id string) ([]byte, string, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan record: %w", err)
	}
	if scan.SnapshotPath == "" {
		return nil, "", fmt.Errorf("scan record has no snapshot: %s", id)
	}
	data, err := s.snapshots.Get(scan.SnapshotPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting snapshot: %w", err)
	}
	return data, contentTypeForSnapshot(scan.SnapshotPath), nil
}

// Subscribe registers an event listener. The returned function
// unsubscribes and closes the channel. Slow subscribers drop events
// rather than block the pipeline.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 16)
	s.subscribers[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

func (s *Service) publish(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// persistDraft writes the current draft and its touched set. Draft
// persistence is best effort; the in-memory store remains the source
// of truth.
func (s *Service) persistDraft() {
	stored := &StoredDraft{
		Draft:   s.store.Snapshot(),
		Touched: s.store.TouchedFields(),
	}
	if err := s.db.SaveDraft(stored); err != nil {
		slog.Warn("Failed to persist draft", "error", err)
	}
}

// recordScan appends a history record with the decoded frame snapshot.
func (s *Service) recordScan(symbol decoding.Symbol, record *product.Record, frame capture.Frame) {
	id := s.idGenerator.Generate()

	var snapshotPath string
	if len(frame.Data) > 0 {
		filename := fmt.Sprintf("%s.%s", id, snapshotExt(frame.ContentType))
		path, err := s.snapshots.Save(filename, frame.Data)
		if err != nil {
			slog.Warn("Failed to save frame snapshot", "scan_id", id, "error", err)
		} else {
			snapshotPath = path
		}
	}

	scan := &ScanRecord{
		ID:           id,
		Barcode:      symbol.Text,
		Format:       symbol.Format,
		ProductName:  record.Name,
		Resolved:     record.Resolved,
		SnapshotPath: snapshotPath,
		CreatedAt:    s.timeSource.Now(),
	}
	if err := s.db.SaveScan(scan); err != nil {
		slog.Warn("Failed to save scan record", "scan_id", id, "error", err)
		return
	}

	s.mu.Lock()
	s.lastScanID = id
	s.mu.Unlock()
}

// linkScanToItem stamps the persisted item ID onto the scan record
// that produced it.
func (s *Service) linkScanToItem(itemID string) {
	s.mu.Lock()
	scanID := s.lastScanID
	s.mu.Unlock()
	if scanID == "" {
		return
	}

	scan, err := s.db.GetScan(scanID)
	if err != nil {
		slog.Warn("Failed to load scan record for linking", "scan_id", scanID, "error", err)
		return
	}
	scan.SubmittedItemID = itemID
	if err := s.db.SaveScan(scan); err != nil {
		slog.Warn("Failed to link scan record", "scan_id", scanID, "error", err)
	}
}

// Close stops any active session and decode loop.
func (s *Service) Close() {
	s.mu.Lock()
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
	s.activeScanID = ""
	s.mu.Unlock()
	s.captures.StopAll()
}

func snapshotExt(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/heic", "image/heif":
		return "heic"
	case "application/pdf":
		return "pdf"
	default:
		return "bin"
	}
}

func contentTypeForSnapshot(path string) string {
	switch {
	case strings.HasSuffix(path, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".gif"):
		return "image/gif"
	case strings.HasSuffix(path, ".heic"):
		return "image/heic"
	case strings.HasSuffix(path, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
