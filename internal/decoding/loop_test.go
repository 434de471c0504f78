package decoding

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pantrypal/pantry-scan/internal/capture"
)

// stubDecoder returns a queued result per frame, in push order.
type stubDecoder struct {
	mu      sync.Mutex
	results []stubResult
}

type stubResult struct {
	symbol *Symbol
	err    error
}

func (d *stubDecoder) DecodeFrame(imageData []byte, contentType string) (*Symbol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.results) == 0 {
		return nil, nil
	}
	result := d.results[0]
	d.results = d.results[1:]
	return result.symbol, result.err
}

func (d *stubDecoder) Close() error {
	return nil
}

var _ = Describe("Loop", func() {
	var (
		decoder  *stubDecoder
		loop     *Loop
		manager  *capture.Manager
		session  *capture.Session
		mu       sync.Mutex
		decoded  []Symbol
		done     chan struct{}
		cancel   context.CancelFunc
		captured capture.Frame
	)

	handler := func(sessionID string, symbol Symbol, frame capture.Frame) {
		mu.Lock()
		defer mu.Unlock()
		decoded = append(decoded, symbol)
		captured = frame
	}

	symbols := func() []Symbol {
		mu.Lock()
		defer mu.Unlock()
		return append([]Symbol(nil), decoded...)
	}

	BeforeEach(func() {
		decoder = &stubDecoder{}
		loop = NewLoop(decoder)
		manager = capture.NewManager()
		session = manager.Start()
		decoded = nil
		captured = capture.Frame{}

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		go func() {
			defer close(done)
			loop.Run(ctx, session, handler)
		}()
	})

	AfterEach(func() {
		cancel()
		session.Stop()
		Eventually(done).Should(BeClosed())
	})

	When("a frame contains a symbol", func() {
		BeforeEach(func() {
			decoder.results = []stubResult{
				{symbol: &Symbol{Text: "737628064502", Format: "UPC_A"}},
			}
		})

		It("should deliver the symbol to the handler", func() {
			Expect(session.Push(capture.Frame{Data: []byte("frame")})).To(Succeed())
			Eventually(symbols).Should(HaveLen(1))
			Expect(symbols()[0].Text).To(Equal("737628064502"))
		})

		It("should pass the originating frame along", func() {
			Expect(session.Push(capture.Frame{Data: []byte("frame"), ContentType: "image/jpeg"})).To(Succeed())
			Eventually(symbols).Should(HaveLen(1))
			mu.Lock()
			defer mu.Unlock()
			Expect(captured.ContentType).To(Equal("image/jpeg"))
		})

		It("should stamp DecodedAt from the frame capture time", func() {
			capturedAt := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
			Expect(session.Push(capture.Frame{Data: []byte("frame"), CapturedAt: capturedAt})).To(Succeed())
			Eventually(symbols).Should(HaveLen(1))
			Expect(symbols()[0].DecodedAt).To(Equal(capturedAt))
		})
	})

	When("a frame contains no symbol", func() {
		BeforeEach(func() {
			decoder.results = []stubResult{
				{symbol: nil},
				{symbol: &Symbol{Text: "96385074", Format: "EAN_8"}},
			}
		})

		It("should skip it and keep consuming", func() {
			Expect(session.Push(capture.Frame{Data: []byte("miss")})).To(Succeed())
			Expect(session.Push(capture.Frame{Data: []byte("hit")})).To(Succeed())
			Eventually(symbols).Should(HaveLen(1))
			Expect(symbols()[0].Text).To(Equal("96385074"))
		})
	})

	When("a frame fails to decode", func() {
		BeforeEach(func() {
			decoder.results = []stubResult{
				{err: errors.New("decode error")},
				{symbol: &Symbol{Text: "96385074", Format: "EAN_8"}},
			}
		})

		It("should log and keep consuming", func() {
			Expect(session.Push(capture.Frame{Data: []byte("bad")})).To(Succeed())
			Expect(session.Push(capture.Frame{Data: []byte("good")})).To(Succeed())
			Eventually(symbols).Should(HaveLen(1))
		})
	})

	When("the session is stopped", func() {
		It("should return without delivering anything further", func() {
			session.Stop()
			Eventually(done).Should(BeClosed())
			Consistently(symbols).Should(BeEmpty())
		})
	})

	When("the context is canceled", func() {
		It("should return", func() {
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
