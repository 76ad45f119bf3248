package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rickgao/hudlink/internal/buffer"
	"github.com/rickgao/hudlink/internal/model"
	"github.com/rickgao/hudlink/internal/protocol"
)

// streamBufferSize is the initial capacity of a Stream's event buffer.
const streamBufferSize = 64

// Stream delivers the events of one subscription to a pull-based consumer.
// Events are buffered without bound so the read loop never waits on Next.
type Stream struct {
	t    *Transport
	name string
	id   string
	buf  *buffer.Growable[model.Event]

	mu        sync.Mutex
	err       error // terminal
	lastErr   error // most recent subscription error
	errCount  int
	closeOnce sync.Once
}

// SubscribeStream registers a subscription whose events are read with Next.
// name labels the events.
func (t *Transport) SubscribeStream(name string, req protocol.Request) (*Stream, error) {
	s := &Stream{
		t:    t,
		name: name,
		buf:  buffer.New[model.Event](streamBufferSize),
	}

	_, err := t.subscribe(req, s.handleData, s.handleError, func(id string) {
		s.id = id
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the transport subscription id.
func (s *Stream) ID() string {
	return s.id
}

// Name returns the label passed to SubscribeStream.
func (s *Stream) Name() string {
	return s.name
}

// Next blocks until the next event. Once the stream is closed and drained it
// returns the terminal error, or io.EOF if the stream was closed by Close.
func (s *Stream) Next(ctx context.Context) (model.Event, error) {
	ev, err := s.buf.ReceiveContext(ctx)
	if errors.Is(err, buffer.ErrClosed) {
		if terr := s.Err(); terr != nil {
			return model.Event{}, terr
		}
		return model.Event{}, io.EOF
	}
	return ev, err
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastError returns the most recent subscription error and how many have
// been received. Subscription errors do not end the stream.
func (s *Stream) LastError() (error, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr, s.errCount
}

// Pending returns the number of buffered events.
func (s *Stream) Pending() int {
	return s.buf.Len()
}

// Close stops the subscription. Buffered events can still be read.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.t.Stop(s.id)
		s.buf.Close()
	})
}

func (s *Stream) handleData(payload json.RawMessage) {
	s.buf.Send(model.NewEvent(s.name, s.id, payload, time.Now()))
}

func (s *Stream) handleError(err error) {
	switch {
	case errors.Is(err, ErrUnexpectedComplete), errors.Is(err, ErrConnection):
		// The transport already removed the subscription
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
		s.closeOnce.Do(s.buf.Close)

	default:
		s.mu.Lock()
		s.lastErr = err
		s.errCount++
		s.mu.Unlock()
	}
}
