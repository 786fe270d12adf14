package deepgram

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/domain"
)

var errSendClosed = errors.New("audio stream is already closed")

// session is one live transcription socket. receive owns reads and transmit
// owns writes; the socket is released once both have returned.
type session struct {
	conn         *websocket.Conn
	closeTimeout time.Duration
	keepAlive    time.Duration

	events   chan domain.TranscriptEvent
	audio    chan []byte
	sendDone chan struct{}
	recvDone chan struct{}
	finished chan struct{}

	// localClose is set once we close the socket ourselves; read and write
	// failures after that are expected.
	localClose atomic.Bool

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newSession(conn *websocket.Conn, closeTimeout time.Duration, keepAlive time.Duration) *session {
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &session{
		conn:         conn,
		closeTimeout: closeTimeout,
		keepAlive:    keepAlive,
		events:       make(chan domain.TranscriptEvent, 64),
		audio:        make(chan []byte, 32),
		sendDone:     make(chan struct{}),
		recvDone:     make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

func (s *session) start() {
	transmitted := make(chan struct{})
	go s.receive()
	go s.transmit(transmitted)
	go func() {
		<-s.recvDone
		<-transmitted
		close(s.events)
		_ = s.conn.Close()
		close(s.finished)
	}()
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errSendClosed
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errSendClosed
	case <-s.finished:
		if err := s.Err(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend stops accepting audio. Queued audio is still sent, followed by
// CloseStream so Deepgram flushes its last results.
func (s *session) CloseSend() error {
	s.closeSendOnce.Do(func() { close(s.sendDone) })
	return nil
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.finished
	return s.Err()
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.shutdown()
		_ = s.CloseSend()
	})
	<-s.finished
	return s.Err()
}

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// fail records the first unexpected error. Normal closures and errors
// after a local close are dropped.
func (s *session) fail(err error) {
	if err == nil || s.localClose.Load() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) shutdown() {
	s.localClose.Store(true)
	_ = s.conn.Close()
}

func (s *session) receive() {
	defer close(s.recvDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		event, ok, err := decodeMessage(payload)
		if err != nil {
			s.fail(err)
			return
		}
		if ok {
			s.deliver(event)
		}
	}
}

// deliver drops partial results when the consumer lags; finals and
// utterance ends are always delivered.
func (s *session) deliver(event domain.TranscriptEvent) {
	if event.Kind == domain.TranscriptKindPartial {
		select {
		case s.events <- event:
		default:
		}
		return
	}
	s.events <- event
}

func (s *session) transmit(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	sentAudio := false

	for {
		select {
		case chunk := <-s.audio:
			if !s.write(websocket.BinaryMessage, chunk, "failed to send audio") {
				return
			}
			sentAudio = true
		case <-ticker.C:
			if !sentAudio && !s.write(websocket.TextMessage, keepAliveMessage, "failed to send keepalive") {
				return
			}
			sentAudio = false
		case <-s.sendDone:
			if s.flushAudio() {
				s.hangUp()
			}
			return
		case <-s.recvDone:
			return
		}
	}
}

func (s *session) flushAudio() bool {
	for {
		select {
		case chunk := <-s.audio:
			if !s.write(websocket.BinaryMessage, chunk, "failed to send audio") {
				return false
			}
		default:
			return true
		}
	}
}

// hangUp sends CloseStream and gives Deepgram closeTimeout to deliver its
// last results and close the socket.
func (s *session) hangUp() {
	if !s.write(websocket.TextMessage, closeStreamMessage, "failed to close stream") {
		return
	}

	timer := time.NewTimer(s.closeTimeout)
	defer timer.Stop()
	select {
	case <-s.recvDone:
	case <-timer.C:
		s.fail(fmt.Errorf("deepgram did not close the stream within %s", s.closeTimeout))
		s.shutdown()
	}
}

// write sends one frame. A failed write ends the session.
func (s *session) write(messageType int, payload []byte, what string) bool {
	if err := s.conn.WriteMessage(messageType, payload); err != nil {
		s.fail(fmt.Errorf("%s: %w", what, err))
		s.shutdown()
		return false
	}
	return true
}
