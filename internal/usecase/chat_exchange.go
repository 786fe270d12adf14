package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"parley/internal/domain"
	"parley/internal/ports"
	"parley/internal/queue"
)

const (
	FallbackMalformedResponse = "Error processing response."
	FallbackTransportFailure  = "Error communicating with chatbot."
)

type pendingExchange struct {
	ctx      context.Context
	question string
	reply    chan domain.Turn
}

// ChatExchange turns the InputBuffer into a User turn and, once the remote
// endpoint answers, a Bot turn. Requests are served one at a time in submit
// order so Bot turns follow their User turns in the same order.
type ChatExchange struct {
	buffer     *InputBuffer
	transcript *Transcript
	client     ports.ChatClient
	identity   ports.IdentityProvider
	events     ports.EventSink

	mu      sync.Mutex
	pending *queue.Queue[pendingExchange]
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewChatExchange(
	buffer *InputBuffer,
	transcript *Transcript,
	client ports.ChatClient,
	identity ports.IdentityProvider,
	events ports.EventSink,
) *ChatExchange {
	e := &ChatExchange{
		buffer:     buffer,
		transcript: transcript,
		client:     client,
		identity:   identity,
		events:     events,
		pending:    queue.New[pendingExchange](),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit sends the pending input. It returns false and does nothing when the
// trimmed input is empty or the exchange is closed. Otherwise the User turn
// is already in the transcript when Submit returns, and the returned channel
// yields the Bot turn once the request completes.
//
// The request is not cancelled with ctx; it always runs to completion.
func (e *ChatExchange) Submit(ctx context.Context) (<-chan domain.Turn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false
	}

	question, ok := e.buffer.Take()
	if !ok {
		return nil, false
	}

	e.transcript.Append(domain.Turn{Sender: domain.SenderUser, Text: question})

	reply := make(chan domain.Turn, 1)
	e.pending.Enqueue(pendingExchange{
		ctx:      context.WithoutCancel(ctx),
		question: question,
		reply:    reply,
	})
	e.signal()
	return reply, true
}

// Close stops accepting submits, waits for queued requests to finish and
// stops the worker.
func (e *ChatExchange) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.signal()
	<-e.done
}

func (e *ChatExchange) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *ChatExchange) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		next, ok := e.pending.Dequeue()
		closed := e.closed
		e.mu.Unlock()

		if !ok {
			if closed {
				return
			}
			<-e.wake
			continue
		}

		turn := e.exchange(next.ctx, next.question)
		e.transcript.Append(turn)
		next.reply <- turn
		close(next.reply)
	}
}

func (e *ChatExchange) exchange(ctx context.Context, question string) domain.Turn {
	answer, err := e.client.Ask(ctx, e.identity.GetOrCreate(), question)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = domain.ErrMalformedResponse
	}

	switch {
	case err == nil:
		return domain.Turn{Sender: domain.SenderBot, Text: answer}
	case errors.Is(err, domain.ErrMalformedResponse):
		e.events.SessionError(domain.ErrorCodeExchangeMalformed, err.Error())
		return domain.Turn{Sender: domain.SenderBot, Text: FallbackMalformedResponse}
	default:
		e.events.SessionError(domain.ErrorCodeExchangeTransport, err.Error())
		return domain.Turn{Sender: domain.SenderBot, Text: FallbackTransportFailure}
	}
}
