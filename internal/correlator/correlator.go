package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/engine-bridge/internal/dedup"
	"github.com/rickgao/engine-bridge/internal/model"
)

// DefaultTimeout bounds the wait for an agent_response.
const DefaultTimeout = 60 * time.Second

// Transport labels reported in Response.
const (
	TransportDuplex   = "duplex"
	TransportFallback = "fallback"
)

var (
	ErrDuplicateID = errors.New("request id already pending")
	ErrNoTransport = errors.New("duplex channel down and no fallback configured")
	ErrClosed      = errors.New("correlator closed")
)

// Sender is the duplex channel. Implemented by connection.Manager.
type Sender interface {
	Send(env model.Envelope) error
	IsConnected() bool
}

// Fallback executes an operation synchronously. Implemented by api.Client.
type Fallback interface {
	Do(ctx context.Context, op model.Operation, params json.RawMessage) (json.RawMessage, error)
}

// LateRecorder counts responses that arrive after their wait ended.
type LateRecorder interface {
	LateResponse(reason string)
}

// Config configures a Correlator.
type Config struct {
	Timeout    time.Duration // Zero selects DefaultTimeout
	ExpiredTTL time.Duration // How long settled ids are remembered
	ExpiredMax int
	Late       LateRecorder // Optional
	Now        func() time.Time
}

// Request is one logical operation.
type Request struct {
	ID        string // Generated when empty
	Operation model.Operation
	Params    any
}

// Response is the result of a completed request.
type Response struct {
	ID        string
	Result    json.RawMessage
	Transport string
}

type outcome struct {
	resp *Response
	err  error
}

type pending struct {
	id     string
	op     model.Operation
	sentAt time.Time
	timer  *time.Timer
	done   chan outcome // Buffered; receives exactly one outcome
}

// Correlator owns the pending request arena.
type Correlator struct {
	cfg      Config
	sender   Sender
	fallback Fallback
	logger   *slog.Logger
	expired  *dedup.Cache
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*pending
	closed  bool
}

// New creates a Correlator. fallback may be nil.
func New(cfg Config, sender Sender, fallback Fallback, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Correlator{
		cfg:      cfg,
		sender:   sender,
		fallback: fallback,
		logger:   logger.With("component", "correlator"),
		expired:  dedup.New(cfg.ExpiredTTL, cfg.ExpiredMax, now),
		now:      now,
		pending:  make(map[string]*pending),
	}
}

// Send executes req over the duplex channel when it is open, or over the
// fallback transport otherwise. It blocks until the response, the
// timeout, a teardown, or ctx cancellation. A fallback body that comes
// back with an error is returned alongside it.
func (c *Correlator) Send(ctx context.Context, req Request) (*Response, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	params, err := encodeParams(req.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: encode params: %w", req.Operation, err)
	}

	if !c.sender.IsConnected() {
		return c.sendFallback(ctx, id, req.Operation, params)
	}

	env, err := model.NewEnvelope(model.TypeAgentRequest, id, model.RequestPayload{
		Operation: req.Operation,
		Params:    params,
	}, c.now())
	if err != nil {
		return nil, fmt.Errorf("%s: build envelope: %w", req.Operation, err)
	}

	p, err := c.register(id, req.Operation)
	if err != nil {
		return nil, err
	}

	if err := c.sender.Send(env); err != nil {
		c.settle(id)
		c.logger.Warn("duplex send failed",
			"id", id,
			"operation", req.Operation,
			"error", err,
		)
		return nil, model.NewConnectionClosedError(id, err)
	}

	select {
	case out := <-p.done:
		return out.resp, out.err
	case <-ctx.Done():
		if c.settle(id) != nil {
			c.expired.Mark(id, dedup.ReasonAbandoned)
			return nil, ctx.Err()
		}
		// Settled concurrently; the outcome is already buffered.
		out := <-p.done
		return out.resp, out.err
	}
}

func (c *Correlator) sendFallback(ctx context.Context, id string, op model.Operation, params json.RawMessage) (*Response, error) {
	if c.fallback == nil {
		return nil, model.NewConnectionClosedError(id, ErrNoTransport)
	}

	c.logger.Debug("duplex channel down, using fallback", "id", id, "operation", op)

	result, err := c.fallback.Do(ctx, op, params)
	if result == nil {
		return nil, err
	}
	// A body can accompany an error, e.g. a failed orchestration result.
	return &Response{ID: id, Result: result, Transport: TransportFallback}, err
}

// register adds a pending entry and arms its timeout.
func (c *Correlator) register(id string, op model.Operation) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, model.NewConnectionClosedError(id, ErrClosed)
	}
	if _, ok := c.pending[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	p := &pending{
		id:     id,
		op:     op,
		sentAt: c.now(),
		done:   make(chan outcome, 1),
	}
	p.timer = time.AfterFunc(c.cfg.Timeout, func() { c.expire(id) })
	c.pending[id] = p
	return p, nil
}

// settle removes an entry and stops its timer. Returns nil if the entry
// was already settled.
func (c *Correlator) settle(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	p.timer.Stop()
	return p
}

func (c *Correlator) expire(id string) {
	p := c.settle(id)
	if p == nil {
		return
	}
	c.expired.Mark(id, dedup.ReasonTimeout)

	c.logger.Warn("request timed out",
		"id", id,
		"operation", p.op,
		"timeout", c.cfg.Timeout,
	)
	p.done <- outcome{err: model.NewTimeoutError(id)}
}

// Resolve settles the pending entry for an agent_response. It reports
// false when no entry matches.
func (c *Correlator) Resolve(env model.Envelope) bool {
	p := c.settle(env.ID)
	if p == nil {
		if reason, ok := c.expired.Take(env.ID); ok {
			c.logger.Warn("late response after wait ended",
				"id", env.ID,
				"reason", reason,
			)
			if c.cfg.Late != nil {
				c.cfg.Late.LateResponse(string(reason))
			}
		} else {
			c.logger.Warn("response for unknown request", "id", env.ID)
		}
		return false
	}

	var payload model.ResponsePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		p.done <- outcome{err: &model.Error{
			Kind:      model.KindAgent,
			Message:   "malformed response payload",
			RequestID: env.ID,
			Err:       err,
		}}
		return true
	}

	c.logger.Debug("response received",
		"id", env.ID,
		"operation", p.op,
		"status", payload.Status,
		"latency", c.now().Sub(p.sentAt),
	)

	switch payload.Status {
	case model.StatusCompleted:
		p.done <- outcome{resp: &Response{
			ID:        env.ID,
			Result:    payload.Result,
			Transport: TransportDuplex,
		}}
	default:
		p.done <- outcome{err: model.NewAgentError(env.ID, payload.Error)}
	}
	return true
}

// RejectAll fails every pending request with CONNECTION_CLOSED. The arena
// lock is held throughout, so callers never observe a partial teardown.
func (c *Correlator) RejectAll(err error) int {
	cause := err
	var me *model.Error
	if errors.As(err, &me) && me.Kind == model.KindConnectionClosed && me.Err != nil {
		cause = me.Err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	for id, p := range c.pending {
		delete(c.pending, id)
		p.timer.Stop()
		c.expired.Mark(id, dedup.ReasonTeardown)
		p.done <- outcome{err: model.NewConnectionClosedError(id, cause)}
	}
	return n
}

// Pending returns the number of outstanding duplex requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close rejects every pending request and refuses new duplex requests.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.RejectAll(ErrClosed)

	c.expired.Close()
}

func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(params)
}
