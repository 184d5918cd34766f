package redisstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xdispatch"
	"github.com/trickstertwo/xlog"
)

// Audit records every dispatch outcome to a Redis stream. Write failures are
// logged and counted; they never alter the pipeline or the dispatch result.
type Audit struct {
	cfg        Config
	client     *redis.Client
	ownsClient bool
	codec      xdispatch.Codec
	logger     *xlog.Logger
	clock      xclock.Clock

	closeOnce sync.Once
	metrics   *auditMetrics
}

type auditMetrics struct {
	written      atomic.Uint64
	writeErrors  atomic.Uint64
	encodeErrors atomic.Uint64
}

var _ xdispatch.Middleware = (*Audit)(nil)

// Option configures an Audit.
type Option func(*Audit)

// WithLogger sets the fallback logger used when the dispatch context carries none.
func WithLogger(l *xlog.Logger) Option {
	return func(a *Audit) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock sets the fallback clock used when the dispatch context carries none.
func WithClock(c xclock.Clock) Option {
	return func(a *Audit) {
		if c != nil {
			a.clock = c
		}
	}
}

// NewAudit dials Redis, verifies the connection and returns an Audit that
// owns the client.
func NewAudit(cfg Config, opts ...Option) (*Audit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ropts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLS {
		ropts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}
	client := redis.NewClient(ropts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	a, err := newAudit(client, cfg, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.ownsClient = true
	return a, nil
}

// NewAuditWithClient wraps an existing client. Close leaves the client open.
func NewAuditWithClient(client *redis.Client, cfg Config, opts ...Option) (*Audit, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstream: client is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newAudit(client, cfg, opts)
}

func newAudit(client *redis.Client, cfg Config, opts []Option) (*Audit, error) {
	codec, err := xdispatch.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	a := &Audit{
		cfg:     cfg,
		client:  client,
		codec:   codec,
		logger:  xlog.Default(),
		clock:   xclock.Default(),
		metrics: &auditMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	return a, nil
}

func ping(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstream: ping: %w", err)
	}
	return nil
}

func (a *Audit) BeforeDispatch(_ context.Context, p *xdispatch.Pipeline) *xdispatch.Pipeline {
	return p
}

func (a *Audit) AfterDispatch(ctx context.Context, p *xdispatch.Pipeline) *xdispatch.Pipeline {
	a.record(ctx, p, outcomeOK)
	return p
}

func (a *Audit) AfterFailure(ctx context.Context, p *xdispatch.Pipeline) *xdispatch.Pipeline {
	a.record(ctx, p, outcomeError)
	return p
}

func (a *Audit) record(ctx context.Context, p *xdispatch.Pipeline, outcome string) {
	clock, ok := xdispatch.ClockFromContext(ctx)
	if !ok {
		clock = a.clock
	}
	logger, ok := xdispatch.LoggerFromContext(ctx)
	if !ok {
		logger = a.logger
	}

	var cmd []byte
	if a.cfg.IncludeCommand && p.Command != nil {
		b, err := a.codec.Marshal(p.Command)
		if err != nil {
			a.metrics.encodeErrors.Add(1)
			logger.Warn().Err(err).Str("command_uuid", p.CommandUUID).Msg("xdispatch audit: encode command failed")
		} else {
			cmd = b
		}
	}

	args := &redis.XAddArgs{
		Stream: a.cfg.Stream,
		ID:     "*",
		Values: entryValues(p, outcome, clock.Since(p.DispatchedAt), cmd),
	}
	if a.cfg.MaxLenApprox > 0 {
		args.MaxLen = a.cfg.MaxLenApprox
		args.Approx = true
	}

	// Detached from caller cancellation; bounded by the write timeout.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.WriteTimeout)
	defer cancel()
	if err := a.client.XAdd(wctx, args).Err(); err != nil {
		a.metrics.writeErrors.Add(1)
		logger.Warn().
			Err(err).
			Str("stream", a.cfg.Stream).
			Str("command_uuid", p.CommandUUID).
			Msg("xdispatch audit: xadd failed")
		return
	}
	a.metrics.written.Add(1)
}

// entryValues flattens a pipeline into stream entry fields.
func entryValues(p *xdispatch.Pipeline, outcome string, dur time.Duration, cmd []byte) map[string]any {
	vals := make(map[string]any, 10+len(p.Metadata))
	vals[fieldOutcome] = outcome
	vals[fieldCommandUUID] = p.CommandUUID
	vals[fieldCorrelationID] = p.CorrelationID
	vals[fieldCausationID] = p.CausationID
	vals[fieldAggregateType] = p.AggregateType
	vals[fieldIdentity] = p.Identity
	vals[fieldDispatchedAt] = p.DispatchedAt.UnixNano()
	vals[fieldDurationNs] = dur.Nanoseconds()
	if outcome == outcomeError {
		if err := p.Error(); err != nil {
			vals[fieldError] = err.Error()
		}
		if reason, ok := p.ErrorReason(); ok {
			vals[fieldErrorReason] = fmt.Sprint(reason)
		}
	}
	if cmd != nil {
		vals[fieldCommand] = cmd
	}
	for k, v := range p.Metadata {
		vals[fieldMetaPrefix+k] = v
	}
	return vals
}

// Entry is a decoded audit record.
type Entry struct {
	ID            string
	Outcome       string
	CommandUUID   string
	CorrelationID string
	CausationID   string
	AggregateType string
	Identity      string
	Error         string
	ErrorReason   string
	DispatchedAt  time.Time
	Duration      time.Duration
	Command       []byte
	Metadata      map[string]string
}

// Failed reports whether the entry was written by the after-failure stage.
func (e Entry) Failed() bool { return e.Outcome == outcomeError }

// Recent returns up to n entries, newest first.
func (a *Audit) Recent(ctx context.Context, n int64) ([]Entry, error) {
	msgs, err := a.client.XRevRangeN(ctx, a.cfg.Stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decodeEntry(m.ID, m.Values))
	}
	return out, nil
}

func decodeEntry(id string, values map[string]interface{}) Entry {
	e := Entry{ID: id}
	str := func(k string) string {
		switch v := values[k].(type) {
		case string:
			return v
		case []byte:
			return string(v)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	num := func(k string) int64 {
		n, _ := strconv.ParseInt(str(k), 10, 64)
		return n
	}
	e.Outcome = str(fieldOutcome)
	e.CommandUUID = str(fieldCommandUUID)
	e.CorrelationID = str(fieldCorrelationID)
	e.CausationID = str(fieldCausationID)
	e.AggregateType = str(fieldAggregateType)
	e.Identity = str(fieldIdentity)
	e.Error = str(fieldError)
	e.ErrorReason = str(fieldErrorReason)
	if ns := num(fieldDispatchedAt); ns > 0 {
		e.DispatchedAt = time.Unix(0, ns)
	}
	e.Duration = time.Duration(num(fieldDurationNs))
	if c := str(fieldCommand); c != "" {
		e.Command = []byte(c)
	}
	for k := range values {
		if strings.HasPrefix(k, fieldMetaPrefix) {
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[strings.TrimPrefix(k, fieldMetaPrefix)] = str(k)
		}
	}
	return e
}

// Close releases the client when the Audit created it. Idempotent.
func (a *Audit) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.ownsClient {
			err = a.client.Close()
		}
	})
	return err
}

// Stats returns audit telemetry.
type Stats struct {
	Written      uint64
	WriteErrors  uint64
	EncodeErrors uint64
}

func (a *Audit) Stats() Stats {
	return Stats{
		Written:      a.metrics.written.Load(),
		WriteErrors:  a.metrics.writeErrors.Load(),
		EncodeErrors: a.metrics.encodeErrors.Load(),
	}
}
