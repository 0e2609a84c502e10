package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/agentbridge/internal/agent"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/pkg/message"
	"github.com/google/uuid"
)

const (
	defaultMaxBatchBytes = security.DefaultMaxPayloadBytes
	defaultMaxJSONDepth  = security.DefaultMaxJSONDepth
	defaultWriteTimeout  = 30 * time.Second

	// errorWriteTimeout bounds the best-effort error frame sent before an
	// abnormal close.
	errorWriteTimeout = 5 * time.Second

	// maxPendingBatches is how many batches may wait behind the running
	// one. The reader keeps reading while they wait so that a disconnect
	// is seen mid-run.
	maxPendingBatches = 8
)

// Runner executes one loop execution. *agent.Loop implements it.
type Runner interface {
	Run(ctx context.Context, params agent.Params, history []message.Message, emit agent.Emitter) (agent.Result, error)
}

// Metrics receives session-level measurements.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	BatchRejected(reason string)
	RunFinished(reason agent.StopReason, d time.Duration)
}

// HandlerConfig holds the dependencies of a Handler. Only Runner is
// required.
type HandlerConfig struct {
	Runner         Runner
	Store          *Store
	Ledger         ledger.Store
	RateLimiter    *security.RateLimiter
	Credentials    *security.CredentialStore
	Redactor       *security.Redactor
	Audit          *security.AuditLogger
	Metrics        Metrics
	Logger         *slog.Logger
	Limits         Limits
	MaxSessions    int
	OriginPatterns []string
	WriteTimeout   time.Duration
}

// Handler serves the chat WebSocket endpoint. Each connection is one
// Session handled on the net/http goroutine that accepted it.
type Handler struct {
	cfg    HandlerConfig
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a Handler, filling unset limits with defaults.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limits.MaxBytes <= 0 {
		cfg.Limits.MaxBytes = defaultMaxBatchBytes
	}
	if cfg.Limits.MaxJSONDepth <= 0 {
		cfg.Limits.MaxJSONDepth = defaultMaxJSONDepth
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxSessions <= 0 && cfg.RateLimiter != nil {
		cfg.MaxSessions = cfg.RateLimiter.MaxSessions()
	}
	return &Handler{cfg: cfg, store: cfg.Store, logger: cfg.Logger}
}

// Store returns the session store.
func (h *Handler) Store() *Store {
	return h.store
}

// ServeHTTP implements http.Handler. It upgrades the connection and runs
// the session until the client disconnects or an unexpected failure
// closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// Frames up to twice the batch limit are read and rejected with an
	// error frame. Anything larger makes the library close the connection
	// with StatusMessageTooBig.
	conn.SetReadLimit(int64(h.cfg.Limits.MaxBytes) * 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &Session{
		ID:           uuid.NewString(),
		RemoteAddr:   r.RemoteAddr,
		ConnectedAt:  time.Now(),
		phase:        PhaseIdle,
		lastActivity: time.Now(),
		conn:         conn,
		cancel:       cancel,
	}
	if !h.store.AddIfUnder(sess, h.cfg.MaxSessions) {
		h.logger.Warn("session rejected", "remote_addr", r.RemoteAddr, "error", ErrMaxSessions)
		_ = conn.Close(websocket.StatusTryAgainLater, ErrMaxSessions.Error())
		return
	}
	defer h.store.Remove(sess.ID)

	logger := h.logger.With("session_id", sess.ID)
	logger.Info("session opened", "remote_addr", r.RemoteAddr)
	h.audit(security.AuditEvent{
		Type:      security.EventSessionCreate,
		SessionID: sess.ID,
		Remote:    r.RemoteAddr,
	})
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.SessionOpened()
		defer h.cfg.Metrics.SessionClosed()
	}
	defer h.forgetCredentials(sess)

	frames := make(chan []byte, maxPendingBatches)
	go h.readFrames(ctx, cancel, conn, frames, logger)

	err = h.serve(ctx, sess, frames, logger)
	switch {
	case err == nil || ctx.Err() != nil:
		sess.close(websocket.StatusNormalClosure, "")
		logger.Info("session closed")
	default:
		logger.Error("session failed", "error", err)
		writeCtx, writeCancel := context.WithTimeout(context.Background(), errorWriteTimeout)
		_ = h.write(writeCtx, conn, ErrorFrame(err))
		writeCancel()
		sess.close(websocket.StatusInternalError, "internal error")
	}

	h.audit(security.AuditEvent{Type: security.EventSessionDelete, SessionID: sess.ID})
}

// readFrames queues every inbound data frame without ever blocking on the
// consumer, so the socket stays under observation while a batch runs. A
// read failure means the client is gone: the session context is cancelled,
// which aborts any in-flight loop execution. A client that queues more
// than maxPendingBatches is disconnected.
func (h *Handler) readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- []byte, logger *slog.Logger) {
	defer close(out)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		select {
		case out <- data:
		default:
			logger.Warn("session overrun", "error", ErrTooManyPending)
			h.rejected("overrun")
			_ = conn.Close(websocket.StatusPolicyViolation, ErrTooManyPending.Error())
			return
		}
	}
}

// serve processes batches one at a time. A returned error is an
// unexpected failure that ends the session; a panic is converted into one.
func (h *Handler) serve(ctx context.Context, sess *Session, frames <-chan []byte, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-frames:
			if !ok || ctx.Err() != nil {
				return nil
			}
			if err := h.handleBatch(ctx, sess, data, logger); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handleBatch(ctx context.Context, sess *Session, data []byte, logger *slog.Logger) error {
	batch, err := DecodeBatch(data, h.cfg.Limits)
	if err != nil {
		logger.Warn("batch rejected", "error", err)
		h.rejected("invalid")
		return h.write(ctx, sess.conn, ErrorFrame(err))
	}

	if h.cfg.RateLimiter != nil {
		err := h.cfg.RateLimiter.Check(security.KindToken)
		if err == nil {
			err = h.cfg.RateLimiter.Allow(security.KindMessage)
		}
		if err != nil {
			logger.Warn("batch rate limited")
			h.rejected("rate_limited")
			h.audit(security.AuditEvent{
				Type:      security.EventRateLimit,
				SessionID: sess.ID,
				Detail:    err.Error(),
			})
			return h.write(ctx, sess.conn, ErrorFrame(fmt.Errorf("session: %w", err)))
		}
	}

	h.rememberCredentials(sess, batch.APIKey)
	h.audit(security.AuditEvent{
		Type:      security.EventMessage,
		SessionID: sess.ID,
		Provider:  batch.Provider,
		Model:     batch.Model,
		Detail:    fmt.Sprintf("batch of %d messages", len(batch.Messages)),
	})

	sess.setPhase(PhaseRunning)

	params := batch.Params(sess.ID)
	emit := agent.EmitterFunc(func(ctx context.Context, ev agent.Event) error {
		frame, err := EventFrame(ev)
		if err != nil {
			return err
		}
		return h.write(ctx, sess.conn, frame)
	})

	res, runErr := h.cfg.Runner.Run(ctx, params, batch.Messages, emit)
	sess.setPhase(PhaseIdle)
	if h.cfg.RateLimiter != nil {
		h.cfg.RateLimiter.Record(security.KindToken, res.Usage.TotalTokens)
	}

	h.record(ctx, sess, res, logger)
	h.audit(security.AuditEvent{
		Type:      security.EventRunComplete,
		SessionID: sess.ID,
		RunID:     res.RunID,
		Provider:  string(res.Provider),
		Model:     res.Model,
		Tokens:    res.Usage.TotalTokens,
		Detail:    string(res.StopReason),
		Metadata: map[string]string{
			"iterations": strconv.Itoa(res.Iterations),
			"tool_calls": strconv.Itoa(len(res.ToolCalls)),
		},
	})
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RunFinished(res.StopReason, res.Duration)
	}
	if runErr != nil {
		return runErr
	}
	return h.write(ctx, sess.conn, CompleteFrame(res.Messages))
}

// write encodes and sends one frame, blocking until it is written or the
// write timeout expires.
func (h *Handler) write(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: encode %s frame: %w", f.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("session: write %s frame: %w", f.Type, err)
	}
	return nil
}

// record stores the ledger entry of a finished loop execution. It runs
// even when the session context is already cancelled.
func (h *Handler) record(ctx context.Context, sess *Session, res agent.Result, logger *slog.Logger) {
	if h.cfg.Ledger == nil || res.RunID == "" {
		return
	}
	entry := ledger.Entry{
		RunID:        res.RunID,
		SessionID:    sess.ID,
		Model:        res.Model,
		Provider:     string(res.Provider),
		Iterations:   res.Iterations,
		ToolCalls:    len(res.ToolCalls),
		InputTokens:  res.Usage.PromptTokens,
		OutputTokens: res.Usage.CompletionTokens,
		TotalTokens:  res.Usage.TotalTokens,
		StopReason:   string(res.StopReason),
		StartedAt:    res.StartedAt,
		Duration:     res.Duration,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := h.cfg.Ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("ledger record failed", "run_id", res.RunID, "error", err)
	}
}

// rememberCredentials stores the batch API key under the session's
// credential scope. The redactor watches the store, so the key is
// redacted from logs and tool environments until the session ends.
func (h *Handler) rememberCredentials(sess *Session, apiKey string) {
	if h.cfg.Credentials == nil {
		if h.cfg.Redactor != nil {
			h.cfg.Redactor.AddLiteral(apiKey)
		}
		return
	}
	h.cfg.Credentials.Set(security.ScopedName(credentialScope(sess.ID), "api_key"), apiKey)
}

func (h *Handler) forgetCredentials(sess *Session) {
	if h.cfg.Credentials != nil {
		h.cfg.Credentials.DeleteScope(credentialScope(sess.ID))
	}
}

func credentialScope(sessionID string) string {
	return "session." + sessionID
}

func (h *Handler) rejected(reason string) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.BatchRejected(reason)
	}
}

func (h *Handler) audit(ev security.AuditEvent) {
	if h.cfg.Audit != nil {
		h.cfg.Audit.Log(ev)
	}
}

// Shutdown closes every open session.
func (h *Handler) Shutdown() {
	var wg sync.WaitGroup
	for _, s := range h.store.All() {
		wg.Go(func() { s.close(websocket.StatusGoingAway, "server shutting down") })
	}
	wg.Wait()
}
