package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/local"
	"cybershield-progress/internal/infra/memory"
	"github.com/gorilla/websocket"
)

// TokenVerifier resolves a bearer token to the identity it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// LearnerDeps are the shared backends every learner connection is built from.
type LearnerDeps struct {
	Local    local.Backend
	Remote   app.RemoteProgressService
	Quizzes  app.QuizRepository
	Verifier TokenVerifier
}

// LearnerConfig tunes per-connection reconcilers. Zero values pick defaults.
type LearnerConfig struct {
	Debounce     time.Duration
	WriteTimeout time.Duration
	PendingTTL   time.Duration
	Clock        app.Clock
}

// WSHandler serves one learner session per websocket. Each connection gets its own
// session tier and reconciler; the durable tier is shared per device id.
type WSHandler struct {
	deps     LearnerDeps
	cfg      LearnerConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	closing  bool
	conns    map[*websocket.Conn]struct{}
	sessions sync.WaitGroup
}

func NewWSHandler(deps LearnerDeps, cfg LearnerConfig) *WSHandler {
	return &WSHandler{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Shutdown closes every live learner connection and waits until each session has
// flushed its open module, or ctx is done. New connections are refused afterwards.
// http.Server.Shutdown does not track hijacked connections, so call this after it.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) beginSession() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

func (h *WSHandler) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		// shutdown raced the upgrade; the read loop ends at once
		_ = conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
}

func (h *WSHandler) endSession(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.sessions.Done()
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type modulePayload struct {
	ModuleID string `json:"moduleId"`
}

type scrollPayload struct {
	ModuleID   string  `json:"moduleId"`
	Scrolled   float64 `json:"scrolled"`
	Scrollable float64 `json:"scrollable"`
}

type completeQuizPayload struct {
	ThreatID        string `json:"threatId"`
	SelectedAnswers []int  `json:"selectedAnswers"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type resumeQuizPayload struct {
	ThreatID      string `json:"threatId"`
	ApplyTransfer bool   `json:"applyTransfer"`
}

type readyPayload struct {
	DeviceID string          `json:"deviceId"`
	Identity domain.Identity `json:"identity"`
}

type progressPayload struct {
	ModuleID string `json:"moduleId"`
	Progress int    `json:"progress"`
}

type allProgressPayload struct {
	Modules []domain.ModuleProgress `json:"modules"`
	Quizzes []domain.QuizProgress   `json:"quizzes"`
}

type quizResultPayload struct {
	domain.QuizResult
	SaveError string `json:"saveError,omitempty"`
}

type quizRestorePayload struct {
	Restore *domain.QuizRestore `json:"restore"`
}

type transferSavedPayload struct {
	ThreatID string `json:"threatId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets and runs a learner session over them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "missing deviceId", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if !h.beginSession() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		h.endSession(nil)
		return
	}
	defer h.endSession(conn)
	defer conn.Close()
	h.register(conn)

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// keep draining so senders never block on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	reconciler := h.newReconciler(deviceID, func(moduleID string, err error) {
		log.Printf("device %s module %s progress not saved: %v", deviceID, moduleID, err)
		select {
		case send <- errorMessage(err):
		default:
		}
	})

	ctx := r.Context()
	if token != "" {
		if err := h.authenticate(ctx, reconciler, token); err != nil {
			send <- errorMessage(err)
		}
	}
	send <- outboundMessage[any]{Type: "ready", Payload: readyPayload{DeviceID: deviceID, Identity: reconciler.Identity()}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.dispatch(ctx, reconciler, inbound); ok {
			send <- reply
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := reconciler.Close(closeCtx); err != nil {
		log.Printf("device %s close: %v", deviceID, err)
	}
	cancel()
	close(send)
	<-writerDone
}

func (h *WSHandler) newReconciler(deviceID string, onWriteError func(string, error)) *app.Reconciler {
	kv := h.deps.Local.Device(deviceID)
	return app.NewReconciler(app.ReconcilerDeps{
		Session: memory.NewSessionStore(),
		Local:   local.NewStore(kv),
		Pending: local.NewPendingStore(kv, h.cfg.PendingTTL, nil),
		Remote:  h.deps.Remote,
		Quizzes: h.deps.Quizzes,
	}, app.ReconcilerConfig{
		Debounce:     h.cfg.Debounce,
		WriteTimeout: h.cfg.WriteTimeout,
		Clock:        h.cfg.Clock,
		OnWriteError: onWriteError,
	})
}

func (h *WSHandler) authenticate(ctx context.Context, reconciler *app.Reconciler, token string) error {
	if h.deps.Verifier == nil {
		return domain.ErrInvalidToken
	}
	identity, err := h.deps.Verifier.Verify(ctx, token)
	if err != nil {
		return err
	}
	return reconciler.Authenticate(ctx, identity)
}

// dispatch handles one inbound message and returns the reply, if any.
func (h *WSHandler) dispatch(ctx context.Context, reconciler *app.Reconciler, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "openModule":
		var payload modulePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		pct, err := reconciler.OpenModule(ctx, payload.ModuleID)
		if err != nil {
			return errorMessage(err), true
		}
		return progressMessage(payload.ModuleID, pct), true

	case "scroll":
		var payload scrollPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		pct, err := reconciler.ReportScroll(ctx, payload.ModuleID, payload.Scrolled, payload.Scrollable)
		if err != nil {
			return errorMessage(err), true
		}
		return progressMessage(payload.ModuleID, pct), true

	case "leaveModule":
		if err := reconciler.LeaveModule(ctx); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false

	case "moduleProgress":
		var payload modulePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		pct, err := reconciler.ModuleProgress(ctx, payload.ModuleID)
		if err != nil {
			return errorMessage(err), true
		}
		return progressMessage(payload.ModuleID, pct), true

	case "allModuleProgress":
		modules, err := reconciler.AllModuleProgress(ctx)
		if err != nil {
			return errorMessage(err), true
		}
		quizzes, err := reconciler.AllQuizProgress(ctx)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "allProgress", Payload: allProgressPayload{Modules: modules, Quizzes: quizzes}}, true

	case "completeQuiz":
		var payload completeQuizPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		result, err := reconciler.CompleteQuiz(ctx, payload.ThreatID, payload.SelectedAnswers)
		if err != nil {
			return errorMessage(err), true
		}
		out := quizResultPayload{QuizResult: result}
		if result.SaveErr != nil {
			out.SaveError = result.SaveErr.Error()
		}
		return outboundMessage[any]{Type: "quizResult", Payload: out}, true

	case "savePendingTransfer":
		var payload domain.PendingTransfer
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		if err := reconciler.SavePendingTransfer(ctx, payload); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "transferSaved", Payload: transferSavedPayload{ThreatID: payload.ThreatID}}, true

	case "authenticate":
		var payload authenticatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		if err := h.authenticate(ctx, reconciler, payload.Token); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "authenticated", Payload: reconciler.Identity()}, true

	case "signOut":
		if err := reconciler.SignOut(ctx); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "signedOut", Payload: reconciler.Identity()}, true

	case "resumeQuiz":
		var payload resumeQuizPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errInvalidPayload), true
		}
		restore, err := reconciler.ResumeQuiz(ctx, payload.ThreatID, payload.ApplyTransfer)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "quizRestore", Payload: quizRestorePayload{Restore: restore}}, true

	default:
		return errorMessage(errUnsupportedMessage), true
	}
}

func progressMessage(moduleID string, pct int) outboundMessage[any] {
	return outboundMessage[any]{Type: "progress", Payload: progressPayload{ModuleID: moduleID, Progress: pct}}
}
