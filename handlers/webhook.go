// Package handlers implements the webhook receiver: the intake endpoint the
// source platform's trigger posts to when a flagged device connects, and the
// optional result endpoint the device-side installer script reports back to.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"scmigrate/models"
	"scmigrate/pkg/audit"
	"scmigrate/pkg/pusher"
	"scmigrate/pkg/screenconnect"
)

// Upstream is the slice of the platform client the receiver uses. The status
// write is a read-modify-write of the custom property array; RunCommand
// dispatches the installer script to the device.
type Upstream interface {
	SetStatusProperty(ctx context.Context, sessionID, status string) error
	RunCommand(ctx context.Context, sessionID, command string) error
}

type WebhookService struct {
	config  *models.Config
	audit   *audit.Logger
	log     zerolog.Logger
	clients map[string]Upstream

	// Serializes request processing. The platform API has no concurrency
	// guard on property writes, so one writer at a time from this process
	// keeps its own read-modify-writes from racing each other.
	mu sync.Mutex

	now func() time.Time
}

func NewWebhookService(config *models.Config, auditLog *audit.Logger, log zerolog.Logger) *WebhookService {
	clients := make(map[string]Upstream, len(config.Instances))
	for key, inst := range config.Instances {
		clients[key] = screenconnect.NewClient(inst.BaseURL, inst.ExtGUID, inst.CtrlSecret)
	}
	return &WebhookService{
		config:  config,
		audit:   auditLog,
		log:     log,
		clients: clients,
		now:     time.Now,
	}
}

// SetUpstream replaces the client for one instance, for tests.
func (s *WebhookService) SetUpstream(instance string, client Upstream) {
	s.clients[instance] = client
}

// Router builds the mux router for the configured deployment mode. Every
// response, including 404 and 405, is a JSON body with an ok flag.
func (s *WebhookService) Router() *mux.Router {
	r := mux.NewRouter()

	if s.config.Mode == models.ModeIP {
		r.HandleFunc(s.config.WebhookPath, s.handleIntake).Methods("POST")
	} else {
		r.HandleFunc(s.config.WebhookPath+"/{instance}", s.handleIntake).Methods("POST")
		if s.config.EnableCallback {
			r.HandleFunc(s.config.ResultPath+"/{instance}", s.handleResult).Methods("POST")
		}
	}
	r.HandleFunc("/health", healthCheck).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.rejectRequest(w, req, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.rejectRequest(w, req, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

// requestContext carries the per-request fields every error record needs.
type requestContext struct {
	id         string
	instance   string
	remoteAddr string
	path       string
	sessionID  string
	body       string
}

func (s *WebhookService) handleIntake(w http.ResponseWriter, r *http.Request) {
	rc := &requestContext{
		id:         uuid.NewString(),
		remoteAddr: r.RemoteAddr,
		path:       r.URL.Path,
	}
	defer s.recoverRequest(w, rc)

	instanceKey, ok := s.resolveInstance(w, r, rc)
	if !ok {
		return
	}
	rc.instance = instanceKey

	body, ok := s.readBody(w, r, rc)
	if !ok {
		return
	}

	var payload models.IntakePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, rc, http.StatusBadRequest, fmt.Sprintf("malformed JSON: %v", err))
		return
	}

	if violations := validateIntake(&payload, s.config.SessionType); len(violations) > 0 {
		s.reject(w, rc, http.StatusBadRequest, "invalid payload: "+joinViolations(violations))
		return
	}
	rc.sessionID = *payload.SessionID

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.TestMode {
		s.log.Info().
			Str("request_id", rc.id).
			Str("instance", instanceKey).
			Str("session_id", rc.sessionID).
			Str("name", *payload.Name).
			Msg("test mode: intake logged, no push")
		if err := s.audit.Migration(audit.MigrationRecord{
			Instance:         instanceKey,
			SessionID:        rc.sessionID,
			Name:             *payload.Name,
			Action:           "test_logged",
			CustomProperties: payload.CustomProperties(),
		}); err != nil {
			s.log.Error().Err(err).Msg("failed to append migration record")
		}
		writeJSON(w, http.StatusOK, models.WebhookResponse{
			OK: true, Action: "test_logged", SessionID: rc.sessionID, Instance: instanceKey,
		})
		return
	}

	client := s.clients[instanceKey]
	ctx := r.Context()

	if err := client.SetStatusProperty(ctx, rc.sessionID, models.Sent(s.now()).String()); err != nil {
		s.fail(w, rc, fmt.Sprintf("failed to mark session as sent: %v", err))
		return
	}

	dispatcher := s.dispatcher(instanceKey)
	if err := dispatcher.Push(ctx, client, rc.sessionID, payload.CustomProperties()); err != nil {
		s.fail(w, rc, fmt.Sprintf("failed to push install command: %v", err))
		return
	}

	if err := s.audit.Migration(audit.MigrationRecord{
		Instance:         instanceKey,
		SessionID:        rc.sessionID,
		Name:             *payload.Name,
		Action:           "sent",
		CustomProperties: payload.CustomProperties(),
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to append migration record")
	}

	s.log.Info().
		Str("request_id", rc.id).
		Str("instance", instanceKey).
		Str("session_id", rc.sessionID).
		Msg("install command pushed")

	writeJSON(w, http.StatusOK, models.WebhookResponse{
		OK: true, Action: "sent", SessionID: rc.sessionID, Instance: instanceKey,
	})
}

func (s *WebhookService) handleResult(w http.ResponseWriter, r *http.Request) {
	rc := &requestContext{
		id:         uuid.NewString(),
		remoteAddr: r.RemoteAddr,
		path:       r.URL.Path,
	}
	defer s.recoverRequest(w, rc)

	instanceKey, ok := s.resolveInstance(w, r, rc)
	if !ok {
		return
	}
	rc.instance = instanceKey

	body, ok := s.readBody(w, r, rc)
	if !ok {
		return
	}

	var payload models.ResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, rc, http.StatusBadRequest, fmt.Sprintf("malformed JSON: %v", err))
		return
	}

	if violations := validateResult(&payload); len(violations) > 0 {
		s.reject(w, rc, http.StatusBadRequest, "invalid payload: "+joinViolations(violations))
		return
	}
	rc.sessionID = *payload.SessionID

	s.mu.Lock()
	defer s.mu.Unlock()

	// The status is overwritten whether or not the session was in SENT.
	// A replayed or stray callback can flip it without a dispatch; known
	// gap, kept for compatibility with the platform-side convention.
	status := models.ResultStatus(*payload.Success)
	if err := s.clients[instanceKey].SetStatusProperty(r.Context(), rc.sessionID, status.String()); err != nil {
		s.fail(w, rc, fmt.Sprintf("failed to record result status: %v", err))
		return
	}

	message := ""
	if payload.Message != nil {
		message = *payload.Message
	}
	if err := s.audit.Result(audit.ResultRecord{
		Instance:  instanceKey,
		SessionID: rc.sessionID,
		Success:   *payload.Success,
		Message:   message,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to append result record")
	}

	s.log.Info().
		Str("request_id", rc.id).
		Str("instance", instanceKey).
		Str("session_id", rc.sessionID).
		Bool("success", *payload.Success).
		Msg("install result recorded")

	writeJSON(w, http.StatusOK, models.WebhookResponse{
		OK: true, Action: "result_recorded", SessionID: rc.sessionID, Instance: instanceKey,
	})
}

// resolveInstance determines which configured instance a request belongs to:
// the path segment in path mode, the caller's source address in ip mode.
func (s *WebhookService) resolveInstance(w http.ResponseWriter, r *http.Request, rc *requestContext) (string, bool) {
	if s.config.Mode == models.ModeIP {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		key, _, ok := s.config.InstanceBySourceIP(host)
		if !ok {
			s.reject(w, rc, http.StatusForbidden, fmt.Sprintf("source address %s is not a configured instance", host))
			return "", false
		}
		return key, true
	}

	key := mux.Vars(r)["instance"]
	if _, ok := s.config.Instances[key]; !ok {
		s.reject(w, rc, http.StatusNotFound, fmt.Sprintf("unknown instance %q", key))
		return "", false
	}
	return key, true
}

// readBody enforces the size ceiling before reading and rejects empty bodies.
func (s *WebhookService) readBody(w http.ResponseWriter, r *http.Request, rc *requestContext) ([]byte, bool) {
	limited := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.reject(w, rc, http.StatusBadRequest, fmt.Sprintf("request body exceeds %d bytes", s.config.MaxBodyBytes))
		} else {
			s.reject(w, rc, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		}
		return nil, false
	}
	if len(body) == 0 {
		s.reject(w, rc, http.StatusBadRequest, "empty request body")
		return nil, false
	}
	rc.body = string(body)
	return body, true
}

// rejectRequest answers a request that never reached a handler (unknown path
// or disallowed method); these are still validation errors and land in the
// error log like any other rejection. The body is not read.
func (s *WebhookService) rejectRequest(w http.ResponseWriter, r *http.Request, status int, reason string) {
	rc := &requestContext{
		id:         uuid.NewString(),
		remoteAddr: r.RemoteAddr,
		path:       r.URL.Path,
	}
	s.reject(w, rc, status, reason)
}

// reject answers a validation failure and appends it to the error log.
func (s *WebhookService) reject(w http.ResponseWriter, rc *requestContext, status int, reason string) {
	s.logError(rc, reason)
	writeJSON(w, status, models.WebhookResponse{OK: false, Error: reason})
}

// fail answers an upstream or internal failure with a 500.
func (s *WebhookService) fail(w http.ResponseWriter, rc *requestContext, reason string) {
	s.logError(rc, reason)
	writeJSON(w, http.StatusInternalServerError, models.WebhookResponse{OK: false, Error: reason})
}

func (s *WebhookService) logError(rc *requestContext, reason string) {
	s.log.Warn().
		Str("request_id", rc.id).
		Str("instance", rc.instance).
		Str("remote_addr", rc.remoteAddr).
		Str("path", rc.path).
		Msg(reason)
	if err := s.audit.Error(audit.ErrorRecord{
		RequestID:  rc.id,
		Instance:   rc.instance,
		Reason:     reason,
		RemoteAddr: rc.remoteAddr,
		Path:       rc.path,
		SessionID:  rc.sessionID,
		Body:       rc.body,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to append error record")
	}
}

// recoverRequest is the outermost failure boundary: a panic in one request
// becomes a 500 and the listener keeps serving.
func (s *WebhookService) recoverRequest(w http.ResponseWriter, rc *requestContext) {
	if p := recover(); p != nil {
		s.fail(w, rc, fmt.Sprintf("internal error: %v", p))
	}
}

func (s *WebhookService) dispatcher(sourceInstance string) *pusher.Dispatcher {
	target := s.config.Instances[s.config.TargetInstance]
	d := &pusher.Dispatcher{
		TargetBaseURL: target.BaseURL,
		InstallerPath: s.config.InstallerPath,
		TimeoutMillis: s.config.CommandTimeout,
	}
	if s.config.EnableCallback {
		d.CallbackURL = s.config.CallbackBase + s.config.ResultPath + "/" + sourceInstance
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, body models.WebhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
