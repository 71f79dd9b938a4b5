package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultline/vaultline/internal/actions"
	"github.com/vaultline/vaultline/internal/agent"
	"github.com/vaultline/vaultline/internal/auth"
	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/internal/sessions"
	"github.com/vaultline/vaultline/internal/tools"
	"github.com/vaultline/vaultline/internal/wallet"
	"github.com/vaultline/vaultline/pkg/models"
)

const protocolVersion = "2024-11-05"

// Server serves the JSON-RPC endpoint, the chat endpoint, health, and
// metrics.
type Server struct {
	router     chi.Router
	loop       *agent.Loop
	catalog    *tools.Catalog
	dispatcher *actions.Dispatcher
	auth       *auth.Service
	store      sessions.Store
	logger     *observability.Logger
	metrics    *observability.Metrics
	info       ServerInfo
}

// NewServer wires the HTTP surface.
func NewServer(
	loop *agent.Loop,
	catalog *tools.Catalog,
	dispatcher *actions.Dispatcher,
	authService *auth.Service,
	store sessions.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
	info ServerInfo,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		loop:       loop,
		catalog:    catalog,
		dispatcher: dispatcher,
		auth:       authService,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		info:       info,
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/rpc", s.handleRPC)
	s.router.Post("/v1/chat", s.handleChat)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := observability.AddRequestID(r.Context(), uuid.NewString())

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.record("parse", "error")
		writeJSON(w, http.StatusOK, errorResponse(nil, CodeParseError, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.record(req.Method, "invalid")
		writeJSON(w, http.StatusOK, errorResponse(req.ID, CodeInvalidRequest, "invalid request"))
		return
	}

	var resp Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "ping":
		resp = s.handlePing(r, req)
	case "tools/list":
		resp = s.handleToolsList(r, req)
	case "tools/call":
		resp = s.handleToolsCall(r, req)
	default:
		resp = errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}

	status := "ok"
	if resp.Error != nil {
		status = "error"
	}
	s.record(req.Method, status)
	if s.logger != nil {
		s.logger.Debug(ctx, "rpc request handled", "method", req.Method, "status", status)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInitialize(req Request) Response {
	return result(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      s.info,
		Capabilities:    Capabilities{Tools: map[string]any{}},
	})
}

// handlePing is an authenticated liveness check.
func (s *Server) handlePing(r *http.Request, req Request) Response {
	if _, authErr := s.identify(r); authErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: authErr}
	}
	return result(req.ID, map[string]any{"ok": true})
}

// identify resolves the caller's credential. ping, tools/list, and tools/call
// all require one.
func (s *Server) identify(r *http.Request) (*auth.Identity, *Error) {
	token := bearerToken(r)
	if token == "" {
		return nil, &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	}
	identity, err := s.auth.ResolveScopes(token)
	if err != nil {
		return nil, &Error{Code: CodeUnauthenticated, Message: "invalid credential"}
	}
	return identity, nil
}

func (s *Server) handleToolsList(r *http.Request, req Request) Response {
	identity, authErr := s.identify(r)
	if authErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: authErr}
	}

	specs := s.catalog.Specs(identity.Scopes)
	infos := make([]ToolInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, ToolInfo{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	return result(req.ID, ListToolsResult{Tools: infos})
}

// handleToolsCall executes one tool directly, outside the conversational
// loop. Protocol errors cover only what the caller got wrong at the wire
// level; a screened-out or failed action is a successful RPC whose result
// carries IsError.
func (s *Server) handleToolsCall(r *http.Request, req Request) Response {
	identity, authErr := s.identify(r)
	if authErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: authErr}
	}

	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: name is required")
	}

	descriptor, ok := s.catalog.Get(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "unknown tool: "+params.Name)
	}
	if missing := identity.Scopes.Missing(descriptor.RequiredScopes); len(missing) > 0 {
		parts := make([]string, len(missing))
		for i, scope := range missing {
			parts[i] = string(scope)
		}
		return errorResponse(req.ID, CodeMissingScope, "missing scope: "+strings.Join(parts, ", "))
	}

	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	if err := s.catalog.Validate(params.Name, params.Arguments); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}
	args := s.catalog.Canonicalize(params.Name, params.Arguments)

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = "rpc-" + identity.Subject
	}
	ctx := observability.AddSessionID(r.Context(), sessionID)

	session, err := s.store.GetOrCreate(ctx, sessionID, models.PlatformAPI)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "session unavailable")
	}

	action := &models.ParsedAction{
		Intent:     descriptor.Intent,
		Params:     args,
		Confidence: 1,
	}
	res := s.dispatcher.Dispatch(ctx, action, &actions.Request{
		SessionID: sessionID,
		Wallet:    session.WalletAddress,
		Params:    args,
	})

	return result(req.ID, ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: res.Message}},
		IsError: !res.Success,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := observability.AddRequestID(r.Context(), uuid.NewString())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if req.WalletAddress != "" {
		addr, err := wallet.NormalizeAddress(req.WalletAddress)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid wallet address"})
			return
		}
		if _, err := s.store.GetOrCreate(ctx, req.SessionID, models.PlatformAPI); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
			return
		}
		if err := s.store.SetWallet(ctx, req.SessionID, addr); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
			return
		}
	}

	// A credential is optional here. Without one the caller gets the
	// configured default scopes; with an invalid one the request fails.
	scopes := s.auth.DefaultScopes()
	if token := bearerToken(r); token != "" {
		identity, err := s.auth.ResolveScopes(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
			return
		}
		scopes = identity.Scopes
	}

	turn, err := s.loop.ProcessTurn(ctx, req.SessionID, req.Message, models.PlatformAPI, scopes)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "chat turn failed", "error", err.Error())
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	resp := ChatResponse{
		SessionID: turn.SessionID,
		Reply:     turn.Reply,
	}
	for _, record := range turn.Actions {
		resp.Actions = append(resp.Actions, ActionSummary{
			Intent:  string(record.Intent),
			Success: record.Success,
			Message: record.Message,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) record(method, status string) {
	if s.metrics != nil {
		s.metrics.RecordRPCRequest(method, status)
	}
}

func result(id json.RawMessage, payload any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: payload}
}

func errorResponse(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
