// Package api exposes the engine over HTTP: template evaluation, GScript
// runs and tag management.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/auth"
	"github.com/chicogong/tagforge/pkg/engine"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/ui"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Server holds the API server dependencies
type Server struct {
	engine  *engine.Engine
	auth    *auth.Middleware
	tokens  *auth.JWTManager
	logger  *zap.Logger
	origin  string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAuth protects every route except /health.
func WithAuth(m *auth.Middleware) Option {
	return func(s *Server) {
		s.auth = m
	}
}

// WithTokenIssuer enables POST /v1/tokens, which lets elevated callers mint
// tokens for other users, and POST /v1/tokens/refresh.
func WithTokenIssuer(m *auth.JWTManager) Option {
	return func(s *Server) {
		s.tokens = m
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCORS allows browser calls from origin.
func WithCORS(origin string) Option {
	return func(s *Server) {
		s.origin = origin
	}
}

// NewServer creates a new API server
func NewServer(e *engine.Engine, opts ...Option) *Server {
	s := &Server{engine: e, logger: zap.NewNop(), started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvocationRequest describes the caller. With authentication enabled the
// author, guild and elevation come from the credentials instead.
type InvocationRequest struct {
	ID          string                `json:"id,omitempty"`
	Author      *platform.User        `json:"author,omitempty"`
	Channel     *platform.Channel     `json:"channel,omitempty"`
	Guild       *platform.Guild       `json:"guild,omitempty"`
	Content     string                `json:"content,omitempty"`
	Attachments []platform.Attachment `json:"attachments,omitempty"`
	Elevated    bool                  `json:"elevated,omitempty"`
}

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Template   string             `json:"template"`
	Args       string             `json:"args,omitempty"`
	Invocation *InvocationRequest `json:"invocation,omitempty"`
}

// ScriptRequest is the body of POST /v1/gscript.
type ScriptRequest struct {
	Script     string             `json:"script"`
	Invocation *InvocationRequest `json:"invocation,omitempty"`
}

// TagRequest is the body of tag create, edit, run and transfer calls.
type TagRequest struct {
	Name       string             `json:"name,omitempty"`
	Content    string             `json:"content,omitempty"`
	Server     bool               `json:"server,omitempty"`
	Args       string             `json:"args,omitempty"`
	To         string             `json:"to,omitempty"`
	Invocation *InvocationRequest `json:"invocation,omitempty"`
}

// CommandRequest is the body of POST /v1/commands.
type CommandRequest struct {
	Line       string             `json:"line"`
	Invocation *InvocationRequest `json:"invocation,omitempty"`
}

// FileResponse is an attachment; Data is base64 in JSON.
type FileResponse struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Data []byte `json:"data"`
}

// MessageResponse is a reply message.
type MessageResponse struct {
	Content string         `json:"content"`
	Embeds  []*ui.Embed    `json:"embeds,omitempty"`
	View    *ui.View       `json:"view,omitempty"`
	Files   []FileResponse `json:"files,omitempty"`
}

// PrimitiveResponse describes one registered primitive.
type PrimitiveResponse struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Usage   string   `json:"usage,omitempty"`
}

// TokenRequest is the body of POST /v1/tokens.
type TokenRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	GuildID  string `json:"guild_id,omitempty"`
	Elevated bool   `json:"elevated,omitempty"`
}

// TokenResponse carries a signed token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/primitives", s.HandlePrimitives)
	protected.HandleFunc("POST /v1/evaluate", s.HandleEvaluate)
	protected.HandleFunc("POST /v1/gscript", s.HandleScript)
	protected.HandleFunc("POST /v1/commands", s.HandleCommand)
	protected.HandleFunc("GET /v1/tags", s.HandleListTags)
	protected.HandleFunc("POST /v1/tags", s.HandleCreateTag)
	protected.HandleFunc("GET /v1/tags/{name}", s.HandleGetTag)
	protected.HandleFunc("PUT /v1/tags/{name}", s.HandleEditTag)
	protected.HandleFunc("DELETE /v1/tags/{name}", s.HandleDeleteTag)
	protected.HandleFunc("POST /v1/tags/{name}/run", s.HandleRunTag)
	protected.HandleFunc("POST /v1/tags/{name}/transfer", s.HandleTransferTag)

	if s.tokens != nil && s.auth != nil {
		protected.Handle("POST /v1/tokens", auth.RequireElevated(http.HandlerFunc(s.HandleIssueToken)))
		protected.HandleFunc("POST /v1/tokens/refresh", s.HandleRefreshToken)
	}

	var inner http.Handler = protected
	if s.auth != nil {
		inner = s.auth.Handler(protected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("/v1/", inner)

	mws := []Middleware{RecoveryMiddleware(s.logger), LoggingMiddleware(s.logger)}
	if s.origin != "" {
		mws = append(mws, CORSMiddleware(s.origin))
	}
	return Chain(mux, mws...)
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"primitives": len(s.engine.Registry().Names()),
		"tags":       s.engine.Store() != nil,
	})
}

// HandlePrimitives handles GET /v1/primitives
func (s *Server) HandlePrimitives(w http.ResponseWriter, r *http.Request) {
	var out []PrimitiveResponse
	for _, p := range s.engine.Registry().Primitives() {
		out = append(out, PrimitiveResponse{Name: p.Name, Aliases: p.Aliases, Usage: p.Usage})
	}
	sendJSON(w, http.StatusOK, out)
}

// HandleEvaluate handles POST /v1/evaluate
func (s *Server) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Template == "" {
		sendError(w, http.StatusBadRequest, "missing_template", "Template is required")
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	msg, err := s.engine.Evaluate(r.Context(), inv, req.Template, req.Args)
	s.reply(w, msg, err)
}

// HandleScript handles POST /v1/gscript
func (s *Server) HandleScript(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	msg, err := s.engine.RunScript(r.Context(), inv, req.Script)
	s.reply(w, msg, err)
}

// HandleCommand handles POST /v1/commands with a chat-style "tag ..." line.
func (s *Server) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	msg, err := s.engine.Command(r.Context(), inv, req.Line)
	s.reply(w, msg, err)
}

// HandleListTags handles GET /v1/tags
func (s *Server) HandleListTags(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	inv, ok := s.invocation(w, r, nil)
	if !ok {
		return
	}
	server, _ := strconv.ParseBool(r.URL.Query().Get("server"))
	scope, key, ok := scopeFor(w, inv, server)
	if !ok {
		return
	}
	list, err := st.List(r.Context(), scope, key)
	if err != nil {
		s.storeError(w, "", err)
		return
	}
	if list == nil {
		list = []*store.Template{}
	}
	sendJSON(w, http.StatusOK, list)
}

// HandleGetTag handles GET /v1/tags/{name}
func (s *Server) HandleGetTag(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	inv, ok := s.invocation(w, r, nil)
	if !ok {
		return
	}
	name := r.PathValue("name")
	t, err := st.Resolve(r.Context(), inv.Author.ID, inv.GuildID(), name)
	if err != nil {
		s.storeError(w, name, err)
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// HandleCreateTag handles POST /v1/tags
func (s *Server) HandleCreateTag(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	scope, key, ok := scopeFor(w, inv, req.Server)
	if !ok {
		return
	}
	t := &store.Template{Name: req.Name, Content: req.Content, OwnerID: inv.Author.ID, Scope: scope, ScopeKey: key}
	if err := st.Create(r.Context(), t); err != nil {
		s.storeError(w, store.NormalizeName(req.Name), err)
		return
	}
	sendJSON(w, http.StatusCreated, t)
}

// HandleEditTag handles PUT /v1/tags/{name}
func (s *Server) HandleEditTag(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	scope, key, ok := scopeFor(w, inv, req.Server)
	if !ok {
		return
	}
	k := store.Key{Scope: scope, ScopeKey: key, Name: r.PathValue("name")}
	if err := st.Edit(r.Context(), k, inv.Author.ID, req.Content, inv.Elevated); err != nil {
		s.storeError(w, store.NormalizeName(k.Name), err)
		return
	}
	t, err := st.Get(r.Context(), k)
	if err != nil {
		s.storeError(w, k.Name, err)
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// HandleDeleteTag handles DELETE /v1/tags/{name}
func (s *Server) HandleDeleteTag(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	inv, ok := s.invocation(w, r, nil)
	if !ok {
		return
	}
	server, _ := strconv.ParseBool(r.URL.Query().Get("server"))
	scope, key, ok := scopeFor(w, inv, server)
	if !ok {
		return
	}
	k := store.Key{Scope: scope, ScopeKey: key, Name: r.PathValue("name")}
	if err := st.Delete(r.Context(), k, inv.Author.ID, inv.Elevated); err != nil {
		s.storeError(w, store.NormalizeName(k.Name), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunTag handles POST /v1/tags/{name}/run
func (s *Server) HandleRunTag(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store(w); !ok {
		return
	}
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	msg, err := s.engine.Run(r.Context(), inv, r.PathValue("name"), req.Args)
	s.reply(w, msg, err)
}

// HandleTransferTag handles POST /v1/tags/{name}/transfer
func (s *Server) HandleTransferTag(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req TagRequest
	if !decode(w, r, &req) {
		return
	}
	inv, ok := s.invocation(w, r, req.Invocation)
	if !ok {
		return
	}
	if req.To == "" {
		sendError(w, http.StatusBadRequest, "missing_recipient", "Recipient user id is required")
		return
	}
	name := store.NormalizeName(r.PathValue("name"))
	k := store.Key{Scope: store.ScopeUser, ScopeKey: inv.Author.ID, Name: name}
	if err := st.Transfer(r.Context(), k, inv.Author.ID, req.To); err != nil {
		s.storeError(w, name, err)
		return
	}
	t, err := st.Get(r.Context(), store.Key{Scope: store.ScopeUser, ScopeKey: req.To, Name: name})
	if err != nil {
		s.storeError(w, name, err)
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// HandleIssueToken handles POST /v1/tokens
func (s *Server) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		sendError(w, http.StatusBadRequest, "missing_user", "user_id is required")
		return
	}
	token, err := s.tokens.Generate(auth.Identity{
		UserID:   req.UserID,
		Name:     req.Name,
		GuildID:  req.GuildID,
		Elevated: req.Elevated,
	})
	if err != nil {
		sendError(w, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, TokenResponse{Token: token})
}

// HandleRefreshToken handles POST /v1/tokens/refresh; the bearer token of
// the request is reissued with a fresh expiry.
func (s *Server) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		sendError(w, http.StatusBadRequest, "missing_token", "A bearer token is required")
		return
	}
	fresh, err := s.tokens.Refresh(strings.TrimSpace(token))
	if err != nil {
		sendError(w, http.StatusUnauthorized, "invalid_token", err.Error())
		return
	}
	sendJSON(w, http.StatusOK, TokenResponse{Token: fresh})
}

// invocation builds the engine invocation for r. The authenticated
// principal, when present, decides who the author is.
func (s *Server) invocation(w http.ResponseWriter, r *http.Request, req *InvocationRequest) (*platform.Invocation, bool) {
	if req == nil {
		req = &InvocationRequest{}
	}
	inv := &platform.Invocation{
		ID:          req.ID,
		Content:     req.Content,
		Attachments: req.Attachments,
		Guild:       req.Guild,
		Elevated:    req.Elevated,
	}
	if req.Author != nil {
		inv.Author = *req.Author
	}
	if req.Channel != nil {
		inv.Channel = *req.Channel
	}

	if p, ok := auth.FromContext(r.Context()); ok {
		inv.Author.ID = p.UserID
		if p.Name != "" {
			inv.Author.Name = p.Name
		}
		inv.Elevated = p.Elevated
		inv.Guild = nil
		if p.GuildID != "" {
			inv.Guild = &platform.Guild{ID: p.GuildID}
			if req.Guild != nil && req.Guild.ID == p.GuildID {
				inv.Guild = req.Guild
			}
		}
	} else if q := r.URL.Query(); inv.Author.ID == "" && q.Get("user") != "" {
		inv.Author.ID = q.Get("user")
		if g := q.Get("guild"); g != "" {
			inv.Guild = &platform.Guild{ID: g}
		}
	}

	if inv.Author.ID == "" {
		sendError(w, http.StatusBadRequest, "missing_author", "Invocation author is required")
		return nil, false
	}
	return inv, true
}

func (s *Server) store(w http.ResponseWriter) (store.Store, bool) {
	st := s.engine.Store()
	if st == nil {
		sendError(w, http.StatusServiceUnavailable, "store_unavailable", "Tag storage is not configured")
		return nil, false
	}
	return st, true
}

func scopeFor(w http.ResponseWriter, inv *platform.Invocation, server bool) (store.Scope, string, bool) {
	if !server {
		return store.ScopeUser, inv.Author.ID, true
	}
	if inv.GuildID() == "" {
		sendError(w, http.StatusBadRequest, "no_guild", "Server tags are only available in a server")
		return "", "", false
	}
	return store.ScopeGuild, inv.GuildID(), true
}

// storeError maps store errors to statuses and the user-facing messages
// the chat commands use.
func (s *Server) storeError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicate):
		sendError(w, http.StatusConflict, "duplicate", fmt.Sprintf("A tag named %s already exists", name))
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No tag named %s found", name))
	case errors.Is(err, store.ErrPermission):
		sendError(w, http.StatusForbidden, "permission_denied", fmt.Sprintf("No editable tag named %s found", name))
	case errors.Is(err, store.ErrNameTooLong):
		sendError(w, http.StatusBadRequest, "name_too_long", fmt.Sprintf("Tag names must be %d characters or fewer", store.MaxNameLength))
	case errors.Is(err, store.ErrContentTooLong):
		sendError(w, http.StatusBadRequest, "content_too_long", fmt.Sprintf("Tag content must be %d characters or fewer", store.MaxContentLength))
	case errors.Is(err, store.ErrInvalidName), errors.Is(err, store.ErrEmptyContent), errors.Is(err, store.ErrNotPersonal):
		sendError(w, http.StatusBadRequest, "invalid_tag", err.Error())
	default:
		s.logger.Error("store error", zap.String("tag", name), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "store_error", "Tag storage failed")
	}
}

func (s *Server) reply(w http.ResponseWriter, msg *platform.Message, err error) {
	if err != nil {
		s.logger.Error("evaluation failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "evaluation_failed", err.Error())
		return
	}
	resp := MessageResponse{Content: msg.Content, Embeds: msg.Embeds, View: msg.View}
	for _, f := range msg.Files {
		resp.Files = append(resp.Files, FileResponse{Name: f.Name, Size: len(f.Data), Data: f.Data})
	}
	sendJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		sendError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendJSON(w, status, ErrorResponse{Error: code, Message: message, Code: status})
}
