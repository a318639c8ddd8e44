// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package web adapts the auth controller to HTTP: it parses form posts and
// cookies, runs the controller, and answers with cookies, a 303 redirect or a
// JSON view of the page to show.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smalllogin/smalllogin/internal/auth"
	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/pkg/errutil"
)

// maxFormBytes bounds a submitted form.
const maxFormBytes = 64 << 10

// Page modes of the JSON view.
const (
	ModeLogin    = "login"
	ModeRegister = "register"
	ModeUserdata = "userdata"
)

// MsgSetupError is the only text a client sees for a fatal error.
const MsgSetupError = "Setup error"

const tracerName = "github.com/smalllogin/smalllogin/internal/web"

// Authenticator is the controller surface the handler needs.
type Authenticator interface {
	Handle(ctx context.Context, req auth.Request) (*auth.Result, error)
	Profile(ctx context.Context, username string) (map[string]string, error)
	Fields() []string
}

// RequestRecorder counts handled requests.
type RequestRecorder interface {
	RecordRequest(outcome string, status int)
}

// Options configures the handler.
type Options struct {
	SessionCookie  string
	RememberCookie string
	LandingPath    string
	// SecureCookies sets the Secure attribute even on plain HTTP, for
	// deployments behind a TLS-terminating proxy.
	SecureCookies bool
	// Debug adds the raw error text to fatal responses.
	Debug    bool
	Logger   *slog.Logger
	Recorder RequestRecorder
}

// Handler serves the login and registration page.
type Handler struct {
	ctrl   Authenticator
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// View is the JSON body of a rendered page.
type View struct {
	Mode     string            `json:"mode"`
	State    string            `json:"state"`
	Username string            `json:"username,omitempty"`
	Fields   []string          `json:"fields"`
	Errors   []string          `json:"errors"`
	Problems []auth.Problem    `json:"problems,omitempty"`
	Messages []string          `json:"messages"`
	Form     map[string]string `json:"form,omitempty"`
	Profile  map[string]string `json:"profile,omitempty"`
}

// ErrorView is the JSON body of a fatal error response.
type ErrorView struct {
	Error string `json:"error"`
	Debug string `json:"debug,omitempty"`
}

// NewHandler creates a Handler.
func NewHandler(ctrl Authenticator, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LandingPath == "" {
		opts.LandingPath = "/"
	}
	return &Handler{
		ctrl:   ctrl,
		opts:   opts,
		logger: opts.Logger,
		tracer: otel.Tracer(tracerName),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "auth.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.method", r.Method)),
	)
	defer span.End()

	w.Header().Set("Cache-Control", "no-store")

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		h.record("method_not_allowed", http.StatusMethodNotAllowed)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.record("bad_request", http.StatusBadRequest)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req := h.parseRequest(r)
	span.SetAttributes(
		attribute.Bool("auth.login", req.Login),
		attribute.Bool("auth.register", req.Register),
		attribute.Bool("auth.logout", req.Logout),
	)

	res, err := h.ctrl.Handle(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "controller failed")
		h.fail(ctx, w, err)
		return
	}
	span.SetAttributes(
		attribute.String("auth.state", res.State.String()),
		attribute.String("auth.outcome", res.Outcome.String()),
	)

	secure := r.TLS != nil || h.opts.SecureCookies
	h.writeCookies(w, res, secure)

	switch res.Outcome {
	case auth.OutcomeRedirectSelf:
		h.redirect(w, r, r.URL.RequestURI(), res)
	case auth.OutcomeRedirectLanding:
		h.redirect(w, r, h.opts.LandingPath, res)
	default:
		h.render(ctx, w, res)
	}
}

// parseRequest maps the request onto the controller's input. Login and
// registration are honoured only on POST; logout may come from the query.
func (h *Handler) parseRequest(r *http.Request) auth.Request {
	req := auth.Request{
		Logout: r.Form.Has("logout"),
		Form:   make(map[string]string, len(r.PostForm)),
	}
	if r.Method == http.MethodPost {
		req.Login = r.PostForm.Has("login")
		req.Register = r.PostForm.Has("register")
		req.Remember = r.PostForm.Get("remember") != ""
		for name := range r.PostForm {
			req.Form[name] = r.PostForm.Get(name)
		}
	}
	if c, err := r.Cookie(h.opts.SessionCookie); err == nil {
		req.SessionID = c.Value
	}
	if h.opts.RememberCookie != "" {
		if c, err := r.Cookie(h.opts.RememberCookie); err == nil {
			req.RememberCookie = c.Value
		}
	}
	return req
}

func (h *Handler) writeCookies(w http.ResponseWriter, res *auth.Result, secure bool) {
	switch {
	case res.ClearSession:
		http.SetCookie(w, h.expired(h.opts.SessionCookie, secure))
	case res.Session != nil:
		http.SetCookie(w, h.cookie(h.opts.SessionCookie, res.Session.ID, res.Session.ExpiresAt, secure))
	}

	if h.opts.RememberCookie == "" {
		return
	}
	switch {
	case res.RememberCookie != "":
		http.SetCookie(w, h.cookie(h.opts.RememberCookie, res.RememberCookie, res.RememberExpires, secure))
	case res.ClearRemember:
		http.SetCookie(w, h.expired(h.opts.RememberCookie, secure))
	}
}

func (h *Handler) cookie(name, value string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *Handler) expired(name string, secure bool) *http.Cookie {
	c := h.cookie(name, "", time.Unix(0, 0), secure)
	c.MaxAge = -1
	return c
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string, res *auth.Result) {
	h.record(res.Outcome.String(), http.StatusSeeOther)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, res *auth.Result) {
	view := View{
		State:    res.State.String(),
		Username: res.Username,
		Fields:   h.ctrl.Fields(),
		Errors:   res.Texts(),
		Problems: res.Problems,
		Messages: res.Messages,
		Form:     res.Form,
	}
	if view.Messages == nil {
		view.Messages = []string{}
	}

	switch res.State {
	case auth.StateAuthenticated:
		view.Mode = ModeUserdata
		profile, err := h.ctrl.Profile(ctx, res.Username)
		switch {
		case err == nil:
			view.Profile = profile
		case errors.Is(err, credential.ErrNotFound):
			h.logger.WarnContext(ctx, "session user has no profile", "username", res.Username)
		default:
			h.fail(ctx, w, err)
			return
		}
	case auth.StatePendingRegistration:
		view.Mode = ModeRegister
	default:
		view.Mode = ModeLogin
	}

	h.record(res.Outcome.String(), http.StatusOK)
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	errutil.LogErrorContext(ctx, h.logger, "request failed", err)
	body := ErrorView{Error: MsgSetupError}
	if h.opts.Debug {
		body.Debug = err.Error()
	}
	h.record("error", http.StatusInternalServerError)
	writeJSON(w, http.StatusInternalServerError, body)
}

func (h *Handler) record(outcome string, status int) {
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordRequest(outcome, status)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
