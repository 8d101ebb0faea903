package auth

import (
	"net/http"

	"github.com/2beens/jaeronautics/internal/render"
	"github.com/2beens/jaeronautics/internal/telemetry/metrics"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"
	"github.com/2beens/jaeronautics/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type pageRenderer interface {
	HTML(w http.ResponseWriter, r *http.Request, status int, page string, data any)
	ServerError(w http.ResponseWriter, r *http.Request)
}

type Handler struct {
	gate           *Gate
	renderer       pageRenderer
	metricsManager *metrics.Manager
}

func NewHandler(
	gate *Gate,
	renderer pageRenderer,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		gate:           gate,
		renderer:       renderer,
		metricsManager: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/", handler.HandleIndex).Methods("GET").Name("index")
	router.HandleFunc(LoginPath, handler.HandleLoginForm).Methods("GET").Name("login-form")
	router.HandleFunc(LoginPath, handler.HandleLogin).Methods("POST").Name("login")
	router.HandleFunc(LogoutPath, handler.HandleLogout).Methods("GET").Name("logout")
}

func (handler *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if handler.gate.IsLogged(r) {
		http.Redirect(w, r, MembersPath, http.StatusFound)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

func (handler *Handler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	handler.renderer.HTML(w, r, http.StatusOK, render.PageLogin, nil)
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.login")
	defer span.End()
	r = r.WithContext(ctx)

	if err := r.ParseForm(); err != nil {
		// treated as empty credentials below
		log.Warnf("login, parse form: %s", err)
	}

	creds := Credentials{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	span.SetAttributes(attribute.String("login.username", creds.Username))

	outcome, err := handler.gate.AttemptLogin(w, r, creds)
	if err != nil {
		log.Errorf("login: %s", err)
		span.SetStatus(codes.Error, "login-error")
		span.RecordError(err)
		handler.renderer.ServerError(w, r)
		return
	}

	if outcome == LoginSucceeded {
		handler.countLoginAttempt("success")
		log.Infof("user [%s] logged in", creds.Username)
		span.SetStatus(codes.Ok, "logged-in")
		http.Redirect(w, r, MembersPath, http.StatusFound)
		return
	}

	handler.countLoginAttempt("failure")
	userIP, _ := pkg.ReadUserIP(r)
	log.Warnf("failed login attempt for [%s] from [%s]", creds.Username, userIP)
	span.SetStatus(codes.Error, "wrong-credentials")
	handler.renderer.HTML(w, r, http.StatusOK, render.PageLogin, nil)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.logout")
	defer span.End()
	r = r.WithContext(ctx)

	if err := handler.gate.Logout(w, r); err != nil {
		log.Errorf("logout: %s", err)
		span.SetStatus(codes.Error, "logout-error")
		span.RecordError(err)
		handler.renderer.ServerError(w, r)
		return
	}

	span.SetStatus(codes.Ok, "logged-out")
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

func (handler *Handler) countLoginAttempt(result string) {
	if handler.metricsManager != nil {
		handler.metricsManager.CounterLoginAttempts.WithLabelValues(result).Inc()
	}
}
