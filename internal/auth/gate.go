package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

const (
	LoginPath   = "/login"
	LogoutPath  = "/logout"
	MembersPath = "/members"
)

const (
	noticeLoginRequired = "Please log in to access this page."
	noticeLoginSuccess  = "Successfully logged in!"
	noticeLoginFailed   = "Invalid username or password."
	noticeLoggedOut     = "You have been logged out."
)

// Admin holds the single set of static credentials. Passwords are compared
// in plain text, no hashing.
type Admin struct {
	Username string
	Password string
}

type Credentials struct {
	Username string
	Password string
}

// Matches compares both fields verbatim. Empty fields never match.
func (a *Admin) Matches(creds Credentials) bool {
	if a == nil || creds.Username == "" || creds.Password == "" {
		return false
	}
	usernameOk := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(a.Username)) == 1
	passwordOk := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(a.Password)) == 1
	return usernameOk && passwordOk
}

// Decision is the result of a session check: Authorized or RedirectToLogin.
type Decision interface {
	isDecision()
}

type Authorized struct {
	Username string
}

type RedirectToLogin struct {
	Target string
}

func (Authorized) isDecision()      {}
func (RedirectToLogin) isDecision() {}

type LoginOutcome int

const (
	LoginFailed LoginOutcome = iota
	LoginSucceeded
)

// Gate decides whether a request carries an authenticated session, and
// handles login and logout. The logged in flag is the only authorization signal.
type Gate struct {
	admin    *Admin
	sessions *session.Manager
}

func NewGate(admin *Admin, sessions *session.Manager) *Gate {
	return &Gate{
		admin:    admin,
		sessions: sessions,
	}
}

func (g *Gate) IsLogged(r *http.Request) bool {
	return session.IsLoggedIn(g.sessions.Get(r))
}

// Check authorizes the request, or attaches a warning notice and tells the
// caller to redirect to the login form.
func (g *Gate) Check(w http.ResponseWriter, r *http.Request) Decision {
	s := g.sessions.Get(r)
	if session.IsLoggedIn(s) {
		return Authorized{Username: session.Username(s)}
	}

	if err := g.sessions.AddNotice(w, r, session.Warning(noticeLoginRequired)); err != nil {
		log.Errorf("session check, save notice: %s", err)
	}
	return RedirectToLogin{Target: LoginPath}
}

func (g *Gate) AttemptLogin(w http.ResponseWriter, r *http.Request, creds Credentials) (LoginOutcome, error) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "gate.attemptLogin")
	defer span.End()

	if !g.admin.Matches(creds) {
		if err := g.sessions.AddNotice(w, r, session.Danger(noticeLoginFailed)); err != nil {
			log.Errorf("failed login, save notice: %s", err)
		}
		span.SetStatus(codes.Error, "wrong-credentials")
		return LoginFailed, nil
	}

	s := g.sessions.Get(r)
	g.sessions.Renew(ctx, s)
	session.SetLoggedIn(s, creds.Username)
	g.sessions.Flash(r, session.Success(noticeLoginSuccess))
	if err := g.sessions.Save(w, r, s); err != nil {
		span.SetStatus(codes.Error, "save-session")
		span.RecordError(err)
		return LoginFailed, fmt.Errorf("save logged in session: %w", err)
	}

	span.SetStatus(codes.Ok, "logged-in")
	return LoginSucceeded, nil
}

// Logout clears the session unconditionally. Calling it on an empty session is fine.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) error {
	s := g.sessions.Get(r)
	session.Clear(s)
	g.sessions.Flash(r, session.Info(noticeLoggedOut))
	if err := g.sessions.Save(w, r, s); err != nil {
		return fmt.Errorf("save cleared session: %w", err)
	}
	return nil
}
