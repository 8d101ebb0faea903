package session

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	log "github.com/sirupsen/logrus"
)

const (
	loggedInKey = "logged_in"
	usernameKey = "username"
)

// Manager gives handlers access to the request session and its notices.
type Manager struct {
	store sessions.Store
	name  string
}

func NewManager(store sessions.Store, cookieName string) *Manager {
	return &Manager{
		store: store,
		name:  cookieName,
	}
}

// Get returns the request session, never nil. A session that fails to load
// (bad signature, expired, store unavailable) comes back empty.
func (m *Manager) Get(r *http.Request) *sessions.Session {
	s, err := m.store.Get(r, m.name)
	if err != nil {
		log.Warnf("load session for [%s]: %s", r.URL.Path, err)
	}
	if s == nil {
		s = sessions.NewSession(m.store, m.name)
		s.Options = cookieOptions(false)
		s.IsNew = true
	}
	return s
}

func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *sessions.Session) error {
	return m.store.Save(r, w, s)
}

// Renew makes the next Save issue a new session id. Stores that keep
// server-side state drop the old entry.
func (m *Manager) Renew(ctx context.Context, s *sessions.Session) {
	if deleter, ok := m.store.(interface {
		Delete(ctx context.Context, id string) error
	}); ok {
		if err := deleter.Delete(ctx, s.ID); err != nil {
			log.Warnf("renew session, delete old one: %s", err)
		}
	}
	s.ID = ""
}

// AddNotice attaches a notice to the session, shown on the next rendered page.
func (m *Manager) AddNotice(w http.ResponseWriter, r *http.Request, notice Notice) error {
	s := m.Get(r)
	s.AddFlash(notice, noticesKey)
	return m.Save(w, r, s)
}

// Flash attaches a notice without saving; the next Save or PopNotices persists it.
func (m *Manager) Flash(r *http.Request, notice Notice) {
	m.Get(r).AddFlash(notice, noticesKey)
}

// PopNotices returns and discards the pending notices.
func (m *Manager) PopNotices(w http.ResponseWriter, r *http.Request) []Notice {
	s := m.Get(r)
	flashes := s.Flashes(noticesKey)
	if len(flashes) == 0 {
		return nil
	}

	if err := m.Save(w, r, s); err != nil {
		log.Errorf("save session after reading notices: %s", err)
	}

	notices := make([]Notice, 0, len(flashes))
	for _, f := range flashes {
		if notice, ok := f.(Notice); ok {
			notices = append(notices, notice)
		}
	}
	return notices
}

// IsLoggedIn reports the presence of the logged in flag.
func IsLoggedIn(s *sessions.Session) bool {
	_, ok := s.Values[loggedInKey]
	return ok
}

func Username(s *sessions.Session) string {
	username, _ := s.Values[usernameKey].(string)
	return username
}

func SetLoggedIn(s *sessions.Session, username string) {
	s.Values[loggedInKey] = true
	s.Values[usernameKey] = username
}

// Clear removes all session values, notices included.
func Clear(s *sessions.Session) {
	for k := range s.Values {
		delete(s.Values, k)
	}
}
