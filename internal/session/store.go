package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/sessions"
)

const (
	BackendCookie = "cookie"
	BackendRedis  = "redis"
)

var ErrUnknownBackend = errors.New("unknown session backend")

type StoreParams struct {
	Backend      string
	SecretKey    []byte
	CookieSecure bool
	TTL          time.Duration
	RedisClient  *redis.Client
}

// NewStore creates the session store for the configured backend. Session
// cookies live for the browser session; TTL bounds how long a signed cookie
// (or the redis entry behind it) stays valid.
func NewStore(params StoreParams) (sessions.Store, error) {
	if len(params.SecretKey) == 0 {
		return nil, errors.New("session secret key empty")
	}

	switch params.Backend {
	case BackendCookie:
		store := sessions.NewCookieStore(params.SecretKey)
		store.MaxAge(int(params.TTL.Seconds()))
		store.Options = cookieOptions(params.CookieSecure)
		return store, nil
	case BackendRedis:
		if params.RedisClient == nil {
			return nil, errors.New("redis session backend without redis client")
		}
		store := NewRedisStore(params.RedisClient, params.TTL, params.SecretKey)
		store.Options = cookieOptions(params.CookieSecure)
		return store, nil
	default:
		return nil, ErrUnknownBackend
	}
}

func cookieOptions(secure bool) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   0,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
