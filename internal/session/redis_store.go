package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/2beens/jaeronautics/pkg"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionKeyPrefix = "jaeronautics-session||"
	sessionIDLength  = 40
)

var _ sessions.Store = (*RedisStore)(nil)

// RedisStore keeps session values in redis; the cookie only carries the
// signed session id.
type RedisStore struct {
	redisClient redis.Cmdable
	codecs      []securecookie.Codec
	serializer  securecookie.GobEncoder
	ttl         time.Duration
	Options     *sessions.Options
	// ability to inject random string generator func for session ids (for unit testing)
	RandStringFunc func(s int) (string, error)
}

func NewRedisStore(redisClient redis.Cmdable, ttl time.Duration, keyPairs ...[]byte) *RedisStore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, codec := range codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(int(ttl.Seconds()))
		}
	}

	return &RedisStore{
		redisClient: redisClient,
		codecs:      codecs,
		ttl:         ttl,
		Options: &sessions.Options{
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		RandStringFunc: pkg.GenerateRandomString,
	}
}

func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		// no cookie, new session
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, cookie.Value, &id, s.codecs...); err != nil {
		return session, fmt.Errorf("decode session cookie: %w", err)
	}

	found, err := s.load(r.Context(), id, session)
	if err != nil {
		return session, fmt.Errorf("load session: %w", err)
	}
	if found {
		session.ID = id
		session.IsNew = false
	}

	return session, nil
}

func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options != nil && session.Options.MaxAge < 0 {
		if err := s.Delete(ctx, session.ID); err != nil {
			return err
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := s.RandStringFunc(sessionIDLength)
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		session.ID = id
	}

	data, err := s.serializer.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}

	if err := s.redisClient.Set(ctx, sessionKeyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}

	options := session.Options
	if options == nil {
		options = s.Options
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, options))
	return nil
}

// Delete removes the stored session values for the given id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.redisClient.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string, session *sessions.Session) (bool, error) {
	data, err := s.redisClient.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired or deleted
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.serializer.Deserialize(data, &session.Values); err != nil {
		return false, fmt.Errorf("deserialize session: %w", err)
	}
	return true, nil
}
