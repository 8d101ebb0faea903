package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type NewDBPoolParams struct {
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	ConnectTimeout time.Duration
	TracingEnabled bool
}

// ConnString builds the postgres URL, escaping user credentials.
func (p NewDBPoolParams) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.DBHost, p.DBPort),
		Path:   "/" + p.DBName,
	}
	switch {
	case p.DBUser != "" && p.DBPassword != "":
		u.User = url.UserPassword(p.DBUser, p.DBPassword)
	case p.DBUser != "":
		u.User = url.User(p.DBUser)
	case p.DBPassword != "":
		log.Warnln("db password is set but db user is empty, password will not be used")
	}
	return u.String()
}

// NewDBPool creates the pool without connecting; connections are made
// (and may fail) on first Acquire.
func NewDBPool(ctx context.Context, params NewDBPoolParams) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if params.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = params.ConnectTimeout
	}

	if params.TracingEnabled {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return db, nil
}
