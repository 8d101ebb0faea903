//go:build integration_test || all_tests

package internal

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2beens/jaeronautics/internal/config"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	itServerPort = 9000
	itServerHost = "127.0.0.1"

	itAdminUsername = "testadmin"
	itAdminPassword = "testpass"
	itDBName        = "jaeronautics"
)

var itServerEndpoint = fmt.Sprintf("http://%s:%d", itServerHost, itServerPort)

type IntegrationTestSuite struct {
	suite.Suite

	DB          *sql.DB
	redisClient *redis.Client
	dockerPool  *dockertest.Pool
	server      *Server
	teardown    []func()

	memberNames []string
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	s.teardown = make([]func(), 0)

	var err error
	s.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}
	if err = s.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}

	redisPort, err := s.redisSetup(ctx)
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup redis: %s", err)
	}

	pgPort, err := s.postgresSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup postgres: %s", err)
	}

	s.server, err = NewServer(ctx, NewServerParams{
		Config: getTestConfig(redisPort, pgPort),
		Secrets: &config.Secrets{
			AdminUsername: itAdminUsername,
			AdminPassword: itAdminPassword,
			SecretKey:     "integration-test-secret-key-0123",
		},
		VersionInfo: "test-version-info",
	})
	if err != nil {
		s.cleanup()
		log.Fatalf("new server: %s", err)
	}
	s.server.Serve()

	if err := s.dockerPool.Retry(func() error {
		resp, err := http.Get(itServerEndpoint + "/login")
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}); err != nil {
		s.cleanup()
		log.Fatalf("server not up: %s", err)
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			fmt.Printf(" --> test suite db close error: %s\n", err)
		}
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.server != nil {
		if err := s.server.GracefulShutdown(); err != nil {
			fmt.Printf(" --> test suite server shutdown error: %s\n", err)
		}
	}
	for _, teardown := range s.teardown {
		teardown()
	}
}

func getTestConfig(redisPort, postgresPort string) *config.Config {
	return &config.Config{
		Environment:           config.EnvDevelopment,
		Host:                  itServerHost,
		Port:                  itServerPort,
		RequestTimeout:        10 * time.Second,
		IdleTimeout:           2 * time.Second,
		PrometheusMetricsHost: "127.0.0.1",
		PrometheusMetricsPort: "9091",
		DBHost:                "localhost",
		DBPort:                postgresPort,
		DBUser:                "postgres",
		DBName:                itDBName,
		DBConnectTimeout:      5 * time.Second,
		SessionStore:          config.SessionStoreRedis,
		SessionCookieName:     "session",
		SessionTTL:            time.Hour,
		RedisHost:             "localhost",
		RedisPort:             redisPort,
	}
}

func (s *IntegrationTestSuite) redisSetup(ctx context.Context) (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %w", err)
	}
	s.teardown = append(s.teardown, func() {
		if err := redisResource.Close(); err != nil {
			fmt.Printf("redis teardown: %s\n", err)
		}
	})

	redisPort := redisResource.GetPort("6379/tcp")
	s.redisClient = redis.NewClient(&redis.Options{Addr: "localhost:" + redisPort})
	if err := s.dockerPool.Retry(func() error {
		return s.redisClient.Ping(ctx).Err()
	}); err != nil {
		return "", fmt.Errorf("connect to redis: %w", err)
	}

	return redisPort, nil
}

func (s *IntegrationTestSuite) postgresSetup() (string, error) {
	pgResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=" + itDBName,
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return "", fmt.Errorf("dockerpool run postgres: %w", err)
	}
	s.teardown = append(s.teardown, func() {
		if err := pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	})

	pgPort := pgResource.GetPort("5432/tcp")
	dsn := fmt.Sprintf("postgres://postgres@localhost:%s/%s?sslmode=disable", pgPort, itDBName)

	if err := s.dockerPool.Retry(func() error {
		var err error
		s.DB, err = sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		return s.DB.Ping()
	}); err != nil {
		return "", fmt.Errorf("connect to db: %w", err)
	}

	if _, err := s.DB.Exec(initSQL); err != nil {
		return "", fmt.Errorf("run init script: %w", err)
	}

	// inserted in descending id order, listed ascending
	for id := 5; id >= 1; id-- {
		name := gofakeit.Name()
		if _, err := s.DB.Exec(
			`INSERT INTO members (id, name, email, joined_at) VALUES ($1, $2, $3, $4)`,
			id, name, gofakeit.Email(), gofakeit.Date(),
		); err != nil {
			return "", fmt.Errorf("insert member: %w", err)
		}
		s.memberNames = append([]string{name}, s.memberNames...)
	}

	return pgPort, nil
}

const initSQL = `
CREATE TABLE public.members
(
    id        INTEGER PRIMARY KEY,
    name      VARCHAR NOT NULL,
    email     VARCHAR,
    joined_at TIMESTAMPTZ
);

ALTER TABLE public.members OWNER TO postgres;
`

func (s *IntegrationTestSuite) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *IntegrationTestSuite) do(client *http.Client, method, path string, form url.Values) (*http.Response, string) {
	t := s.T()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, itServerEndpoint+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(respBody)
}

func (s *IntegrationTestSuite) TestMembers_NotLoggedIn() {
	t := s.T()
	client := s.newClient()

	resp, _ := s.do(client, http.MethodGet, "/members", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := s.do(client, http.MethodGet, "/login", nil)
	assert.Contains(t, body, "Please log in to access this page.")
}

func (s *IntegrationTestSuite) TestLogin_ListMembers_Logout() {
	t := s.T()
	client := s.newClient()

	resp, _ := s.do(client, http.MethodPost, "/login", url.Values{
		"username": {itAdminUsername},
		"password": {itAdminPassword},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/members", resp.Header.Get("Location"))

	// values live in redis, the cookie only carries the session id
	keys, err := s.redisClient.Keys(context.Background(), "jaeronautics-session||*").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, keys)

	resp, body := s.do(client, http.MethodGet, "/members", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Successfully logged in!")
	assert.Contains(t, body, fmt.Sprintf("%d members", len(s.memberNames)))

	lastIdx := -1
	for _, name := range s.memberNames {
		idx := strings.Index(body, template.HTMLEscapeString(name))
		require.True(t, idx > lastIdx, "member %q out of order", name)
		lastIdx = idx
	}

	resp, _ = s.do(client, http.MethodGet, "/", nil)
	assert.Equal(t, "/members", resp.Header.Get("Location"))

	resp, _ = s.do(client, http.MethodGet, "/logout", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	resp, _ = s.do(client, http.MethodGet, "/logout", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = s.do(client, http.MethodGet, "/members", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func (s *IntegrationTestSuite) TestLogin_WrongPassword() {
	t := s.T()
	client := s.newClient()

	resp, body := s.do(client, http.MethodPost, "/login", url.Values{
		"username": {itAdminUsername},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")
}

func (s *IntegrationTestSuite) TestNotFound() {
	resp, body := s.do(s.newClient(), http.MethodGet, "/does-not-exist", nil)
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)
	assert.Contains(s.T(), body, "404 - Page Not Found")
}

func (s *IntegrationTestSuite) TestMetricsEndpoint() {
	resp, err := http.Get("http://127.0.0.1:9091/metrics")
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(s.T(), string(body), "jaeronautics_main_request")
	assert.Contains(s.T(), string(body), "pgxpool_")
}
