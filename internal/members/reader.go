package members

import (
	"context"
	"errors"

	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/internal/telemetry/metrics"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"
	"github.com/2beens/jaeronautics/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=reader.go -destination=repo_mock.go -package=members

type Repository interface {
	List(ctx context.Context) (*Table, error)
}

// Result is what the members page gets. On any failure the table is empty,
// Errored is set and Notice explains what went wrong.
type Result struct {
	Table
	Errored bool
	Notice  *session.Notice
}

type Reader struct {
	repo    Repository
	metrics *metrics.Manager
}

func NewReader(repo Repository, metrics *metrics.Manager) *Reader {
	return &Reader{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *Reader) ListMembers(ctx context.Context) Result {
	ctx, span := tracing.GlobalTracer.Start(ctx, "membersReader.list")
	defer span.End()

	table, err := r.repo.List(ctx)
	switch {
	case err == nil:
		if table == nil {
			t := emptyTable()
			table = &t
		}
		r.countRead("ok")
		span.SetAttributes(attribute.Int("members.count", len(table.Rows)))
		span.SetStatus(codes.Ok, "ok")
		return Result{Table: *table}

	case errors.Is(err, ErrConnection):
		log.Errorf("members, database connection error: %s", err)
		r.countRead("connection_error")
		span.SetStatus(codes.Error, "connection-error")
		span.RecordError(err)
		notice := session.Danger("Database connection failed.")
		return Result{Table: emptyTable(), Errored: true, Notice: &notice}

	default:
		log.Errorf("error fetching members: %s", err)
		if pkg.IsUndefinedTableError(err) {
			log.Warnln("members table does not exist in the configured database, check DB_NAME")
		} else if pkg.IsInsufficientPrivilegeError(err) {
			log.Warnln("db user is not allowed to read the members table, check DB_USER")
		}
		r.countRead("query_error")
		span.SetStatus(codes.Error, "query-error")
		span.RecordError(err)
		notice := session.Danger("Error fetching members: " + err.Error())
		return Result{Table: emptyTable(), Errored: true, Notice: &notice}
	}
}

func (r *Reader) countRead(result string) {
	if r.metrics != nil {
		r.metrics.CounterMembersReads.WithLabelValues(result).Inc()
	}
}
