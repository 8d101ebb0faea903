package members

import (
	"context"
	"net/http"

	"github.com/2beens/jaeronautics/internal/render"
	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

type membersLister interface {
	ListMembers(ctx context.Context) Result
}

type pageRenderer interface {
	HTML(w http.ResponseWriter, r *http.Request, status int, page string, data any)
}

type noticeFlasher interface {
	Flash(r *http.Request, notice session.Notice)
}

type Handler struct {
	reader   membersLister
	renderer pageRenderer
	notices  noticeFlasher
}

func NewHandler(
	reader membersLister,
	renderer pageRenderer,
	notices noticeFlasher,
) *Handler {
	return &Handler{
		reader:   reader,
		renderer: renderer,
		notices:  notices,
	}
}

// HandleList renders the members page. Database failures still render the
// page, with an error notice and no rows.
func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "membersHandler.list")
	defer span.End()
	r = r.WithContext(ctx)

	result := handler.reader.ListMembers(ctx)
	span.SetAttributes(
		attribute.Bool("members.errored", result.Errored),
		attribute.Int("members.count", len(result.Rows)),
	)

	if result.Notice != nil {
		handler.notices.Flash(r, *result.Notice)
	}

	handler.renderer.HTML(w, r, http.StatusOK, render.PageMembers, result)
}
