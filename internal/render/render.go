package render

import (
	"bytes"
	"database/sql/driver"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/pkg"

	"github.com/jackc/pgx/v5/pgtype"
	log "github.com/sirupsen/logrus"
)

const (
	PageLogin       = "login"
	PageMembers     = "members"
	PageNotFound    = "404"
	PageServerError = "500"
)

var pageTitles = map[string]string{
	PageLogin:       "Login",
	PageMembers:     "Members",
	PageNotFound:    "Page Not Found",
	PageServerError: "Server Error",
}

//go:embed templates/*.html
var templatesFS embed.FS

type NoticePopper interface {
	PopNotices(w http.ResponseWriter, r *http.Request) []session.Notice
}

// PageData is what every template gets; page specific data is in Data.
type PageData struct {
	Title    string
	Notices  []session.Notice
	Username string
	LoggedIn bool
	Data     any
}

type Renderer struct {
	pages   map[string]*template.Template
	notices NoticePopper
}

func New(notices NoticePopper) (*Renderer, error) {
	funcs := template.FuncMap{
		"cell": FormatCell,
	}

	pages := make(map[string]*template.Template, len(pageTitles))
	for page := range pageTitles {
		t, err := template.New(page).Funcs(funcs).ParseFS(
			templatesFS,
			"templates/layout.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse template [%s]: %w", page, err)
		}
		pages[page] = t
	}

	return &Renderer{
		pages:   pages,
		notices: notices,
	}, nil
}

// HTML renders the page, consuming the pending session notices.
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	t, ok := rd.pages[page]
	if !ok {
		log.Errorf("render: unknown page [%s]", page)
		rd.ServerError(w, r)
		return
	}

	pageData := PageData{
		Title: pageTitles[page],
		Data:  data,
	}
	if rd.notices != nil {
		pageData.Notices = rd.notices.PopNotices(w, r)
	}
	pageData.Username, pageData.LoggedIn = session.UsernameFromContext(r.Context())

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pageData); err != nil {
		log.Errorf("render page [%s]: %s", page, err)
		rd.ServerError(w, r)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.HTML, buf.Bytes(), status)
}

func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.HTML(w, r, http.StatusNotFound, PageNotFound, nil)
}

// ServerError renders the 500 page. It does not touch the session, the
// failure might be coming from there.
func (rd *Renderer) ServerError(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	err := rd.pages[PageServerError].ExecuteTemplate(&buf, "layout", PageData{
		Title: pageTitles[PageServerError],
	})
	if err != nil {
		log.Errorf("render server error page: %s", err)
		pkg.WriteResponse(w, pkg.ContentType.Text, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.HTML, buf.Bytes(), http.StatusInternalServerError)
}

// FormatCell renders a single member column value as text.
func FormatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case [16]byte:
		// uuid columns
		return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
	case pgtype.Numeric:
		return formatNumeric(v)
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil || dv == nil {
			return ""
		}
		if _, same := dv.(driver.Valuer); same {
			return fmt.Sprint(dv)
		}
		return FormatCell(dv)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatNumeric(n pgtype.Numeric) string {
	switch {
	case !n.Valid:
		return ""
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	case n.Int == nil:
		return "0"
	}

	digits := n.Int.String()
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	if n.Exp >= 0 {
		return sign + digits + strings.Repeat("0", int(n.Exp))
	}

	scale := int(-n.Exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:]
}
