package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// UserFilter binds the admin user listing query params.
type UserFilter struct {
	user.QueryFilter
}

func (uf *UserFilter) Bind(ctx echo.Context) {
	uf.Search = ctx.QueryParam("search")
	for _, role := range ctx.QueryParams()["role"] {
		uf.Roles = append(uf.Roles, strings.Split(role, ",")...)
	}
	uf.IsVerified = boolParam(ctx, "is_verified")
	uf.IsSuspended = boolParam(ctx, "is_suspended")
	uf.CreatedFrom = dateParam(ctx, "created_from")
	uf.CreatedTo = dateParam(ctx, "created_to")
	uf.Clean()
}

// Pagination binds the page and limit query params.
type Pagination struct {
	Page  int
	Limit int
}

func (p *Pagination) Bind(ctx echo.Context) {
	p.Page = intParam(ctx, "page")
	p.Limit = intParam(ctx, "limit")
}

func intParam(ctx echo.Context, name string) int {
	n, _ := strconv.Atoi(ctx.QueryParam(name))
	return n
}

func boolParam(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &b
}

func dateParam(ctx echo.Context, name string) time.Time {
	val := ctx.QueryParam(name)
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02", val)
	return t
}
