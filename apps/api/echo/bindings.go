package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/probestem/probe/core"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	pageSizeParam = "page_size"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=name,-created_at`; a leading "-" sorts descending.
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
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads `?page=2&page_size=20`. Invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	if n, err := strconv.Atoi(ctx.QueryParam(pageParam)); err == nil {
		page.Number = n
	}
	if n, err := strconv.Atoi(ctx.QueryParam(pageSizeParam)); err == nil {
		page.Size = n
	}
	return page.Clean()
}

// queryBool returns true for "1", "t", "true"...
func queryBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}

// queryList reads a comma separated and/or repeated query param, eg. `?status=OPEN,ONGOING&status=CLOSED`.
func queryList(ctx echo.Context, name string) []string {
	var values []string
	for _, v := range ctx.QueryParams()[name] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				values = append(values, s)
			}
		}
	}
	return values
}

// queryTime reads an RFC 3339 time param. A missing param gives the zero time.
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	v := ctx.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, "must be an RFC 3339 date-time")
	}
	return t, nil
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
