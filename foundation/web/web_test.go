package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/validate"
	"github.com/ardanlabs/crossledger/foundation/web"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name" validate:"required"`
}

func TestHandle(t *testing.T) {
	var order []string
	mw := func(tag string) web.Middleware {
		return func(next web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, tag)
				return next(ctx, w, r)
			}
		}
	}

	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown, mw("app"))

	app.Handle(http.MethodPost, "v1", "/echo/:id", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		v, err := web.GetValues(ctx)
		if err != nil {
			return err
		}
		require.NotEmpty(t, v.TraceID)

		var p payload
		if err := web.Decode(r, &p); err != nil {
			return web.Respond(ctx, w, validate.GetFieldErrors(err).Fields(), http.StatusBadRequest)
		}

		resp := map[string]string{"id": web.Param(r, "id"), "name": p.Name}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}, mw("route"))

	t.Run("ok", func(t *testing.T) {
		order = nil
		r := httptest.NewRequest(http.MethodPost, "/v1/echo/7", strings.NewReader(`{"name":"bill"}`))
		w := httptest.NewRecorder()
		app.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, []string{"app", "route"}, order)

		var got map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Equal(t, map[string]string{"id": "7", "name": "bill"}, got)
	})

	t.Run("invalid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/v1/echo/7", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		app.ServeHTTP(w, r)

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "name")
	})

	t.Run("shutdown", func(t *testing.T) {
		app.Handle(http.MethodGet, "", "/fail", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return web.NewShutdownError("integrity")
		})

		r := httptest.NewRequest(http.MethodGet, "/fail", nil)
		app.ServeHTTP(httptest.NewRecorder(), r)

		require.Len(t, shutdown, 1)
	})
}
