package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	contextKeyAppSlug contextKey = "app_slug"

	appSlugURLParam = "slug"
	indexURLParam   = "index"
)

func getAppSlug(r *http.Request) string {
	slug, _ := r.Context().Value(contextKeyAppSlug).(string)
	return slug
}

// appSlugContext stores the app slug URL parameter on the request context.
func appSlugContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		var slug string

		if slug = chi.URLParam(r, appSlugURLParam); slug == "" {
			httpWriteResponseError(w, NewResponseError(errors.New("app slug is required"), http.StatusBadRequest))
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyAppSlug, slug)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getIndexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, indexURLParam)

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewResponseError(fmt.Errorf("invalid index %q", raw), http.StatusBadRequest)
	}
	return index, nil
}
