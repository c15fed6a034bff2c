package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func newRouter(req *ServerReq) *chi.Mux {

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLogMiddleware(req.Logger, req.HTTPAccessLogLevel))

	apps := appsEndpoint{state: req.State}

	r.Route("/v1/apps", func(r chi.Router) {
		r.Get("/", apps.list)

		r.Route("/{"+appSlugURLParam+"}", func(r chi.Router) {
			r.Use(appSlugContext)

			r.Mount("/trigger-config", apps.triggerConfigRoutes())
			r.Mount("/builds", buildsEndpoint{
				trigger:    req.Trigger,
				buildLists: req.BuildLists,
				bus:        req.Bus,
			}.routes())
			r.Get("/events", eventsEndpoint{
				logger: req.Logger,
				bus:    req.Bus,
			}.stream)
			r.Post("/webhooks/github", webhooksEndpoint{
				trigger: req.Trigger,
			}.github)
		})
	})

	return r
}
