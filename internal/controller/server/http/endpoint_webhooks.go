package http

import (
	"net/http"

	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger"
)

type webhooksEndpoint struct {
	trigger *trigger.Handler
}

func (wh webhooksEndpoint) github(w http.ResponseWriter, r *http.Request) {
	wh.trigger.HandleGitHubWebhook(w, r, getAppSlug(r))
}
