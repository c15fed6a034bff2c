package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
)

const (
	eventsKeepAliveInterval = 15 * time.Second

	// eventsWriteTimeout bounds each write to an events client.
	eventsWriteTimeout = 10 * time.Second
)

type eventsEndpoint struct {
	logger *zap.Logger
	bus    *events.Bus
}

// stream writes the events of the app slug as server-sent events until the
// client goes away.
func (e eventsEndpoint) stream(w http.ResponseWriter, r *http.Request) {

	appSlug := getAppSlug(r)
	rc := http.NewResponseController(w)

	eventCh, err := e.bus.SubscribeAll(r.Context(), appSlug)
	if err != nil {
		httpWriteResponseError(w, NewResponseError(err, http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := e.write(rc, func() error { w.WriteHeader(http.StatusOK); return nil }); err != nil {
		e.logger.Error("failed to start event stream", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(eventsKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		var err error

		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			err = e.write(rc, func() error {
				_, err := fmt.Fprint(w, ": keep-alive\n\n")
				return err
			})
		case event, ok := <-eventCh:
			if !ok {
				e.logger.Debug("event subscription closed", zap.String("app_slug", appSlug))
				return
			}
			data, marshalErr := json.Marshal(event)
			if marshalErr != nil {
				e.logger.Error("failed to marshal event", zap.Error(marshalErr))
				continue
			}
			err = e.write(rc, func() error {
				_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
				return err
			})
		}

		if err != nil {
			e.logger.Debug("event stream write failed", zap.String("app_slug", appSlug), zap.Error(err))
			return
		}
	}
}

// write runs fn and flushes under a fresh write deadline.
func (e eventsEndpoint) write(rc *http.ResponseController, fn func() error) error {
	err := rc.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return rc.Flush()
}
