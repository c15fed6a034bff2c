package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	// TypeAlertMessage carries a human readable message for the user. Failed
	// trigger and abort attempts are reported only through this event.
	TypeAlertMessage Type = "alert_message"

	// TypeBuildTriggered is published once per trigger attempt that the CI
	// service accepted. It is the only signal that the build list is stale.
	TypeBuildTriggered Type = "build_triggered"

	// TypeBuildAborted is published when the CI service confirmed an abort.
	TypeBuildAborted Type = "build_aborted"
)

// Topics lists every topic the bus carries.
var Topics = []Type{TypeAlertMessage, TypeBuildTriggered, TypeBuildAborted}

type Event struct {
	Type      Type      `json:"type"`
	AppSlug   string    `json:"app_slug"`
	AttemptID ulid.ULID `json:"attempt_id,omitzero"`
	Time      time.Time `json:"time"`

	// Message is set on alert events.
	Message string `json:"message,omitempty"`

	// Failure marks alerts reporting an error rather than a success.
	Failure bool `json:"failure,omitempty"`

	// Body holds the raw CI service response of a triggered build, kept for
	// diagnostic display.
	Body string `json:"body,omitempty"`

	BuildNumber int `json:"build_number,omitempty"`
}

func NewAlert(appSlug, msg string, failure bool) *Event {
	return &Event{
		Type:    TypeAlertMessage,
		AppSlug: appSlug,
		Time:    time.Now().UTC(),
		Message: msg,
		Failure: failure,
	}
}

func NewBuildTriggered(appSlug string, attemptID ulid.ULID, body string) *Event {
	return &Event{
		Type:      TypeBuildTriggered,
		AppSlug:   appSlug,
		AttemptID: attemptID,
		Time:      time.Now().UTC(),
		Body:      body,
	}
}

func NewBuildAborted(appSlug string, buildNumber int) *Event {
	return &Event{
		Type:        TypeBuildAborted,
		AppSlug:     appSlug,
		Time:        time.Now().UTC(),
		BuildNumber: buildNumber,
	}
}
