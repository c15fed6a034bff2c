package helper

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ryanuber/columnize"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

func FormatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "
	return columnize.Format(in, columnConf)
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}

func FormatError(cliMsg string, err error) string {

	var (
		code     int
		respErr  *api.ResponseError
		stateErr *serverstate.ErrorResp
		urlErr   *url.Error
	)

	switch {
	case errors.As(err, &respErr):
		code = respErr.StatusCode()
	case errors.As(err, &stateErr):
		code = stateErr.StatusCode()
	case errors.As(err, &urlErr):
		code = 500
	default:
		code = 400
	}

	return FormatKV([]string{
		fmt.Sprintf("Description|%s", cliMsg),
		fmt.Sprintf("Error|%s", err),
		fmt.Sprintf("Code|%v", code),
	})
}
