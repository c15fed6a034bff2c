package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
)

func httpWriteResponse(w http.ResponseWriter, obj any) {

	code := http.StatusInternalServerError

	if respMeta, ok := obj.(internalResponseMeta); ok {
		code = respMeta.StatusCode()
	}

	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}

	objBytes, err := json.Marshal(obj)
	if err != nil {
		httpWriteResponseError(w, NewResponseError(fmt.Errorf("failed to marshal JSON response: %w", err), http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(objBytes)
}

// httpWriteResponseError writes err as a JSON error body. Store errors keep
// their status code and anything without one becomes a 500.
func httpWriteResponseError(w http.ResponseWriter, err error) {

	var (
		respErr  *ResponseError
		stateErr *state.ErrorResp
	)

	switch {
	case errors.As(err, &respErr):
	case errors.As(err, &stateErr):
		respErr = NewResponseError(stateErr.Err(), stateErr.StatusCode())
	default:
		respErr = NewResponseError(err, http.StatusInternalServerError)
	}

	objBytes, marshalErr := json.Marshal(respErr)
	if marshalErr != nil {
		http.Error(w, respErr.Msg, respErr.Code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(respErr.Code)
	_, _ = w.Write(objBytes)
}

type internalResponseMeta interface {
	StatusCode() int
}

type internalResponseMetaImpl struct {
	code int
}

func newInternalResponseMeta(c int) internalResponseMetaImpl {
	return internalResponseMetaImpl{
		code: c,
	}
}

func (r internalResponseMetaImpl) StatusCode() int {
	return r.code
}

type ResponseError struct {
	ErrorBody `json:"error"`
}

type ErrorBody struct {
	Msg  string `json:"message"`
	Code int    `json:"code"`
}

func NewResponseError(e error, c int) *ResponseError {
	return &ResponseError{
		ErrorBody: ErrorBody{
			Msg:  e.Error(),
			Code: c,
		},
	}
}

func (e *ResponseError) StatusCode() int { return e.Code }

func (e *ResponseError) Error() string { return e.Msg }

func (e *ResponseError) String() string { return e.Msg }
