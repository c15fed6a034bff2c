package state

import (
	"errors"

	sharedstate "github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

var (
	// ErrIndexOutOfRange is returned when a workflow id is removed at a
	// position the record does not have. Correct callers never see it.
	ErrIndexOutOfRange = errors.New("workflow index out of range")

	// ErrStoreUnavailable wraps storage I/O failures of a backend.
	ErrStoreUnavailable = errors.New("trigger config store unavailable")
)

// TriggerConfigs is the persistent record of build trigger parameters, keyed by
// app slug. Records are created on first access and never deleted. Mutations
// on the same app slug are serialized and commit fully or not at all.
type TriggerConfigs interface {
	Load(*TriggerConfigsLoadReq) (*TriggerConfigsLoadResp, *ErrorResp)
	List(*TriggerConfigsListReq) (*TriggerConfigsListResp, *ErrorResp)
	AppendWorkflowID(*TriggerConfigsAppendWorkflowIDReq) (*TriggerConfigsAppendWorkflowIDResp, *ErrorResp)
	RemoveWorkflowID(*TriggerConfigsRemoveWorkflowIDReq) (*TriggerConfigsRemoveWorkflowIDResp, *ErrorResp)
	SetAPIToken(*TriggerConfigsSetAPITokenReq) (*TriggerConfigsSetAPITokenResp, *ErrorResp)
	SetGitReference(*TriggerConfigsSetGitReferenceReq) (*TriggerConfigsSetGitReferenceResp, *ErrorResp)
}

type TriggerConfigsLoadReq struct {
	AppSlug string
}

type TriggerConfigsLoadResp struct {
	Config *sharedstate.TriggerConfig
}

type TriggerConfigsListReq struct{}

type TriggerConfigsListResp struct {
	Configs []*sharedstate.TriggerConfigStub
}

type TriggerConfigsAppendWorkflowIDReq struct {
	AppSlug    string
	WorkflowID string
}

type TriggerConfigsAppendWorkflowIDResp struct {
	Config *sharedstate.TriggerConfig
}

type TriggerConfigsRemoveWorkflowIDReq struct {
	AppSlug string
	Index   int
}

type TriggerConfigsRemoveWorkflowIDResp struct {
	Config *sharedstate.TriggerConfig
}

type TriggerConfigsSetAPITokenReq struct {
	AppSlug  string
	APIToken *string
}

type TriggerConfigsSetAPITokenResp struct {
	Config *sharedstate.TriggerConfig
}

type TriggerConfigsSetGitReferenceReq struct {
	AppSlug      string
	GitReference sharedstate.GitReference
}

type TriggerConfigsSetGitReferenceResp struct {
	Config *sharedstate.TriggerConfig
}

// NewIndexOutOfRangeResp builds the error returned for a removal past the end
// of the workflow id list.
func NewIndexOutOfRangeResp() *ErrorResp {
	return NewErrorResp(ErrIndexOutOfRange, 400)
}

// NewStoreUnavailableResp wraps a backend I/O failure.
func NewStoreUnavailableResp(err error) *ErrorResp {
	return NewErrorResp(errors.Join(ErrStoreUnavailable, err), 503)
}

// RemoveAt removes the element at index, reporting false when the index is out
// of range. The input slice is not modified.
func RemoveAt(ids []string, index int) ([]string, bool) {
	if index < 0 || index >= len(ids) {
		return ids, false
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:index]...)
	return append(out, ids[index+1:]...), true
}
