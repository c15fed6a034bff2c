package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GitObjectType is the discriminator persisted alongside the associated value
// of a GitReference.
type GitObjectType string

const (
	GitObjectTypeBranch GitObjectType = "branch"
	GitObjectTypeTag    GitObjectType = "tag"
	GitObjectTypeCommit GitObjectType = "commit"
)

func (t GitObjectType) Valid() bool {
	switch t {
	case GitObjectTypeBranch, GitObjectTypeTag, GitObjectTypeCommit:
		return true
	default:
		return false
	}
}

// GitReference describes the source state a build runs from. Exactly one
// variant is active; the value may be empty, which is sent to the CI service
// as-is.
type GitReference struct {
	Type  GitObjectType `json:"type"`
	Value string        `json:"value"`
}

func Branch(name string) GitReference { return GitReference{Type: GitObjectTypeBranch, Value: name} }

func Tag(name string) GitReference { return GitReference{Type: GitObjectTypeTag, Value: name} }

func Commit(hash string) GitReference { return GitReference{Type: GitObjectTypeCommit, Value: hash} }

// JSON returns the key/value projection embedded in the build parameters of a
// trigger request.
func (g GitReference) JSON() map[string]string {
	return map[string]string{string(g.Type): g.Value}
}

// Encode splits the reference into its persisted discriminator and value.
func (g GitReference) Encode() (string, string) {
	return string(g.Type), g.Value
}

// DecodeGitReference rebuilds a reference from its persisted discriminator and
// value.
func DecodeGitReference(objectType, value string) (GitReference, error) {
	t := GitObjectType(objectType)
	if !t.Valid() {
		return GitReference{}, fmt.Errorf("unknown git object type %q", objectType)
	}
	return GitReference{Type: t, Value: value}, nil
}

// ParseGitReference parses the "<type>:<value>" form accepted on the command
// line. A bare value is treated as a branch name.
func ParseGitReference(s string) (GitReference, error) {
	typ, value, found := strings.Cut(s, ":")
	if !found {
		return Branch(s), nil
	}
	return DecodeGitReference(typ, value)
}

func (g GitReference) String() string {
	return fmt.Sprintf("%s:%s", g.Type, g.Value)
}

func (g *GitReference) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ref, err := DecodeGitReference(raw.Type, raw.Value)
	if err != nil {
		return err
	}

	*g = ref
	return nil
}
