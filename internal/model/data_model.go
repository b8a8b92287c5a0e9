package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CharacterID identifies a record. It is encoded as a JSON number but also
// decodes from a decimal string so files written with string ids still load.
type CharacterID int64

func (id *CharacterID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid character id %q: %w", s, err)
		}
		*id = CharacterID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid character id %s: %w", data, err)
	}
	*id = CharacterID(v)
	return nil
}

// Character is a single record of the collection.
type Character struct {
	ID       CharacterID `json:"id"`
	Name     string      `json:"name"`
	RealName string      `json:"realName"`
	Universe string      `json:"universe"`
}

// CharacterInput carries the client supplied fields of a create or update.
// Blank fields count as absent.
type CharacterInput struct {
	Name     string `json:"name"`
	RealName string `json:"realName"`
	Universe string `json:"universe"`
}

// Normalized returns a copy with surrounding whitespace removed from every field.
func (in CharacterInput) Normalized() CharacterInput {
	return CharacterInput{
		Name:     strings.TrimSpace(in.Name),
		RealName: strings.TrimSpace(in.RealName),
		Universe: strings.TrimSpace(in.Universe),
	}
}

// Validate checks the fields required on create.
func (in CharacterInput) Validate() error {
	n := in.Normalized()
	var missing []string
	if n.Name == "" {
		missing = append(missing, "name")
	}
	if n.RealName == "" {
		missing = append(missing, "realName")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Merge overwrites the fields of c that are present in in.
func (c Character) Merge(in CharacterInput) Character {
	n := in.Normalized()
	if n.Name != "" {
		c.Name = n.Name
	}
	if n.RealName != "" {
		c.RealName = n.RealName
	}
	if n.Universe != "" {
		c.Universe = n.Universe
	}
	return c
}

// Collection is the ordered set of records persisted as one unit.
type Collection []Character

// Clone returns an independent copy of the collection.
func (c Collection) Clone() Collection {
	if c == nil {
		return Collection{}
	}
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// File is the persisted document shape.
type File struct {
	Characters Collection `json:"characters"`
}

type OpsType byte

const (
	CREATE OpsType = iota + 1
	UPDATE
	DELETE
)

func (op OpsType) String() string {
	switch op {
	case CREATE:
		return "create"
	case UPDATE:
		return "update"
	case DELETE:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", byte(op))
	}
}

// MarshalText encodes the op by name.
func (op OpsType) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// Mutation is an applied change as recorded in the journal. Record holds the
// state after a create or update and the removed record for a delete.
type Mutation struct {
	Sequence uint64    `json:"sequence"`
	Op       OpsType   `json:"op"`
	At       time.Time `json:"at"`
	Record   Character `json:"record"`
}
