// Package id mints the TypeID identifiers carried by ledger events and by
// commit rows of the SQL backends. An ID prints as "prefix_suffix" with a
// UUIDv7 suffix, so IDs of one prefix sort by creation time.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of thing an ID identifies.
type Prefix string

const (
	PrefixEvent     Prefix = "cevt" // one emitted event
	PrefixOperation Prefix = "cop"  // one service call, shared by its events
	PrefixCommit    Prefix = "ccmt" // one SQL commit row
)

// ID is a TypeID. The zero value is the nil ID and encodes as "".
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

func generate(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: prefix %q rejected: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

// NewEventID returns a fresh event ID.
func NewEventID() ID { return generate(PrefixEvent) }

// NewOperationID returns a fresh operation ID.
func NewOperationID() ID { return generate(PrefixOperation) }

// NewCommitID returns a fresh commit ID.
func NewCommitID() ID { return generate(PrefixCommit) }

// Parse decodes s. The empty string is an error; use the zero ID for "none".
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("id: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the prefix, or "" for the nil ID.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText accepts "" as the nil ID.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = ID{}
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
