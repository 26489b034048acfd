// Package commit encodes a kv read-set and write batch as the JSON documents
// the grove SQL backends insert into their commit table. A trigger on that
// table validates the reads and applies the writes within the INSERT.
package commit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xraph/coinledger/kv"
)

// ConflictMessage is the error text the commit triggers raise when a read
// no longer holds.
const ConflictMessage = "coin_state: read conflict"

type read struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type rangeRead struct {
	Prefix  string  `json:"prefix"`
	Entries []entry `json:"entries"`
}

type write struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Delete bool   `json:"delete"`
}

// Payload is one encoded commit. Values are hex strings so the documents
// stay valid JSON for any byte content.
type Payload struct {
	Reads  json.RawMessage
	Ranges json.RawMessage
	Writes json.RawMessage
}

// Encode builds the payload for rs and writes. Writes are compacted to the
// last write per key since the triggers apply them as a set.
func Encode(rs kv.ReadSet, writes []kv.Write) (Payload, error) {
	reads := make([]read, len(rs.Reads))
	for i, r := range rs.Reads {
		reads[i] = read{Key: r.Key, Value: hex.EncodeToString(r.Value), Found: r.Found}
	}

	ranges := make([]rangeRead, len(rs.Ranges))
	for i, rr := range rs.Ranges {
		entries := make([]entry, len(rr.Entries))
		for j, e := range rr.Entries {
			entries[j] = entry{Key: e.Key, Value: hex.EncodeToString(e.Value)}
		}
		ranges[i] = rangeRead{Prefix: rr.Prefix, Entries: entries}
	}

	compacted := kv.Compact(writes)
	ws := make([]write, len(compacted))
	for i, w := range compacted {
		ws[i] = write{Key: w.Key, Delete: w.Delete}
		if !w.Delete {
			ws[i].Value = hex.EncodeToString(w.Value)
		}
	}

	var p Payload
	var err error
	if p.Reads, err = json.Marshal(reads); err != nil {
		return Payload{}, fmt.Errorf("commit: encode reads: %w", err)
	}
	if p.Ranges, err = json.Marshal(ranges); err != nil {
		return Payload{}, fmt.Errorf("commit: encode ranges: %w", err)
	}
	if p.Writes, err = json.Marshal(ws); err != nil {
		return Payload{}, fmt.Errorf("commit: encode writes: %w", err)
	}
	return p, nil
}

// IsConflict reports whether err is the trigger's read conflict, or a lock
// timeout that aborted the commit before it could run.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, ConflictMessage) ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLSTATE 40001")
}
