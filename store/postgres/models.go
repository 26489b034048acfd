package postgres

import (
	"encoding/json"

	"github.com/xraph/grove"
)

type stateModel struct {
	grove.BaseModel `grove:"table:coin_state"`

	Key   string `grove:"state_key,pk"`
	Value []byte `grove:"state_value"`
}

// commitModel is never stored: a BEFORE INSERT trigger consumes the row.
type commitModel struct {
	grove.BaseModel `grove:"table:coin_state_commits"`

	ID     string          `grove:"commit_id,pk"`
	Reads  json.RawMessage `grove:"reads,type:jsonb"`
	Ranges json.RawMessage `grove:"ranges,type:jsonb"`
	Writes json.RawMessage `grove:"writes,type:jsonb"`
}
