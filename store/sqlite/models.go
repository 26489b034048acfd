package sqlite

import "github.com/xraph/grove"

// stateModel holds values hex encoded, so the commit trigger can compare
// them with the hex strings of the commit payload.
type stateModel struct {
	grove.BaseModel `grove:"table:coin_state"`

	Key   string `grove:"state_key,pk"`
	Value string `grove:"state_value"`
}

// commitModel is deleted by its own AFTER INSERT trigger.
type commitModel struct {
	grove.BaseModel `grove:"table:coin_state_commits"`

	ID     string `grove:"commit_id,pk"`
	Reads  string `grove:"reads"`
	Ranges string `grove:"ranges"`
	Writes string `grove:"writes"`
}
