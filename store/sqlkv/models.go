package sqlkv

// stateModel is one key/value row of the state table.
type stateModel struct {
	Key   string `gorm:"column:state_key;primaryKey"`
	Value []byte `gorm:"column:state_value;not null"`
}

func (stateModel) TableName() string { return stateTable }

// migrationModel records an applied migration.
type migrationModel struct {
	Version string `gorm:"column:version;primaryKey"`
	Name    string `gorm:"column:name"`
}

func (migrationModel) TableName() string { return migrationsTable }
