package model

import "time"

// Decision MySQL model for the controller_decisions audit table.
// Rows are append-only: created once per evaluation cycle, never updated.
type Decision struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID     string          `gorm:"column:decision_id;type:varchar(64);not null;uniqueIndex:idx_decision_id_unique" json:"decision_id"`
	Timestamp      time.Time       `gorm:"column:timestamp;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_timestamp" json:"timestamp"`
	Observation    JSONDocument    `gorm:"column:observation;type:json" json:"observation"`
	Recommendation JSONDocument    `gorm:"column:recommendation;type:json" json:"recommendation"`
	ActionsTaken   JSONStringArray `gorm:"column:actions_taken;type:json" json:"actions_taken"`
}

// TableName specifies the table name for Decision
func (Decision) TableName() string {
	return "controller_decisions"
}
