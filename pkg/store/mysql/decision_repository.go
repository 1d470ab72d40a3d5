package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"syscontrol/pkg/store/mysql/model"

	"github.com/google/uuid"
)

// DecisionRepository handles audit decision persistence in MySQL.
type DecisionRepository struct {
	ds *Datastore
}

// NewDecisionRepository creates a new decision repository.
func NewDecisionRepository(ds *Datastore) *DecisionRepository {
	return &DecisionRepository{ds: ds}
}

// Record serializes one cycle's observation, recommendation and action list
// into a Decision row and appends it.
func (r *DecisionRepository) Record(ctx context.Context, observation, recommendation interface{}, actionsTaken []string) (*model.Decision, error) {
	obsJSON, err := json.Marshal(observation)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize observation: %w", err)
	}
	recJSON, err := json.Marshal(recommendation)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize recommendation: %w", err)
	}

	decision := &model.Decision{
		DecisionID:     uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Observation:    model.JSONDocument(obsJSON),
		Recommendation: model.JSONDocument(recJSON),
		ActionsTaken:   model.JSONStringArray(actionsTaken),
	}

	if err := r.ds.DB(ctx).Create(decision).Error; err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}
	return decision, nil
}

// ListRecent retrieves the most recent decisions in reverse-chronological
// order, for audit consumers.
func (r *DecisionRepository) ListRecent(ctx context.Context, limit int) ([]*model.Decision, error) {
	if limit <= 0 {
		limit = 100
	}

	var decisions []*model.Decision
	err := r.ds.DB(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent decisions: %w", err)
	}
	return decisions, nil
}

// ListByTimeRange retrieves decisions within a time range.
func (r *DecisionRepository) ListByTimeRange(ctx context.Context, startTime, endTime time.Time, limit int) ([]*model.Decision, error) {
	if limit <= 0 {
		limit = 1000
	}

	var decisions []*model.Decision
	err := r.ds.DB(ctx).
		Where("timestamp >= ? AND timestamp <= ?", startTime, endTime).
		Order("timestamp DESC").
		Limit(limit).
		Find(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions by time range: %w", err)
	}
	return decisions, nil
}
