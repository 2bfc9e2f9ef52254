// Package psql stores queue state in Postgres through gorm, one row per job.
package psql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docbatch/internal/queue"
	"docbatch/internal/repository"
)

type JobRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Position  int       `gorm:"column:position;index"`
	Status    string    `gorm:"column:status"`
	Priority  string    `gorm:"column:priority"`
	Data      []byte    `gorm:"column:data;type:jsonb"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (JobRow) TableName() string {
	return repository.Table
}

// Open connects to dsn and makes sure the table exists.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&JobRow{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", repository.Table, err)
	}
	return db, nil
}

type StateStore struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{DB: db, now: time.Now}
}

func (s *StateStore) Load(ctx context.Context) (queue.State, error) {
	var rows []JobRow
	if err := s.DB.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return queue.State{}, fmt.Errorf("load %s: %w", repository.Table, err)
	}
	return repository.StateFromRows(fromJobRows(rows))
}

// Save replaces the table contents in one transaction.
func (s *StateStore) Save(ctx context.Context, state queue.State) error {
	rows, err := repository.Rows(state)
	if err != nil {
		return err
	}
	records := toJobRows(rows, s.now())

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&JobRow{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
}

func toJobRows(rows []repository.Row, now time.Time) []JobRow {
	out := make([]JobRow, len(rows))
	for i, r := range rows {
		out[i] = JobRow{ID: r.ID, Position: r.Position, Status: r.Status, Priority: r.Priority, Data: r.Data, UpdatedAt: now}
	}
	return out
}

func fromJobRows(rows []JobRow) []repository.Row {
	out := make([]repository.Row, len(rows))
	for i, r := range rows {
		out[i] = repository.Row{ID: r.ID, Position: r.Position, Status: r.Status, Priority: r.Priority, Data: r.Data}
	}
	return out
}
