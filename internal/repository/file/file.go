// Package file keeps queue state in a JSON file on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docbatch/internal/queue"
	"docbatch/internal/storage"
)

type Store struct {
	path string
	disk *storage.Local
}

func New(path string) *Store {
	return &Store{path: path, disk: storage.NewLocal("")}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (queue.State, error) {
	data, err := s.disk.ReadFile(ctx, s.path)
	if errors.Is(err, storage.ErrNotFound) {
		return queue.State{}, nil
	}
	if err != nil {
		return queue.State{}, err
	}

	var state queue.State
	if err := json.Unmarshal(data, &state); err != nil {
		return queue.State{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes state atomically, so a crash mid-write leaves the previous
// file in place.
func (s *Store) Save(ctx context.Context, state queue.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return s.disk.WriteFile(ctx, s.path, append(data, '\n'))
}
