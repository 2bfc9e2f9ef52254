package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"docbatch/internal/batch"
	"docbatch/internal/storage"
)

// Templates keeps job templates in one JSON file, sorted by name. Names are
// unique; saving under a taken name replaces that template and keeps its id.
type Templates struct {
	mu   sync.Mutex
	path string
	disk *storage.Local
}

func NewTemplates(path string) *Templates {
	return &Templates{path: path, disk: storage.NewLocal("")}
}

func (t *Templates) List(ctx context.Context) ([]*batch.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

// Get finds a template by id or name.
func (t *Templates) Get(ctx context.Context, ref string) (*batch.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := find(all, ref); i >= 0 {
		return all[i], nil
	}
	return nil, fmt.Errorf("%q: %w", ref, batch.ErrTemplateNotFound)
}

func (t *Templates) Put(ctx context.Context, tpl *batch.Template) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return err
	}
	if i := find(all, tpl.Name); i >= 0 {
		tpl.ID = all[i].ID
		all[i] = tpl
	} else {
		all = append(all, tpl)
	}
	return t.save(ctx, all)
}

// Delete removes a template by id or name and reports whether one existed.
func (t *Templates) Delete(ctx context.Context, ref string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.load(ctx)
	if err != nil {
		return false, err
	}
	i := find(all, ref)
	if i < 0 {
		return false, nil
	}
	return true, t.save(ctx, append(all[:i], all[i+1:]...))
}

func find(all []*batch.Template, ref string) int {
	for i, tpl := range all {
		if tpl.ID == ref || tpl.Name == ref {
			return i
		}
	}
	return -1
}

func (t *Templates) load(ctx context.Context) ([]*batch.Template, error) {
	data, err := t.disk.ReadFile(ctx, t.path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var all []*batch.Template
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.path, err)
	}
	return all, nil
}

func (t *Templates) save(ctx context.Context, all []*batch.Template) error {
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if all == nil {
		all = []*batch.Template{}
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return t.disk.WriteFile(ctx, t.path, append(data, '\n'))
}
