// Package storage provides the file collaborators executors read inputs from
// and write outputs to.
package storage

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a path does not exist in the store.
var ErrNotFound = errors.New("storage: not found")

// outputName inserts suffix before the extension of input and swaps the
// extension for ext when ext is set. dir, when set, replaces the directory
// part. join is filepath.Join for disk paths and path.Join for object keys.
func outputName(input, suffix, ext, dir string, join func(...string) string, split func(string) (string, string)) string {
	parent, base := split(input)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if ext == "" {
		ext = path.Ext(base)
	}
	if dir != "" {
		parent = dir
	}
	return join(parent, stem+suffix+ext)
}

func splitFile(p string) (string, string) {
	return filepath.Split(p)
}

func splitKey(p string) (string, string) {
	return path.Split(p)
}
