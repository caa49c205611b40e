package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// sentLeadsFile is the on-disk layout of the JSON tracker.
type sentLeadsFile struct {
	SentAuthorIDs []string `json:"sent_author_ids"`
	LastUpdated   string   `json:"last_updated"`
}

// JSONStore keeps the sent-leads state in a single JSON file.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) read() (*sentLeadsFile, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: read %s", s.path)
	}
	var f sentLeadsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, eris.Wrapf(err, "tracker: parse %s", s.path)
	}
	return &f, nil
}

func (s *JSONStore) Load(_ context.Context) (IDSet, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return IDSet{}, nil
	}
	return NewIDSet(f.SentAuthorIDs...), nil
}

// Save writes the merged state to a temp file in the same directory and
// renames it over the old one, so readers never see a partial file.
func (s *JSONStore) Save(_ context.Context, previous, newIDs IDSet) error {
	state := sentLeadsFile{
		SentAuthorIDs: previous.Union(newIDs).Sorted(),
		LastUpdated:   now().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return eris.Wrap(err, "tracker: marshal state")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "tracker: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "tracker: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "tracker: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "tracker: close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return eris.Wrapf(err, "tracker: replace %s", s.path)
	}
	return nil
}

func (s *JSONStore) Status(_ context.Context) (*Status, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return &Status{}, nil
	}
	st := &Status{Count: len(NewIDSet(f.SentAuthorIDs...))}
	if ts, err := time.Parse(time.RFC3339Nano, f.LastUpdated); err == nil {
		st.LastUpdated = ts
	}
	return st, nil
}

func (s *JSONStore) Close() error { return nil }
