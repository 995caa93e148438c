package repository

import (
	"context"
	"os"
	"path/filepath"

	"referral_gate_bot/internal/model"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const DefaultFilePath = "user_data.json"

// FileStore keeps the snapshot in a single JSON document. Writes go to a
// temporary file in the same directory and are renamed over the current file.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create snapshot dir %s", dir)
	}

	return &FileStore{path: path}, nil
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (*model.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewSnapshot(), nil
		}
		return nil, errors.Wrapf(err, "read %s", f.path)
	}

	return decodeSnapshot(data)
}

func (f *FileStore) Save(ctx context.Context, s *model.Snapshot) error {
	current, err := f.Load(ctx)
	if err != nil {
		return err
	}
	if current.Version != s.Version {
		return errors.Wrapf(ErrConflict, "file version %d, loaded %d", current.Version, s.Version)
	}

	next := *s
	next.Version++

	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "rename into %s", f.path)
	}

	s.Version = next.Version
	return nil
}

func (f *FileStore) Close() error {
	return nil
}

func decodeSnapshot(data []byte) (*model.Snapshot, error) {
	snapshot := model.NewSnapshot()
	if len(data) == 0 {
		return snapshot, nil
	}

	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if snapshot.Users == nil {
		snapshot.Users = make(map[int64]*model.UserRecord)
	}
	for _, u := range snapshot.Users {
		if u.Referrals == nil {
			u.Referrals = []int64{}
		}
	}

	return snapshot, nil
}
