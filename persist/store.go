package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ip-setkeeper/dao"
	"ip-setkeeper/errs"

	"github.com/google/uuid"
)

// Store reads and writes the whole snapshot blob. WriteAll must replace the
// previous blob atomically, ReadAll reports a missing blob as CodeNotFound.
type Store interface {
	ReadAll(ctx context.Context) ([]byte, error)
	WriteAll(ctx context.Context, data []byte) error
}

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) ReadAll(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.CodeNotFound, "snapshot file not found", err)
		}
		return nil, fmt.Errorf("read snapshot file:%s failed, err:%w", s.path, err)
	}
	return raw, nil
}

// WriteAll writes to a temp file in the same directory then renames it
// over the target.
func (s *FileStore) WriteAll(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir:%s failed, err:%w", dir, err)
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(s.path)+".tmp-"+uuid.NewString())
	if err := writeSync(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot tmp file failed, err:%w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot file failed, err:%w", err)
	}
	return nil
}

func writeSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DBStore keeps the snapshot as a sqlite row keyed by path.
type DBStore struct {
	path string
	dao  dao.ISnapshotDao
}

func NewDBStore(path string, d dao.ISnapshotDao) *DBStore {
	return &DBStore{path: path, dao: d}
}

func (s *DBStore) ReadAll(ctx context.Context) ([]byte, error) {
	item, ok, err := s.dao.GetSnapshot(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot row:%s failed, err:%w", s.path, err)
	}
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "snapshot row:%s not found", s.path)
	}
	return item.Data, nil
}

func (s *DBStore) WriteAll(ctx context.Context, data []byte) error {
	return s.dao.PutSnapshot(ctx, s.path, data)
}
