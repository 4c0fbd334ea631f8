package queue

import (
	"fmt"
	"sort"

	"github.com/tbaudier/overseer/internal/storage/dirstore"
)

// FileStore persists tasks and threads, one directory per entity. Every
// mutation rewrites the whole meta record, so the persisted state always
// matches the last committed in-memory mutation.
type FileStore struct {
	tasks   *dirstore.DirStore
	threads *dirstore.DirStore
}

func NewFileStore(tasksDir, threadsDir string) *FileStore {
	return &FileStore{
		tasks:   dirstore.NewDirStore(tasksDir, "task"),
		threads: dirstore.NewDirStore(threadsDir, "thread"),
	}
}

func (s *FileStore) SaveTask(t *Task) error {
	s.tasks.Lock()
	defer s.tasks.Unlock()

	if err := s.tasks.EnsureDir(t.ID); err != nil {
		return err
	}
	return s.tasks.WriteMeta(t.ID, t)
}

func (s *FileStore) GetTask(id string) (*Task, error) {
	s.tasks.RLock()
	defer s.tasks.RUnlock()

	if !s.tasks.Exists(id) {
		return nil, nil
	}
	var t Task
	if err := s.tasks.ReadMeta(id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *FileStore) DeleteTask(id string) error {
	s.tasks.Lock()
	defer s.tasks.Unlock()
	return s.tasks.RemoveDir(id)
}

// ListTasks returns every persisted task, newest first.
func (s *FileStore) ListTasks() ([]*Task, error) {
	s.tasks.RLock()
	defer s.tasks.RUnlock()

	ids, err := s.tasks.ListDirs()
	if err != nil {
		return nil, err
	}

	var out []*Task
	for _, id := range ids {
		var t Task
		if err := s.tasks.ReadMeta(id, &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) SaveThread(th *Thread) error {
	s.threads.Lock()
	defer s.threads.Unlock()

	if err := s.threads.EnsureDir(th.ID); err != nil {
		return err
	}
	return s.threads.WriteMeta(th.ID, th)
}

// GetThread returns the thread, or nil when absent or soft-deleted.
func (s *FileStore) GetThread(id string) (*Thread, error) {
	s.threads.RLock()
	defer s.threads.RUnlock()
	return s.readThread(id)
}

func (s *FileStore) readThread(id string) (*Thread, error) {
	if !s.threads.Exists(id) {
		return nil, nil
	}
	var th Thread
	if err := s.threads.ReadMeta(id, &th); err != nil {
		return nil, err
	}
	if th.IsDeleted {
		return nil, nil
	}
	return &th, nil
}

// ListThreads returns all live threads, most recently updated first.
// Soft-deleted threads are skipped, not surfaced.
func (s *FileStore) ListThreads() ([]*Thread, error) {
	s.threads.RLock()
	defer s.threads.RUnlock()

	ids, err := s.threads.ListDirs()
	if err != nil {
		return nil, err
	}

	var out []*Thread
	for _, id := range ids {
		th, err := s.readThread(id)
		if err != nil || th == nil {
			continue
		}
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// RemoveThread physically deletes a thread directory.
func (s *FileStore) RemoveThread(id string) error {
	s.threads.Lock()
	defer s.threads.Unlock()
	return s.threads.RemoveDir(id)
}

// CountRunning counts tasks persisted in the running state. Tasks left
// running by a crashed process stay that way; this makes them visible.
func (s *FileStore) CountRunning() (int, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return 0, fmt.Errorf("count running tasks: %w", err)
	}
	n := 0
	for _, t := range tasks {
		if t.Status == TaskRunning {
			n++
		}
	}
	return n, nil
}
