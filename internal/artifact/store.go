// Package artifact stores generated test artifacts at a fixed path per story.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/harrison/selfheal/internal/models"
)

// ErrStoryBusy is returned by TryLockRun when another run holds the story.
var ErrStoryBusy = errors.New("another run is already in progress for this story")

// stateDirName holds lock files and staged writes. It sits inside the tests
// directory so renames stay on one filesystem, and its files never end in
// .spec.ts so the runner does not collect them.
const stateDirName = ".selfheal"

// Store maps story ids onto artifact files under one tests directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at the tests directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) stateDir(sub string) (string, error) {
	dir := filepath.Join(s.dir, stateDirName, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// storyLock returns the flock for one of a story's lock kinds ("write", "run").
func (s *Store) storyLock(storyID, kind string) (*flock.Flock, error) {
	dir, err := s.stateDir("locks")
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(models.ArtifactFilename(storyID), ".spec.ts")
	return flock.New(filepath.Join(dir, base+"."+kind+".lock")), nil
}

// Dir returns the tests directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the fixed artifact path for a story.
func (s *Store) Path(storyID string) string {
	return filepath.Join(s.dir, models.ArtifactFilename(storyID))
}

// Exists reports whether an artifact has been written for the story.
func (s *Store) Exists(storyID string) bool {
	_, err := os.Stat(s.Path(storyID))
	return err == nil
}

// Read loads the current artifact. A missing file wraps os.ErrNotExist.
func (s *Store) Read(storyID string) (*models.TestArtifact, error) {
	path := s.Path(storyID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact for %s: %w", storyID, err)
	}
	return &models.TestArtifact{
		StoryID:  storyID,
		Filename: filepath.Base(path),
		Path:     path,
		Source:   string(data),
	}, nil
}

// Write replaces the story's artifact. The source is staged under the state
// directory and renamed over the artifact while the story's write lock is
// held, so the runner only ever sees a complete file.
func (s *Store) Write(storyID, source string) (*models.TestArtifact, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tests directory: %w", err)
	}
	lock, err := s.storyLock(storyID, "write")
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock artifact for %s: %w", storyID, err)
	}
	defer lock.Unlock()

	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	path := s.Path(storyID)
	if err := s.replace(path, source); err != nil {
		return nil, fmt.Errorf("failed to write artifact for %s: %w", storyID, err)
	}

	return &models.TestArtifact{
		StoryID:  storyID,
		Filename: filepath.Base(path),
		Path:     path,
		Source:   source,
	}, nil
}

func (s *Store) replace(path, source string) (err error) {
	staging, err := s.stateDir("staging")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(staging, filepath.Base(path)+".*.partial")
	if err != nil {
		return err
	}
	staged := f.Name()
	defer func() {
		if err != nil {
			os.Remove(staged)
		}
	}()

	if _, err = f.WriteString(source); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err = os.Chmod(staged, 0644); err != nil {
		return err
	}
	return os.Rename(staged, path)
}

// RunLock guards a whole healing run for one story.
type RunLock struct {
	storyID string
	lock    *flock.Flock
}

// Release unlocks the run.
func (l *RunLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock for %s: %w", l.storyID, err)
	}
	return nil
}

// TryLockRun takes the story's run lock without blocking, so two runs for
// the same story cannot race on its artifact. flock locks belong to the open
// file, so two runs in one process contend as well.
func (s *Store) TryLockRun(storyID string) (*RunLock, error) {
	lock, err := s.storyLock(storyID, "run")
	if err != nil {
		return nil, err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock run for %s: %w", storyID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", storyID, ErrStoryBusy)
	}
	return &RunLock{storyID: storyID, lock: lock}, nil
}
