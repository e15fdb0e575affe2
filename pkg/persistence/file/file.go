// Package file provides file-based persistence for journeys, used by tests
// and local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/enroutehq/enroute/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents, one file per aggregate row.
type Persistence struct {
	root           string
	journeyRepo    *JourneyRepository
	stepRepo       *StepRepository
	enrollmentRepo *EnrollmentRepository
	executionRepo  *ExecutionRepository

	// One lock for the whole store. File persistence is a development
	// backend; the claim CAS only has to be correct, not fast.
	mu *sync.Mutex
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.Mutex{}

	stepRepo := &StepRepository{store: newStore(cleanRoot, "steps", mu)}
	enrollmentRepo := &EnrollmentRepository{store: newStore(cleanRoot, "enrollments", mu)}
	executionRepo := &ExecutionRepository{store: newStore(cleanRoot, "executions", mu), mu: mu}

	return &Persistence{
		root: cleanRoot,
		mu:   mu,
		journeyRepo: &JourneyRepository{
			store:       newStore(cleanRoot, "journeys", mu),
			steps:       stepRepo,
			enrollments: enrollmentRepo,
			executions:  executionRepo,
		},
		stepRepo:       stepRepo,
		enrollmentRepo: enrollmentRepo,
		executionRepo:  executionRepo,
	}
}

func (p *Persistence) JourneyRepository() persistence.JourneyRepository {
	return p.journeyRepo
}

func (p *Persistence) StepRepository() persistence.StepRepository {
	return p.stepRepo
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollmentRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the root directory exists, creating it on first use.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, 0o755)
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store is a directory of JSON documents keyed by id.
type store struct {
	dir string
	mu  *sync.Mutex
}

func newStore(root, kind string, mu *sync.Mutex) *store {
	return &store{dir: filepath.Join(root, kind), mu: mu}
}

func (s *store) read(id string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(id, out)
}

func (s *store) readLocked(id string, out any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", id, err)
	}

	return true, nil
}

func (s *store) write(id string, in any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(id, in)
}

func (s *store) writeLocked(id string, in any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	return os.WriteFile(filepath.Join(s.dir, id+".json"), data, 0o644)
}

func (s *store) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, id+".json"))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

// ids lists every document id in the store.
func (s *store) ids() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.idsLocked()
}

func (s *store) idsLocked() ([]string, error) {
	files, err := fs.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}
