package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StepStore persists each user's script step.
type StepStore interface {
	// GetStep returns the user's step, creating a step-1 record when none
	// exists. created is true only for that first call.
	GetStep(ctx context.Context, userID string) (step int, created bool, err error)
	// Lookup reads the step without creating a record.
	Lookup(ctx context.Context, userID string) (step int, ok bool, err error)
	SetStep(ctx context.Context, userID string, step int) error
	Snapshot(ctx context.Context) (map[string]int, error)
}

func validateStep(userID string, step int) error {
	if strings.TrimSpace(userID) == "" {
		return errUserIDRequired
	}
	if step < FirstStep || step > ConcludedStep {
		return fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	return nil
}

// MemoryStepStore keeps steps in process memory.
type MemoryStepStore struct {
	mu    sync.Mutex
	steps map[string]int
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string]int)}
}

func (s *MemoryStepStore) GetStep(_ context.Context, userID string) (int, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, false, errUserIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if step, ok := s.steps[userID]; ok {
		return step, false, nil
	}
	s.steps[userID] = FirstStep
	return FirstStep, true, nil
}

func (s *MemoryStepStore) Lookup(_ context.Context, userID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[userID]
	return step, ok, nil
}

func (s *MemoryStepStore) SetStep(_ context.Context, userID string, step int) error {
	if err := validateStep(userID, step); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[userID] = step
	return nil
}

func (s *MemoryStepStore) Snapshot(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.steps))
	for k, v := range s.steps {
		out[k] = v
	}
	return out, nil
}
