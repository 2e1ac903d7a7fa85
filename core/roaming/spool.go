package roaming

import (
	"context"
	"sync"

	"github.com/kilianp07/roamsync/core/model"
)

// CDRSpool persists charge detail records whose push failed so that they
// survive a restart. Records are scoped by provider.
type CDRSpool interface {
	Save(ctx context.Context, provider string, cdr model.ChargeDetailRecord) error
	Remove(ctx context.Context, provider, sessionID string) error
	// Load returns the spooled records of provider in save order.
	Load(ctx context.Context, provider string) ([]model.ChargeDetailRecord, error)
	Close() error
}

// MemorySpool is an in-memory CDRSpool.
type MemorySpool struct {
	mu      sync.Mutex
	records map[string][]model.ChargeDetailRecord
}

// NewMemorySpool returns an empty MemorySpool.
func NewMemorySpool() *MemorySpool {
	return &MemorySpool{records: make(map[string][]model.ChargeDetailRecord)}
}

// Save stores cdr, replacing a record with the same session id.
func (s *MemorySpool) Save(_ context.Context, provider string, cdr model.ChargeDetailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.records[provider]
	for i, c := range list {
		if c.SessionID == cdr.SessionID {
			list[i] = cdr
			return nil
		}
	}
	s.records[provider] = append(list, cdr)
	return nil
}

func (s *MemorySpool) Remove(_ context.Context, provider, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.records[provider]
	for i, c := range list {
		if c.SessionID == sessionID {
			s.records[provider] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemorySpool) Load(_ context.Context, provider string) ([]model.ChargeDetailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChargeDetailRecord(nil), s.records[provider]...), nil
}

func (s *MemorySpool) Close() error { return nil }
