package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
)

const (
	PendingKey = "pendingQuizProgress"
	PendingTTL = 24 * time.Hour
)

// PendingStore holds at most one guest quiz result awaiting authentication. Entries older
// than the TTL are dropped lazily on read.
type PendingStore struct {
	kv     KeyValue
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

var _ app.PendingTransfers = (*PendingStore)(nil)

// NewPendingStore builds the slot. ttl <= 0 uses PendingTTL; a nil logger uses log.Default.
func NewPendingStore(kv KeyValue, ttl time.Duration, logger *log.Logger) *PendingStore {
	if ttl <= 0 {
		ttl = PendingTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PendingStore{kv: kv, ttl: ttl, now: time.Now, logger: logger}
}

// Save replaces whatever is in the slot and stamps SavedAt.
func (s *PendingStore) Save(ctx context.Context, entry domain.PendingTransfer) error {
	if prev, err := s.Read(ctx); err == nil && prev != nil && prev.ThreatID != entry.ThreatID {
		s.logger.Printf("pending transfer for %s replaced by %s", prev.ThreatID, entry.ThreatID)
	}
	entry.SavedAt = s.now().UTC()
	if entry.SelectedAnswers == nil {
		entry.SelectedAnswers = []int{}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode pending transfer: %w", err)
	}
	if err := s.kv.Set(ctx, PendingKey, raw); err != nil {
		return fmt.Errorf("write pending transfer: %w", err)
	}
	return nil
}

// Read returns nil when the slot is empty, expired or corrupt. The last two also clear it.
func (s *PendingStore) Read(ctx context.Context) (*domain.PendingTransfer, error) {
	raw, ok, err := s.kv.Get(ctx, PendingKey)
	if err != nil {
		return nil, fmt.Errorf("read pending transfer: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var entry domain.PendingTransfer
	if err := json.Unmarshal(raw, &entry); err != nil || entry.ThreatID == "" {
		return nil, s.Clear(ctx)
	}
	if s.now().Sub(entry.SavedAt) > s.ttl {
		return nil, s.Clear(ctx)
	}
	return &entry, nil
}

func (s *PendingStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, PendingKey); err != nil {
		return fmt.Errorf("clear pending transfer: %w", err)
	}
	return nil
}
