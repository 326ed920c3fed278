package order

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultJournalFileName = ".fusion-swap-orders.json"
)

// Attempt is the persisted record of one swap attempt. Secrets are never
// written here, only which indices were disclosed.
type Attempt struct {
	ID           string    `json:"id"`
	Created      time.Time `json:"created"`
	LastUpdated  time.Time `json:"last_updated"`
	QuoteID      string    `json:"quote_id"`
	OrderHash    string    `json:"order_hash,omitempty"`
	SrcChainID   int64     `json:"src_chain_id"`
	DstChainID   int64     `json:"dst_chain_id"`
	SrcToken     string    `json:"src_token"`
	DstToken     string    `json:"dst_token"`
	Amount       string    `json:"amount"`
	Preset       string    `json:"preset"`
	SecretsCount int       `json:"secrets_count"`
	State        State     `json:"state"`

	Submitted       bool       `json:"submitted"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	RevealedIndices []int      `json:"revealed_indices,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// HasRevealed reports whether the secret at idx was disclosed
func (a *Attempt) HasRevealed(idx int) bool {
	for _, i := range a.RevealedIndices {
		if i == idx {
			return true
		}
	}
	return false
}

// journalFile is the JSON structure on disk
type journalFile struct {
	Attempts map[string]*Attempt `json:"attempts"`
}

// Journal persists swap attempts so that submission and disclosure stay
// exactly-once across process restarts
type Journal struct {
	filePath string
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

// NewJournal opens the journal at filePath, defaulting to the home directory
func NewJournal(filePath string) (*Journal, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultJournalFileName)
	}

	j := &Journal{
		filePath: filePath,
		attempts: make(map[string]*Attempt),
	}

	if err := j.load(); err != nil {
		// Created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
	}

	return j, nil
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.filePath)
	if err != nil {
		return err
	}

	var file journalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal journal: %w", err)
	}

	j.attempts = file.Attempts
	if j.attempts == nil {
		j.attempts = make(map[string]*Attempt)
	}

	return nil
}

// saveLocked writes the journal; the caller holds the write lock
func (j *Journal) saveLocked() error {
	data, err := json.MarshalIndent(journalFile{Attempts: j.attempts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	dir := filepath.Dir(j.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := j.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}

	if err := os.Rename(tempFile, j.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Begin records a new attempt for a freshly fetched quote
func (j *Journal) Begin(a Attempt) (*Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	a.ID = uuid.New().String()
	a.Created = now
	a.LastUpdated = now
	if a.State == "" {
		a.State = StateQuoted
	}

	stored := a
	j.attempts[a.ID] = &stored
	if err := j.saveLocked(); err != nil {
		return nil, err
	}

	out := stored
	return &out, nil
}

// Update applies fn to the attempt with the given id and persists it
func (j *Journal) Update(id string, fn func(*Attempt)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	a, ok := j.attempts[id]
	if !ok {
		return fmt.Errorf("attempt '%s' not found", id)
	}
	fn(a)
	a.LastUpdated = time.Now()

	return j.saveLocked()
}

// Get retrieves a copy of an attempt by id
func (j *Journal) Get(id string) (*Attempt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	a, ok := j.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt '%s' not found", id)
	}
	out := *a
	out.RevealedIndices = append([]int(nil), a.RevealedIndices...)
	return &out, nil
}

// FindByOrderHash returns the most recent attempt for an order hash
func (j *Journal) FindByOrderHash(orderHash string) (*Attempt, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	a := j.byOrderLocked(orderHash)
	if a == nil {
		return nil, false
	}
	out := *a
	out.RevealedIndices = append([]int(nil), a.RevealedIndices...)
	return &out, true
}

func (j *Journal) byOrderLocked(orderHash string) *Attempt {
	var found *Attempt
	for _, a := range j.attempts {
		if !strings.EqualFold(a.OrderHash, orderHash) {
			continue
		}
		if found == nil || a.LastUpdated.After(found.LastUpdated) {
			found = a
		}
	}
	return found
}

// IsSubmitted reports whether quoteID+orderHash was accepted by the relayer
func (j *Journal) IsSubmitted(quoteID, orderHash string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, a := range j.attempts {
		if a.Submitted && a.QuoteID == quoteID && strings.EqualFold(a.OrderHash, orderHash) {
			return true
		}
	}
	return false
}

// MarkSubmitted records a successful submission. Unknown orders get an
// attempt of their own.
func (j *Journal) MarkSubmitted(quoteID, orderHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	var target *Attempt
	for _, a := range j.attempts {
		if a.QuoteID == quoteID && strings.EqualFold(a.OrderHash, orderHash) {
			target = a
			break
		}
	}
	if target == nil {
		target = &Attempt{ID: uuid.New().String(), Created: now, QuoteID: quoteID, OrderHash: orderHash}
		j.attempts[target.ID] = target
	}

	target.Submitted = true
	target.SubmittedAt = &now
	target.State = StateSubmitted
	target.LastUpdated = now

	return j.saveLocked()
}

// Revealed lists the disclosed secret indices of an order
func (j *Journal) Revealed(orderHash string) []int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	a := j.byOrderLocked(orderHash)
	if a == nil {
		return nil
	}
	return append([]int(nil), a.RevealedIndices...)
}

// MarkRevealed records the disclosure of the secret at idx
func (j *Journal) MarkRevealed(orderHash string, idx int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	a := j.byOrderLocked(orderHash)
	if a == nil {
		now := time.Now()
		a = &Attempt{ID: uuid.New().String(), Created: now, OrderHash: orderHash}
		j.attempts[a.ID] = a
	}
	if a.HasRevealed(idx) {
		return nil
	}

	a.RevealedIndices = append(a.RevealedIndices, idx)
	sort.Ints(a.RevealedIndices)
	a.LastUpdated = time.Now()

	return j.saveLocked()
}

// List returns all attempts, newest first
func (j *Journal) List() []*Attempt {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]*Attempt, 0, len(j.attempts))
	for _, a := range j.attempts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Created.After(out[k].Created) })

	return out
}

// Count returns the number of attempts
func (j *Journal) Count() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.attempts)
}

// FilePath returns the journal file path
func (j *Journal) FilePath() string {
	return j.filePath
}
