// Package overlay implements the client-side optimistic edit layer.
//
// A [Session] stages local edits as pending batch operations keyed by the
// item they touch. Staging a second edit for the same item replaces the first
// in place (last write wins) while keeping the item's original position in
// the staging order, so a committed batch replays edits in the order the user
// first touched each item.
//
// Rendering reads go through [Session.ResolvedPages] and friends, which apply
// the pending operations over the last known authoritative state, so the user
// sees their edits immediately. [Session.ApplyEvent] feeds broadcast events
// into the authoritative cache; items with pending local edits keep showing
// the local version until the commit drains them.
//
// [Session.Commit] submits the staged operations as one atomic batch. On
// success exactly the submitted entries are cleared; edits staged while the
// commit was in flight survive for the next commit. On failure everything is
// retained so the user can fix the problem and retry.
package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/models"
)

// ErrCommitInProgress is returned by Commit while another commit is running.
var ErrCommitInProgress = errors.New("overlay: commit already in progress")

// ErrNothingToCommit is returned by Commit when no operations are staged.
var ErrNothingToCommit = errors.New("overlay: nothing to commit")

// ItemType partitions the staging key space.
type ItemType string

const (
	ItemPage  ItemType = "page"
	ItemBlock ItemType = "block"
	ItemMedia ItemType = "media"
)

// Key identifies the item a pending operation targets.
type Key struct {
	Type ItemType
	ID   string
}

// PendingOperation is one staged edit.
type PendingOperation struct {
	Key      Key             `json:"key"`
	Op       batch.Operation `json:"op"`
	StagedAt time.Time       `json:"staged_at"`
}

// Committer submits a batch to the server. Implemented by the HTTP client.
type Committer interface {
	SubmitBatch(ctx context.Context, b batch.Batch) (*batch.Outcome, error)
}

// Session holds the pending edits and the authoritative cache for one editor.
type Session struct {
	mu         sync.Mutex
	order      []Key
	pending    map[Key]*PendingOperation
	committing bool

	pages  map[models.PageID]*models.Page
	blocks map[models.BlockID]*models.Block
	media  map[models.MediaID]*models.MediaAsset

	log zerolog.Logger
}

// NewSession creates an empty session.
func NewSession(log zerolog.Logger) *Session {
	return &Session{
		pending: make(map[Key]*PendingOperation),
		pages:   make(map[models.PageID]*models.Page),
		blocks:  make(map[models.BlockID]*models.Block),
		media:   make(map[models.MediaID]*models.MediaAsset),
		log:     log,
	}
}

// Stage records an edit. Creates without a client-supplied id get one
// generated here, so every staged operation has a stable key and later edits
// to the same item can reference it before the server has seen it.
func (s *Session) Stage(op batch.Operation) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keyFor(&op)
	if err != nil {
		return Key{}, err
	}
	entry := &PendingOperation{Key: key, Op: op, StagedAt: time.Now()}
	if _, exists := s.pending[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pending[key] = entry
	s.log.Debug().Str("item", key.ID).Str("type", string(op.Type)).Msg("edit staged")
	return key, nil
}

// keyFor derives the staging key, generating ids for creates that lack one.
func (s *Session) keyFor(op *batch.Operation) (Key, error) {
	switch op.Type {
	case batch.OpPageCreate:
		if op.CreatePage == nil {
			return Key{}, errors.New("overlay: page_create without payload")
		}
		if op.CreatePage.ID.IsZero() {
			op.CreatePage.ID = models.NewPageID()
		}
		return Key{Type: ItemPage, ID: op.CreatePage.ID.String()}, nil
	case batch.OpPageUpdate, batch.OpPageDelete:
		if op.PageID == nil {
			return Key{}, errors.New("overlay: page operation without id")
		}
		return Key{Type: ItemPage, ID: op.PageID.String()}, nil
	case batch.OpBlockCreate:
		if op.CreateBlock == nil {
			return Key{}, errors.New("overlay: block_create without payload")
		}
		if op.CreateBlock.ID.IsZero() {
			op.CreateBlock.ID = models.NewBlockID()
		}
		return Key{Type: ItemBlock, ID: op.CreateBlock.ID.String()}, nil
	case batch.OpBlockUpdate, batch.OpBlockDelete:
		if op.BlockID == nil {
			return Key{}, errors.New("overlay: block operation without id")
		}
		return Key{Type: ItemBlock, ID: op.BlockID.String()}, nil
	case batch.OpMediaCreate:
		if op.CreateMedia == nil {
			return Key{}, errors.New("overlay: media_create without payload")
		}
		if op.CreateMedia.ID.IsZero() {
			op.CreateMedia.ID = models.NewMediaID()
		}
		return Key{Type: ItemMedia, ID: op.CreateMedia.ID.String()}, nil
	case batch.OpMediaDelete:
		if op.MediaID == nil {
			return Key{}, errors.New("overlay: media operation without id")
		}
		return Key{Type: ItemMedia, ID: op.MediaID.String()}, nil
	}
	return Key{}, errors.New("overlay: unknown operation type " + string(op.Type))
}

// Discard drops the pending edit for one item, if any.
func (s *Session) Discard(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked(key)
}

func (s *Session) discardLocked(key Key) {
	if _, ok := s.pending[key]; !ok {
		return
	}
	delete(s.pending, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Pending returns the staged operations in staging order.
func (s *Session) Pending() []batch.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]batch.Operation, 0, len(s.order))
	for _, key := range s.order {
		ops = append(ops, s.pending[key].Op)
	}
	return ops
}

// Dirty reports whether any edits are staged.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order) > 0
}

// Commit submits the staged operations as one atomic batch. While the commit
// is in flight new edits may still be staged; they are not part of the batch
// and survive it. On success exactly the submitted entries are cleared,
// except entries the user re-staged mid-commit, which are kept for the next
// round. On failure everything is retained.
func (s *Session) Commit(ctx context.Context, committer Committer) (*batch.Outcome, error) {
	s.mu.Lock()
	if s.committing {
		s.mu.Unlock()
		return nil, ErrCommitInProgress
	}
	if len(s.order) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToCommit
	}
	s.committing = true
	submitted := make([]*PendingOperation, 0, len(s.order))
	ops := make([]batch.Operation, 0, len(s.order))
	for _, key := range s.order {
		entry := s.pending[key]
		submitted = append(submitted, entry)
		ops = append(ops, entry.Op)
	}
	s.mu.Unlock()

	outcome, err := committer.SubmitBatch(ctx, batch.Batch{Operations: ops})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	if err != nil {
		s.log.Warn().Err(err).Int("operations", len(ops)).Msg("commit failed, edits retained")
		return nil, err
	}
	for _, entry := range submitted {
		// A mid-commit re-stage replaced the entry under the same key; that
		// newer edit has not been committed and must survive.
		if current, ok := s.pending[entry.Key]; ok && current == entry {
			s.discardLocked(entry.Key)
		}
	}
	s.log.Info().Int("operations", len(ops)).Msg("commit drained")
	return outcome, nil
}

// Snapshot serializes the pending edits so an editor can survive a restart.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := sessionSnapshot{Entries: make([]*PendingOperation, 0, len(s.order))}
	for _, key := range s.order {
		snap.Entries = append(snap.Entries, s.pending[key])
	}
	return cbor.Marshal(snap)
}

// Restore replaces the pending edits with a previously taken snapshot.
func (s *Session) Restore(data []byte) error {
	var snap sessionSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.pending = make(map[Key]*PendingOperation, len(snap.Entries))
	for _, entry := range snap.Entries {
		s.order = append(s.order, entry.Key)
		s.pending[entry.Key] = entry
	}
	return nil
}

type sessionSnapshot struct {
	Entries []*PendingOperation `cbor:"entries"`
}
