// Package safetynet protects pre-existing uncommitted work while the
// remediation agent edits the tree.
package safetynet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LabelPrefix prefixes every stash label the manager creates.
const LabelPrefix = "codepatrol-safety-net-"

var (
	// ErrNothingCaptured is returned when restoring a token whose capture
	// found a clean tree.
	ErrNothingCaptured = errors.New("safety net: nothing was captured")
	// ErrTokenSpent is returned when a token is restored twice.
	ErrTokenSpent = errors.New("safety net: token already restored")
	// ErrForeignToken is returned for a token issued by another manager.
	ErrForeignToken = errors.New("safety net: token not issued by this manager")
	// ErrNoSafetyNet is returned when discarding after a failed capture.
	// The reset would destroy uncommitted work that was never moved aside.
	ErrNoSafetyNet = errors.New("safety net: capture did not succeed, refusing to discard")
)

// Tree is the version-control surface the manager needs.
type Tree interface {
	SnapshotUncommitted(ctx context.Context, label string) (bool, error)
	RestoreSnapshot(ctx context.Context, label string) error
	ResetToCommitted(ctx context.Context) error
}

// Token is the proof of a capture. Only a captured token can be restored.
type Token struct {
	label    string
	captured bool
	// held is set when Capture succeeded, including on a clean tree
	held     bool
	owner    *Manager
}

// Captured reports whether capture moved any work out of the tree.
func (t Token) Captured() bool { return t.captured }

// Label is the stash label, empty when nothing was captured.
func (t Token) Label() string { return t.label }

// Manager captures, discards, and restores uncommitted working-tree state.
type Manager struct {
	tree   Tree
	logger zerolog.Logger
	newID  func() string

	mu    sync.Mutex
	spent map[string]bool
}

// New creates a manager over tree.
func New(tree Tree, logger zerolog.Logger) *Manager {
	return &Manager{
		tree:   tree,
		logger: logger.With().Str("component", "safetynet").Logger(),
		newID:  uuid.NewString,
		spent:  make(map[string]bool),
	}
}

// Capture moves all uncommitted changes out of the tree under a unique
// label. A clean tree yields an uncaptured token and no error. On error the
// token is uncaptured, and the caller proceeds without a safety net.
func (m *Manager) Capture(ctx context.Context) (Token, error) {
	label := LabelPrefix + m.newID()

	captured, err := m.tree.SnapshotUncommitted(ctx, label)
	if err != nil {
		return Token{owner: m}, fmt.Errorf("safety net capture: %w", err)
	}
	if !captured {
		m.logger.Debug().Msg("working tree clean, nothing captured")
		return Token{held: true, owner: m}, nil
	}

	m.logger.Info().Str("label", label).Msg("captured uncommitted work")
	return Token{label: label, captured: true, held: true, owner: m}, nil
}

// Discard resets the tree to the last commit, dropping every edit made
// since Capture. The captured work is untouched. tok must come from a
// successful Capture on this manager.
func (m *Manager) Discard(ctx context.Context, tok Token) error {
	if tok.owner != m {
		return ErrForeignToken
	}
	if !tok.held {
		return ErrNoSafetyNet
	}
	if err := m.tree.ResetToCommitted(ctx); err != nil {
		return fmt.Errorf("safety net discard: %w", err)
	}
	m.logger.Info().Msg("discarded remediation edits")
	return nil
}

// Restore re-applies the work captured under tok. Each token restores at most once.
func (m *Manager) Restore(ctx context.Context, tok Token) error {
	if tok.owner != m {
		return ErrForeignToken
	}
	if !tok.captured {
		return ErrNothingCaptured
	}

	m.mu.Lock()
	if m.spent[tok.label] {
		m.mu.Unlock()
		return ErrTokenSpent
	}
	m.spent[tok.label] = true
	m.mu.Unlock()

	if err := m.tree.RestoreSnapshot(ctx, tok.label); err != nil {
		return fmt.Errorf("safety net restore: %w", err)
	}
	m.logger.Info().Str("label", tok.label).Msg("restored uncommitted work")
	return nil
}
