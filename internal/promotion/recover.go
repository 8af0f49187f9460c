package promotion

import (
	"fmt"
	"os"

	"github.com/McElyea/orket-kernel/internal/fsutil"
	"github.com/McElyea/orket-kernel/internal/lsi"
)

// RecoverStatus reports which of the three promotion directories exist for
// a workspace's committed scope. A swap that crashed mid-flight leaves
// either a stray committed.__bak (old state, rename-out succeeded but
// cleanup did not run) or a missing committed with both __bak and __new
// present (the swap's first rename succeeded, the second did not).
type RecoverStatus struct {
	CommittedExists bool
	BackupExists    bool
	NewExists       bool
}

// Inspect reports the current state of ix's committed/__bak/__new directories
// without mutating anything, for an operator to decide a recovery action.
func Inspect(ix *lsi.Index) RecoverStatus {
	root := ix.CommittedRoot()
	return RecoverStatus{
		CommittedExists: fsutil.Exists(root),
		BackupExists:    fsutil.Exists(root + ".__bak"),
		NewExists:       fsutil.Exists(root + ".__new"),
	}
}

// Clean reports true when no interrupted-swap artifacts remain.
func (s RecoverStatus) Clean() bool {
	return !s.BackupExists && !s.NewExists
}

// RecoverAction is an operator's explicit choice of how to resolve an
// interrupted promotion swap. There is no automatic default: per the ledger
// recovery design decision, boot never infers one on its own.
type RecoverAction string

const (
	// ActionDiscardBackup removes a leftover committed.__bak once the
	// operator has confirmed committed/ already reflects the completed swap
	// (the common case: only the final os.RemoveAll(bakRoot) was interrupted).
	ActionDiscardBackup RecoverAction = "discard-backup"
	// ActionForward completes an interrupted swap by promoting committed.__new
	// to committed/, for when the operator has confirmed __new is a fully
	// constructed, trustworthy next state.
	ActionForward RecoverAction = "forward"
	// ActionRollback restores committed.__bak to committed/ and discards
	// committed.__new, for when the operator does not trust __new's content.
	ActionRollback RecoverAction = "rollback"
)

// Recover applies action against ix's committed scope. Callers (orketctl
// promotion recover) are expected to have already shown the operator
// Inspect's output and obtained explicit confirmation; Recover itself
// performs no further confirmation and applies the action unconditionally
// once its preconditions hold.
func Recover(ix *lsi.Index, action RecoverAction) error {
	root := ix.CommittedRoot()
	status := Inspect(ix)

	switch action {
	case ActionDiscardBackup:
		if !status.BackupExists {
			return fmt.Errorf("no committed.__bak present, nothing to discard")
		}
		if !status.CommittedExists {
			return fmt.Errorf("committed/ missing; discard-backup requires committed/ to already hold the completed swap")
		}
		return os.RemoveAll(root + ".__bak")

	case ActionForward:
		if status.CommittedExists {
			return fmt.Errorf("committed/ already present; forward recovery only applies when the final rename was interrupted")
		}
		if !status.NewExists {
			return fmt.Errorf("no committed.__new present to promote")
		}
		if err := os.Rename(root+".__new", root); err != nil {
			return fmt.Errorf("forward recovery rename failed: %w", err)
		}
		if status.BackupExists {
			return os.RemoveAll(root + ".__bak")
		}
		return nil

	case ActionRollback:
		if status.CommittedExists {
			return fmt.Errorf("committed/ already present; rollback only applies when the final rename was interrupted")
		}
		if !status.BackupExists {
			return fmt.Errorf("no committed.__bak present to restore")
		}
		if err := os.Rename(root+".__bak", root); err != nil {
			return fmt.Errorf("rollback rename failed: %w", err)
		}
		if status.NewExists {
			return os.RemoveAll(root + ".__new")
		}
		return nil

	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}
