// Package workspace persists workspace records for forged.
//
// A workspace is a cloned repository working directory plus the metadata
// forged tracks about it. The file store is the single source of truth;
// an in-memory read-through cache sits in front of it and is invalidated
// on every mutation, so the two can never diverge.
package workspace

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no workspace exists with the given id.
	ErrNotFound = errors.New("workspace not found")

	// ErrInvalidID indicates a malformed workspace id.
	ErrInvalidID = errors.New("invalid workspace id")
)

// Workspace is a cloned repository managed by forged.
type Workspace struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	RepoURL      string    `json:"repo_url"`
	TargetBranch string    `json:"target_branch"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Metadata     Metadata  `json:"metadata"`
}

// Metadata holds mutable workspace state.
type Metadata struct {
	CommitHash  string       `json:"commit_hash,omitempty"`
	Size        int64        `json:"size,omitempty"`
	IsActive    bool         `json:"is_active"`
	Permissions *Permissions `json:"permissions,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Permissions is the cached result of a forge permission check.
type Permissions struct {
	AccessLevelName       string    `json:"access_level_name"`
	TargetBranchProtected bool      `json:"target_branch_protected"`
	CanPushToProtected    bool      `json:"can_push_to_protected"`
	CheckedAt             time.Time `json:"checked_at"`
}

// NewID generates an opaque short workspace id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ValidateID rejects ids that could escape the data directory when used
// as a file name.
func ValidateID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidID
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrInvalidID
		}
	}
	return nil
}
