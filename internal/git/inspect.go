package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotGitRepo indicates the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// CurrentBranch returns the branch the working directory is on, read via
// go-git without spawning a subprocess. Detached HEAD returns "detached".
func CurrentBranch(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, path)
		}
		return "", fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Fresh repo before the first commit.
			return "", fmt.Errorf("repository has no HEAD: %s", path)
		}
		return "", fmt.Errorf("reading HEAD: %w", err)
	}

	if !head.Name().IsBranch() {
		return "detached", nil
	}
	return head.Name().Short(), nil
}

// HeadCommit returns the commit hash HEAD points at.
func HeadCommit(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, path)
		}
		return "", fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// IsWorkTree reports whether path is a git working directory.
func IsWorkTree(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}
