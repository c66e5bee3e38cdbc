// Package hosting talks to git forges (GitHub, GitLab) for merge-request
// creation and permission checks.
//
// The provider is detected from the repository URL; callers hold only the
// Provider interface so queue and workflow code stays forge-agnostic.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnknownProvider indicates the repository URL matches no known forge.
	ErrUnknownProvider = errors.New("unknown hosting provider")

	// ErrMissingToken indicates the detected provider has no configured token.
	ErrMissingToken = errors.New("hosting token not configured")
)

// MergeRequestSpec describes a merge/pull request to open.
type MergeRequestSpec struct {
	RepoURL      string
	SourceBranch string
	TargetBranch string
	Title        string
	Description  string
}

// MergeRequest is the created merge/pull request.
type MergeRequest struct {
	WebURL string
	Number int
}

// Permissions describes the caller's access to a repository branch.
type Permissions struct {
	AccessLevelName       string
	TargetBranchProtected bool
	CanPushToProtected    bool
	CheckedAt             time.Time
}

// Provider creates merge requests and answers permission queries on a forge.
type Provider interface {
	// Name returns the provider identifier ("github" or "gitlab").
	Name() string

	// CreateMergeRequest opens a merge/pull request.
	CreateMergeRequest(ctx context.Context, spec MergeRequestSpec) (*MergeRequest, error)

	// Permissions reports the token holder's access to the repository
	// and whether branch is protected.
	Permissions(ctx context.Context, repoURL, branch string) (*Permissions, error)
}

// Repo is a parsed repository reference.
type Repo struct {
	Host string
	// Path is the full project path without the .git suffix,
	// e.g. "acme/widgets" or "group/sub/project".
	Path string
	// Owner and Name are the first and last path segments. GitHub uses
	// exactly these two; GitLab uses the full Path.
	Owner string
	Name  string
}

// ParseRepoURL parses https and scp-like ssh repository URLs.
func ParseRepoURL(repoURL string) (*Repo, error) {
	var host, path string

	switch {
	case strings.HasPrefix(repoURL, "http://"), strings.HasPrefix(repoURL, "https://"):
		u, err := url.Parse(repoURL)
		if err != nil {
			return nil, fmt.Errorf("parsing repo url: %w", err)
		}
		host = u.Hostname()
		path = strings.Trim(u.Path, "/")
	case strings.Contains(repoURL, "@") && strings.Contains(repoURL, ":"):
		// scp-like: git@host:group/project.git
		rest := repoURL[strings.Index(repoURL, "@")+1:]
		hostPath := strings.SplitN(rest, ":", 2)
		if len(hostPath) != 2 {
			return nil, fmt.Errorf("unparseable ssh repo url: %s", repoURL)
		}
		host = hostPath[0]
		path = strings.Trim(hostPath[1], "/")
	default:
		return nil, fmt.Errorf("unsupported repo url format: %s", repoURL)
	}

	path = strings.TrimSuffix(path, ".git")
	segments := strings.Split(path, "/")
	if host == "" || len(segments) < 2 || segments[0] == "" {
		return nil, fmt.Errorf("repo url missing project path: %s", repoURL)
	}

	return &Repo{
		Host:  host,
		Path:  path,
		Owner: segments[0],
		Name:  segments[len(segments)-1],
	}, nil
}

// Detector picks a Provider for a repository URL.
type Detector struct {
	github *GitHub
	gitlab *GitLab
}

// NewDetector creates a detector. Either provider may be nil when its
// token is not configured; detection of that forge then fails with
// ErrMissingToken.
func NewDetector(github *GitHub, gitlab *GitLab) *Detector {
	return &Detector{github: github, gitlab: gitlab}
}

// Detect returns the provider for repoURL. GitHub is matched on the
// github.com host; everything else with a known GitLab host shape
// (gitlab.com or a configured self-hosted base) is treated as GitLab.
func (d *Detector) Detect(repoURL string) (Provider, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	switch {
	case repo.Host == "github.com":
		if d.github == nil {
			return nil, fmt.Errorf("%w: github", ErrMissingToken)
		}
		return d.github, nil
	case repo.Host == "gitlab.com" || (d.gitlab != nil && d.gitlab.MatchesHost(repo.Host)):
		if d.gitlab == nil {
			return nil, fmt.Errorf("%w: gitlab", ErrMissingToken)
		}
		return d.gitlab, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, repo.Host)
}
