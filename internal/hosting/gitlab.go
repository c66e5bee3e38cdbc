package hosting

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/forged/internal/config"
	gitlab "github.com/xanzy/go-gitlab"
)

// GitLab implements Provider against the GitLab REST API.
type GitLab struct {
	client *gitlab.Client
	host   string // self-hosted instance host; empty for gitlab.com
}

// NewGitLab creates a GitLab provider. baseURL selects a self-hosted
// instance; empty means gitlab.com.
func NewGitLab(token config.Secret, baseURL string) (*GitLab, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("%w: gitlab", ErrMissingToken)
	}

	opts := []gitlab.ClientOptionFunc{}
	host := ""
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing gitlab base url: %w", err)
		}
		host = u.Hostname()
	}

	client, err := gitlab.NewClient(token.Value(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLab{client: client, host: host}, nil
}

// MatchesHost reports whether host belongs to this (self-hosted) instance.
func (g *GitLab) MatchesHost(host string) bool {
	return g.host != "" && host == g.host
}

// Name returns "gitlab".
func (g *GitLab) Name() string { return "gitlab" }

// CreateMergeRequest opens a merge request.
func (g *GitLab) CreateMergeRequest(ctx context.Context, spec MergeRequestSpec) (*MergeRequest, error) {
	repo, err := ParseRepoURL(spec.RepoURL)
	if err != nil {
		return nil, err
	}

	mr, _, err := g.client.MergeRequests.CreateMergeRequest(repo.Path, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(spec.Title),
		Description:  gitlab.Ptr(spec.Description),
		SourceBranch: gitlab.Ptr(spec.SourceBranch),
		TargetBranch: gitlab.Ptr(spec.TargetBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating merge request %s -> %s: %w", spec.SourceBranch, spec.TargetBranch, err)
	}

	return &MergeRequest{
		WebURL: mr.WebURL,
		Number: mr.IID,
	}, nil
}

// Permissions reports the token holder's project access and branch
// protection.
func (g *GitLab) Permissions(ctx context.Context, repoURL, branch string) (*Permissions, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	project, _, err := g.client.Projects.GetProject(repo.Path, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching project: %w", err)
	}

	level := gitlab.AccessLevelValue(0)
	if project.Permissions != nil {
		if project.Permissions.ProjectAccess != nil {
			level = project.Permissions.ProjectAccess.AccessLevel
		}
		if project.Permissions.GroupAccess != nil && project.Permissions.GroupAccess.AccessLevel > level {
			level = project.Permissions.GroupAccess.AccessLevel
		}
	}

	perms := &Permissions{
		AccessLevelName: accessLevelName(level),
		CheckedAt:       time.Now().UTC(),
	}

	protected, _, err := g.client.ProtectedBranches.GetProtectedBranch(repo.Path, branch, gitlab.WithContext(ctx))
	if err == nil && protected != nil {
		perms.TargetBranchProtected = true
		perms.CanPushToProtected = level >= gitlab.MaintainerPermissions
	} else {
		perms.CanPushToProtected = true
	}

	return perms, nil
}

func accessLevelName(level gitlab.AccessLevelValue) string {
	switch {
	case level >= gitlab.OwnerPermissions:
		return "owner"
	case level >= gitlab.MaintainerPermissions:
		return "maintainer"
	case level >= gitlab.DeveloperPermissions:
		return "developer"
	case level >= gitlab.ReporterPermissions:
		return "reporter"
	case level >= gitlab.GuestPermissions:
		return "guest"
	default:
		return "none"
	}
}

var _ Provider = (*GitLab)(nil)
