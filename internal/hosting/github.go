package hosting

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHub implements Provider against the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a GitHub provider with proper authentication.
func NewGitHub(ctx context.Context, token config.Secret) (*GitHub, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("%w: github", ErrMissingToken)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	tc := oauth2.NewClient(ctx, ts)
	return &GitHub{client: github.NewClient(tc)}, nil
}

// NewGitHubWithClient wraps an existing client. Intended for tests.
func NewGitHubWithClient(client *github.Client) *GitHub {
	return &GitHub{client: client}
}

// Name returns "github".
func (g *GitHub) Name() string { return "github" }

// CreateMergeRequest opens a pull request.
func (g *GitHub) CreateMergeRequest(ctx context.Context, spec MergeRequestSpec) (*MergeRequest, error) {
	repo, err := ParseRepoURL(spec.RepoURL)
	if err != nil {
		return nil, err
	}

	pr, _, err := g.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.String(spec.Title),
		Head:  github.String(spec.SourceBranch),
		Base:  github.String(spec.TargetBranch),
		Body:  github.String(spec.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request %s -> %s: %w", spec.SourceBranch, spec.TargetBranch, err)
	}

	return &MergeRequest{
		WebURL: pr.GetHTMLURL(),
		Number: pr.GetNumber(),
	}, nil
}

// Permissions reports the token holder's access and branch protection.
func (g *GitHub) Permissions(ctx context.Context, repoURL, branch string) (*Permissions, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolving authenticated user: %w", err)
	}

	level, _, err := g.client.Repositories.GetPermissionLevel(ctx, repo.Owner, repo.Name, user.GetLogin())
	if err != nil {
		return nil, fmt.Errorf("fetching permission level: %w", err)
	}

	perms := &Permissions{
		AccessLevelName: level.GetPermission(),
		CheckedAt:       time.Now().UTC(),
	}

	br, _, err := g.client.Repositories.GetBranch(ctx, repo.Owner, repo.Name, branch, 3)
	if err != nil {
		// Branch protection detail is best-effort; access level alone is
		// still a useful answer.
		return perms, nil
	}
	perms.TargetBranchProtected = br.GetProtected()
	perms.CanPushToProtected = !br.GetProtected() ||
		perms.AccessLevelName == "admin" || perms.AccessLevelName == "maintain"

	return perms, nil
}

var _ Provider = (*GitHub)(nil)
