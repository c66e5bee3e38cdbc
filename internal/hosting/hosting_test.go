package hosting

import (
	"testing"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Repo
		wantErr bool
	}{
		{
			name: "github https",
			url:  "https://github.com/acme/widgets.git",
			want: Repo{Host: "github.com", Path: "acme/widgets", Owner: "acme", Name: "widgets"},
		},
		{
			name: "github https without suffix",
			url:  "https://github.com/acme/widgets",
			want: Repo{Host: "github.com", Path: "acme/widgets", Owner: "acme", Name: "widgets"},
		},
		{
			name: "gitlab nested group",
			url:  "https://gitlab.com/group/sub/project.git",
			want: Repo{Host: "gitlab.com", Path: "group/sub/project", Owner: "group", Name: "project"},
		},
		{
			name: "ssh scp-like",
			url:  "git@github.com:acme/widgets.git",
			want: Repo{Host: "github.com", Path: "acme/widgets", Owner: "acme", Name: "widgets"},
		},
		{
			name: "self-hosted gitlab ssh",
			url:  "git@gitlab.example.com:team/tools.git",
			want: Repo{Host: "gitlab.example.com", Path: "team/tools", Owner: "team", Name: "tools"},
		},
		{
			name:    "missing path",
			url:     "https://github.com/acme",
			wantErr: true,
		},
		{
			name:    "unsupported format",
			url:     "ftp://example.com/repo",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *repo)
		})
	}
}

func TestDetector(t *testing.T) {
	gh := NewGitHubWithClient(nil)
	gl, err := NewGitLab(config.Secret("glpat-test"), "https://gitlab.example.com")
	require.NoError(t, err)

	d := NewDetector(gh, gl)

	p, err := d.Detect("https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	p, err = d.Detect("https://gitlab.com/group/project.git")
	require.NoError(t, err)
	assert.Equal(t, "gitlab", p.Name())

	p, err = d.Detect("git@gitlab.example.com:team/tools.git")
	require.NoError(t, err)
	assert.Equal(t, "gitlab", p.Name())

	_, err = d.Detect("https://bitbucket.org/acme/widgets.git")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDetector_MissingProvider(t *testing.T) {
	d := NewDetector(nil, nil)

	_, err := d.Detect("https://github.com/acme/widgets.git")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = d.Detect("https://gitlab.com/group/project.git")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAccessLevelName(t *testing.T) {
	assert.Equal(t, "none", accessLevelName(0))
	assert.Equal(t, "developer", accessLevelName(30))
	assert.Equal(t, "maintainer", accessLevelName(40))
	assert.Equal(t, "owner", accessLevelName(50))
}
