package github_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/repograph/fetch"
	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/github/githubtest"
)

func acmeFoo() githubtest.Repo {
	return githubtest.Repo{
		Owner:        "acme",
		Name:         "foo",
		Stars:        42,
		License:      "MIT",
		Language:     "Go",
		Topics:       []string{"cli"},
		Languages:    map[string]int64{"Go": 1000, "Shell": 10},
		Contributors: []string{"alice", "bob", "alice"},
		Releases:     []string{"v1.0.0"},
		Readme:       "Foo is written in Go.",
	}
}

func newClient(server *githubtest.Server) *github.Client {
	return github.NewClient(fetch.NewFetcher(), "tok", github.WithBaseURL(server.URL))
}

func TestFetchRepository(t *testing.T) {
	server := githubtest.NewServer(acmeFoo())
	defer server.Close()

	md, text, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.NoError(t, err)

	assert.Equal(t, "foo", md.Name)
	assert.Equal(t, "acme", md.Owner)
	assert.Equal(t, "acme_foo", md.ID())
	assert.Equal(t, 42, md.Stars)
	assert.Equal(t, "MIT", md.License)
	assert.Equal(t, "https://github.com/acme/foo", md.URL)
	assert.Equal(t, "Go", md.PrimaryLanguage)
	assert.Equal(t, []string{"Go", "Shell"}, md.Languages)
	assert.Equal(t, []string{"cli"}, md.Topics)
	assert.Equal(t, []string{"alice", "bob"}, md.Contributors)
	assert.Equal(t, []string{"v1.0.0"}, md.Releases)
	assert.Equal(t, "Foo is written in Go.", text)

	auth, apiVersion := server.LastHeaders()
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, github.APIVersion, apiVersion)
	assert.Equal(t, "Bearer tok", server.RawAuth())
}

func TestFetchRepository_ReadmeOnForeignHostGetsNoToken(t *testing.T) {
	auths := make(chan string, 1)
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auths <- r.Header.Get("Authorization"):
		default:
		}
		w.Write([]byte("Mirrored README."))
	}))
	defer foreign.Close()

	repo := acmeFoo()
	repo.DownloadURL = foreign.URL + "/acme/foo/README.md"
	server := githubtest.NewServer(repo)
	defer server.Close()

	_, text, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.NoError(t, err)
	assert.Equal(t, "Mirrored README.", text)
	assert.Empty(t, <-auths)
}

func TestFetchRepository_MissingReadmeIsEmpty(t *testing.T) {
	repo := acmeFoo()
	repo.Readme = ""
	repo.License = ""
	server := githubtest.NewServer(repo)
	defer server.Close()

	md, text, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, md.License)
}

func TestFetchRepository_HTMLReadmeConverted(t *testing.T) {
	repo := acmeFoo()
	repo.ReadmeName = "README.html"
	repo.Readme = "<h1>Foo</h1><p>Uses <em>React</em>.</p>"
	server := githubtest.NewServer(repo)
	defer server.Close()

	_, text, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.NoError(t, err)
	assert.Contains(t, text, "# Foo")
	assert.NotContains(t, text, "<h1>")
}

func TestFetchRepository_PrimaryFailureAborts(t *testing.T) {
	repo := acmeFoo()
	repo.Status = http.StatusInternalServerError
	server := githubtest.NewServer(repo)
	defer server.Close()

	md, text, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.Error(t, err)
	assert.Nil(t, md)
	assert.Empty(t, text)
	assert.Equal(t, http.StatusInternalServerError, fetch.StatusCode(err))
}

func TestFetchRepository_ManyContributorsPaginate(t *testing.T) {
	repo := acmeFoo()
	repo.Contributors = nil
	for i := 0; i < 250; i++ {
		repo.Contributors = append(repo.Contributors, fmt.Sprintf("user%d", i))
	}
	server := githubtest.NewServer(repo)
	defer server.Close()

	md, _, err := newClient(server).FetchRepository(context.Background(), "acme", "foo")
	require.NoError(t, err)
	assert.Len(t, md.Contributors, 250)
	assert.Equal(t, 3, server.PathRequests("/repos/acme/foo/contributors"))
}

func TestSearchTop(t *testing.T) {
	var repos []githubtest.Repo
	for i := 0; i < 5; i++ {
		repos = append(repos, githubtest.Repo{Owner: "org", Name: "r" + strconv.Itoa(i), Stars: 100 - i})
	}
	server := githubtest.NewServer(repos...)
	defer server.Close()

	refs, err := newClient(server).SearchTop(context.Background(), "", 3)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, github.Ref{Owner: "org", Name: "r0"}, refs[0])
	assert.Equal(t, "org_r2", refs[2].ID())
}

func TestResolve_LimitCountsFilteredRepositories(t *testing.T) {
	var repos []githubtest.Repo
	for i := 0; i < 6; i++ {
		repos = append(repos, githubtest.Repo{Owner: "org", Name: "r" + strconv.Itoa(i), Stars: 100 - i})
	}
	server := githubtest.NewServer(repos...)
	defer server.Close()

	refs, err := newClient(server).Resolve(context.Background(), nil, "", 3, github.Filter{
		Exclude: []string{"org/r0", "org/r1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []github.Ref{
		{Owner: "org", Name: "r2"},
		{Owner: "org", Name: "r3"},
		{Owner: "org", Name: "r4"},
	}, refs)
}

func TestResolve(t *testing.T) {
	server := githubtest.NewServer(
		githubtest.Repo{Owner: "acme", Name: "foo"},
		githubtest.Repo{Owner: "acme", Name: "bar-archive"},
		githubtest.Repo{Owner: "other", Name: "baz"},
	)
	defer server.Close()
	client := newClient(server)

	t.Run("search with filter", func(t *testing.T) {
		refs, err := client.Resolve(context.Background(), nil, "", 10, github.Filter{
			Include: []string{"acme/*"},
			Exclude: []string{"**/*-archive"},
		})
		require.NoError(t, err)
		assert.Equal(t, []github.Ref{{Owner: "acme", Name: "foo"}}, refs)
	})

	t.Run("explicit list bypasses search", func(t *testing.T) {
		before := server.PathRequests("/search/repositories")
		refs, err := client.Resolve(context.Background(), []string{"x/y"}, "", 10, github.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []github.Ref{{Owner: "x", Name: "y"}}, refs)
		assert.Equal(t, before, server.PathRequests("/search/repositories"))
	})

	t.Run("invalid explicit ref", func(t *testing.T) {
		_, err := client.Resolve(context.Background(), []string{"nope"}, "", 10, github.Filter{})
		require.Error(t, err)
	})

	t.Run("nothing selected", func(t *testing.T) {
		_, err := client.Resolve(context.Background(), nil, "", 10, github.Filter{Include: []string{"none/*"}})
		require.ErrorIs(t, err, github.ErrNoRepositories)
	})
}
