package githubimport

import (
	"context"
	"fmt"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// RepoContent is the narrow slice of the GitHub Contents API this
// package needs: listing a directory's entries and fetching one file's
// raw bytes. Narrowing to an interface here keeps Scan/Parse testable
// against a fake, the same boundary shape used for every other
// external collaborator in this module (nodeagent.ContainerRuntime,
// cloud.CloudProvider, proxy.Transport).
type RepoContent interface {
	ListDir(ctx context.Context, owner, repo, path, ref string) ([]DirEntry, error)
	GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// DirEntry is one entry returned by ListDir.
type DirEntry struct {
	Path  string
	IsDir bool
}

// Client wraps go-github's Repositories service to satisfy RepoContent
// against the real GitHub API (or an enterprise-hosted one).
type Client struct {
	gh *github.Client
}

// NewClient builds a Client authenticated with a personal access token
// (or installation token); pass "" for unauthenticated, rate-limited
// access to public repositories.
func NewClient(ctx context.Context, token string) *Client {
	if token == "" {
		return &Client{gh: github.NewClient(nil)}
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &Client{gh: github.NewClient(httpClient)}
}

// ListDir lists one directory's immediate children.
func (c *Client) ListDir(ctx context.Context, owner, repo, path, ref string) ([]DirEntry, error) {
	file, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s:%s: %w", owner, repo, path, err)
	}
	if file != nil {
		return []DirEntry{{Path: file.GetPath(), IsDir: false}}, nil
	}
	entries := make([]DirEntry, 0, len(dir))
	for _, d := range dir {
		entries = append(entries, DirEntry{Path: d.GetPath(), IsDir: d.GetType() == "dir"})
	}
	return entries, nil
}

// GetFile fetches one file's decoded content.
func (c *Client) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s:%s: %w", owner, repo, path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s/%s:%s is a directory, not a file", owner, repo, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s/%s:%s: %w", owner, repo, path, err)
	}
	return []byte(content), nil
}
