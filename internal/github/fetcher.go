package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// ErrNotFound is returned when a repository path does not exist.
var ErrNotFound = errors.New("github path not found")

// Repo identifies a directory of documents inside a repository.
type Repo struct {
	Owner    string
	Name     string
	Ref      string // Branch, tag or SHA; empty means the default branch
	BasePath string // Directory scanned for documents
}

// FetchedDoc represents a document fetched from GitHub.
type FetchedDoc struct {
	Path    string // Relative path within BasePath
	Content string
	SHA     string // File's Git blob SHA
	Size    int64
	URL     string // GitHub raw URL, also used as the document origin
}

// Fetcher lists and downloads documents from one repository directory.
type Fetcher struct {
	client     *Client
	repo       Repo
	extensions []string
}

// NewFetcher creates a fetcher for files whose names end in one of extensions.
// With no extensions it defaults to markdown and plain text.
func NewFetcher(client *Client, repo Repo, extensions ...string) *Fetcher {
	if len(extensions) == 0 {
		extensions = []string{".md", ".markdown", ".txt"}
	}
	return &Fetcher{client: client, repo: repo, extensions: extensions}
}

func (f *Fetcher) contentOptions() *github.RepositoryContentGetOptions {
	if f.repo.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.repo.Ref}
}

// ListDocs recursively lists all matching files under BasePath.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.repo.BasePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.repo.Owner, f.repo.Name, fullPath, f.contentOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if f.matches(*item.Name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

func (f *Fetcher) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range f.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FetchDoc downloads one file relative to BasePath.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.repo.BasePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.repo.Owner, f.repo.Name, fullPath, f.contentOptions())
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fullPath)
		}
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*fileContent.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedDoc{
		Path:    relativePath,
		Content: string(content),
		SHA:     fileContent.GetSHA(),
		Size:    int64(len(content)),
		URL:     RawURL(f.repo.Owner, f.repo.Name, f.ref(), fullPath),
	}, nil
}

func (f *Fetcher) ref() string {
	if f.repo.Ref == "" {
		return "main"
	}
	return f.repo.Ref
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting BasePath.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.repo.Owner, f.repo.Name, &github.CommitsListOptions{
		SHA:         f.repo.Ref,
		Path:        f.repo.BasePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.repo.BasePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}
	return *commits[0].SHA, nil
}

// FileInfo describes a file found by Stat.
type FileInfo struct {
	Path string
	Size int64
	SHA  string
}

// Stat looks up a single file without downloading its content.
func (c *Client) Stat(ctx context.Context, owner, repo, ref, filePath string) (*FileInfo, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	file, _, _, err := c.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, owner, repo, filePath)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if file == nil {
		// a directory listing
		return nil, fmt.Errorf("%w: %s is not a file", ErrNotFound, filePath)
	}
	return &FileInfo{Path: file.GetPath(), Size: int64(file.GetSize()), SHA: file.GetSHA()}, nil
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

const rawHost = "raw.githubusercontent.com"

// RawURL builds the raw.githubusercontent.com URL for a file.
func RawURL(owner, repo, ref, filePath string) string {
	return fmt.Sprintf("https://%s/%s/%s/%s/%s", rawHost, owner, repo, ref, filePath)
}

// ParseRawURL splits a raw.githubusercontent.com URL into its parts.
func ParseRawURL(raw string) (owner, repo, ref, filePath string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != rawHost {
		return "", "", "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 4)
	if len(parts) < 4 || parts[3] == "" {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], true
}
