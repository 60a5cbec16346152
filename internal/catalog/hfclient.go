package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// hfClient is a minimal HuggingFace Hub API client, adapted from the
// teacher's pkg/distribution/huggingface.Client down to exactly what the
// catalogue's manifest builder needs: listing a repo's files and resolving
// a per-file download URL (actual bytes are fetched by internal/download).
type hfClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func newHFClient(httpClient *http.Client, token string) *hfClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &hfClient{httpClient: httpClient, baseURL: "https://huggingface.co", token: token}
}

// RepoFile is one file entry from a repo listing. LFS is non-nil for
// LFS-tracked files (the common case for model weights); its Oid is the
// blob's sha256 content hash, which the download engine uses to verify the
// transfer. Small non-LFS files (configs, tokenizer files) have no LFS
// entry and are downloaded without digest verification.
type RepoFile struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	LFS  *struct {
		Oid string `json:"oid"`
	} `json:"lfs,omitempty"`
}

// Digest returns the "sha256:<hex>" form of the file's LFS content hash, or
// "" if the file isn't LFS-tracked.
func (f RepoFile) Digest() string {
	if f.LFS == nil || f.LFS.Oid == "" {
		return ""
	}
	return "sha256:" + f.LFS.Oid
}

func (c *hfClient) ListFiles(ctx context.Context, repo, revision string) ([]RepoFile, error) {
	if revision == "" {
		revision = "main"
	}
	return c.listRecursive(ctx, repo, revision, "")
}

func (c *hfClient) listRecursive(ctx context.Context, repo, revision, dir string) ([]RepoFile, error) {
	entries, err := c.listPath(ctx, repo, revision, dir)
	if err != nil {
		return nil, err
	}
	var all []RepoFile
	for _, e := range entries {
		switch e.Type {
		case "file":
			all = append(all, e)
		case "directory":
			sub, err := c.listRecursive(ctx, repo, revision, e.Path)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", e.Path, err)
			}
			all = append(all, sub...)
		}
	}
	return all, nil
}

func (c *hfClient) listPath(ctx context.Context, repo, revision, dir string) ([]RepoFile, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s/tree/%s", c.baseURL, repo, path.Join(revision, dir))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, repo); err != nil {
		return nil, err
	}

	var files []RepoFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return files, nil
}

// FileURL returns the resolve URL for one file, which the download engine
// fetches directly (HuggingFace redirects through LFS as needed).
func (c *hfClient) FileURL(repo, revision, name string) string {
	if revision == "" {
		revision = "main"
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, repo, revision, name)
}

func (c *hfClient) Headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

func (c *hfClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "lemonade-gateway")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkResponse(resp *http.Response, repo string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("authentication required for repository %q", repo)
	case http.StatusNotFound:
		return fmt.Errorf("repository %q not found", repo)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited while accessing repository %q", repo)
	default:
		return fmt.Errorf("unexpected status %d listing %q", resp.StatusCode, repo)
	}
}

// SplitCheckpoint splits an "org/repo:variant" style checkpoint into its
// repo and variant parts. A checkpoint with no colon has an empty variant.
func SplitCheckpoint(checkpoint string) (repo, variant string) {
	idx := strings.LastIndex(checkpoint, ":")
	if idx < 0 {
		return checkpoint, ""
	}
	// Guard against Windows-style absolute paths ("C:\...") being split.
	if idx == 1 {
		return checkpoint, ""
	}
	return checkpoint[:idx], checkpoint[idx+1:]
}
