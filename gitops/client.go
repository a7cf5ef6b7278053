// Package gitops implements the repository operations consumed by the
// deployment tooling: listing repositories and creating branches, files, and
// pull requests. The gate core never touches this package; it exists for the
// surrounding pipeline.
package gitops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/safe-signing-gate/interfaces"
)

const defaultAPIBase = "https://api.github.com"

// Client talks to the GitHub REST API with bearer auth. It implements
// interfaces.GitOps.
type Client struct {
	apiBase string
	token   string
	client  *http.Client
	log     *slog.Logger
}

// NewClient creates a GitHub client for the given token.
func NewClient(token string, log *slog.Logger) *Client {
	return &Client{
		apiBase: defaultAPIBase,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// WithAPIBase returns a copy of the client using the given API base URL.
func (c *Client) WithAPIBase(base string) *Client {
	return &Client{
		apiBase: base,
		token:   c.token,
		client:  c.client,
		log:     c.log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("GitHub returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("GitHub returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not parse response: %w", err)
		}
	}
	return nil
}

type repoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// ListRepositories returns the repositories visible to the token.
func (c *Client) ListRepositories(ctx context.Context) ([]interfaces.Repository, error) {
	var repos []repoResponse
	if err := c.do(ctx, http.MethodGet, "/user/repos?per_page=100", nil, &repos); err != nil {
		return nil, fmt.Errorf("could not list repositories: %w", err)
	}

	result := make([]interfaces.Repository, 0, len(repos))
	for _, r := range repos {
		result = append(result, interfaces.Repository{
			Owner:         r.Owner.Login,
			Name:          r.Name,
			FullName:      r.FullName,
			DefaultBranch: r.DefaultBranch,
			Private:       r.Private,
		})
	}

	c.log.Debug("Listed repositories", slog.Int("count", len(result)))
	return result, nil
}

// CreateBranch creates a branch pointing at the given commit SHA.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error {
	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": fromSHA,
	}
	path := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("could not create branch %s: %w", branch, err)
	}

	c.log.Info("Created branch",
		slog.String("repo", owner+"/"+repo),
		slog.String("branch", branch))
	return nil
}

// CreateFile commits a new file on a branch.
func (c *Client) CreateFile(ctx context.Context, owner, repo, branch, path string, content []byte, message string) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path)
	if err := c.do(ctx, http.MethodPut, apiPath, body, nil); err != nil {
		return fmt.Errorf("could not create file %s: %w", path, err)
	}

	c.log.Info("Created file",
		slog.String("repo", owner+"/"+repo),
		slog.String("branch", branch),
		slog.String("path", path))
	return nil
}

// CreatePullRequest opens a pull request and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (int, error) {
	payload := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}

	var created struct {
		Number int `json:"number"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.do(ctx, http.MethodPost, path, payload, &created); err != nil {
		return 0, fmt.Errorf("could not create pull request: %w", err)
	}

	c.log.Info("Created pull request",
		slog.String("repo", owner+"/"+repo),
		slog.Int("number", created.Number))
	return created.Number, nil
}
