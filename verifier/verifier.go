// Package verifier queries the three external oracles gating a signature: the
// policy decision endpoint, the test-result resource, and the pull-request
// merge status. Every check is fail-closed: transport faults, non-success
// statuses, and unexpected payload shapes resolve to false and a log entry,
// never to a propagated error.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultTimeout bounds every oracle call so a gate invocation cannot
	// hold the custody network's invocation slot indefinitely.
	defaultTimeout = 10 * time.Second

	// defaultGitHubAPIBase is the REST endpoint pull requests are read from.
	defaultGitHubAPIBase = "https://api.github.com"

	// maxResponseSize caps oracle response bodies (1MB).
	maxResponseSize = 1024 * 1024
)

// Verifier implements interfaces.ConditionVerifier over HTTP.
type Verifier struct {
	client        *http.Client
	githubAPIBase string
	log           *slog.Logger
}

// New creates a verifier with bounded per-call timeouts.
func New(log *slog.Logger) *Verifier {
	return &Verifier{
		client:        &http.Client{Timeout: defaultTimeout},
		githubAPIBase: defaultGitHubAPIBase,
		log:           log,
	}
}

// WithGitHubAPIBase returns a copy of the verifier reading pull requests from
// the given API base URL instead of api.github.com.
func (v *Verifier) WithGitHubAPIBase(base string) *Verifier {
	return &Verifier{
		client:        v.client,
		githubAPIBase: base,
		log:           v.log,
	}
}

// policyDecision is the decision service's response envelope.
type policyDecision struct {
	Result struct {
		Allow      bool  `json:"allow"`
		Violations []any `json:"violations"`
	} `json:"result"`
}

// VerifyPolicy posts {"input": config} to the policy endpoint and passes iff
// the decision is result.allow == true.
func (v *Verifier) VerifyPolicy(ctx context.Context, endpoint string, config map[string]any) bool {
	body, err := json.Marshal(map[string]any{"input": config})
	if err != nil {
		v.log.Error("Could not marshal policy input", "err", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		v.log.Error("Could not create policy request", "err", err, slog.String("endpoint", endpoint))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	var decision policyDecision
	if !v.doJSON(req, "policy", &decision) {
		return false
	}

	if !decision.Result.Allow {
		v.log.Info("Policy denied deployment",
			slog.String("endpoint", endpoint),
			slog.Int("violations", len(decision.Result.Violations)))
		return false
	}

	v.log.Debug("Policy check passed", slog.String("endpoint", endpoint))
	return true
}

// testConclusion is the test-result resource payload.
type testConclusion struct {
	Conclusion string `json:"conclusion"`
	Details    any    `json:"details"`
}

// VerifyTestsPassed fetches the test-result resource and passes iff its
// conclusion is exactly "success".
func (v *Verifier) VerifyTestsPassed(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		v.log.Error("Could not create test-result request", "err", err, slog.String("url", url))
		return false
	}

	var result testConclusion
	if !v.doJSON(req, "tests", &result) {
		return false
	}

	if result.Conclusion != "success" {
		v.log.Info("Test run did not succeed",
			slog.String("url", url),
			slog.String("conclusion", result.Conclusion))
		return false
	}

	v.log.Debug("Test check passed", slog.String("url", url))
	return true
}

// pullRequest is the subset of the GitHub PR resource the gate cares about.
type pullRequest struct {
	Merged   bool   `json:"merged"`
	MergedAt string `json:"merged_at"`
}

// VerifyPRMerged fetches the pull request with bearer auth and passes iff
// merged == true.
func (v *Verifier) VerifyPRMerged(ctx context.Context, owner, repo string, prNumber int, token string) bool {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", v.githubAPIBase, owner, repo, prNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		v.log.Error("Could not create pull request request", "err", err, slog.String("url", url))
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var pr pullRequest
	if !v.doJSON(req, "pr-merge", &pr) {
		return false
	}

	if !pr.Merged {
		v.log.Info("Pull request is not merged",
			slog.String("repo", owner+"/"+repo),
			slog.Int("pr", prNumber))
		return false
	}

	v.log.Debug("Pull request merge check passed",
		slog.String("repo", owner+"/"+repo),
		slog.Int("pr", prNumber),
		slog.String("mergedAt", pr.MergedAt))
	return true
}

// doJSON executes the request and decodes a JSON response into out. Returns
// false on any fault; the condition name only feeds log entries.
func (v *Verifier) doJSON(req *http.Request, condition string, out any) bool {
	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Warn("Oracle request failed",
			"err", err,
			slog.String("condition", condition),
			slog.String("url", req.URL.String()))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.log.Warn("Oracle returned non-success status",
			slog.String("condition", condition),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode))
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		v.log.Warn("Could not read oracle response",
			"err", err,
			slog.String("condition", condition))
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		v.log.Warn("Could not parse oracle response",
			"err", err,
			slog.String("condition", condition))
		return false
	}

	return true
}
