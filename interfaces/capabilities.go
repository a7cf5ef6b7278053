package interfaces

import "context"

// ConditionVerifier reduces each external precondition to a boolean. All
// checks are fail-closed: transport faults, non-success statuses, and
// unexpected payloads resolve to false and are logged, never returned as
// errors.
type ConditionVerifier interface {
	// VerifyPolicy posts {"input": config} to the policy endpoint and passes
	// iff the decision is result.allow == true.
	VerifyPolicy(ctx context.Context, endpoint string, config map[string]any) bool

	// VerifyTestsPassed fetches the test-result resource and passes iff its
	// conclusion is "success".
	VerifyTestsPassed(ctx context.Context, url string) bool

	// VerifyPRMerged fetches the pull request and passes iff merged == true.
	VerifyPRMerged(ctx context.Context, owner, repo string, prNumber int, token string) bool
}

// SigningExecutor is the custody network's sign capability. The signature
// itself is retrieved out of band; Sign only reports whether the network
// accepted the request.
type SigningExecutor interface {
	Sign(ctx context.Context, dataToSign []byte, publicKey string, sigName string) error
}

// ResponseEmitter is the sandbox's sole output channel.
type ResponseEmitter interface {
	EmitResponse(response string) error
}

// Repository is the subset of repository metadata the gate tooling needs.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"fullName"`
	DefaultBranch string `json:"defaultBranch"`
	Private       bool   `json:"private"`
}

// GitOps exposes the repository operations consumed by the deployment
// tooling. The gate core never calls these.
type GitOps interface {
	// ListRepositories returns the repositories visible to the token.
	ListRepositories(ctx context.Context) ([]Repository, error)

	// CreateBranch creates a branch pointing at the given commit SHA.
	CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error

	// CreateFile commits a new file on a branch.
	CreateFile(ctx context.Context, owner, repo, branch, path string, content []byte, message string) error

	// CreatePullRequest opens a pull request and returns its number.
	CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (int, error)
}

// KeyConfigStore persists and loads custody-key configuration.
type KeyConfigStore interface {
	PersistKeyConfig(ctx context.Context, cfg KeyConfig) error
	LoadKeyConfig(ctx context.Context, name string) (KeyConfig, error)
}
