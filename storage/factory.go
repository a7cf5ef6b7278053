// Package storage provides content-addressed storage for published signing
// bundles and serialized proposals, with redundant multi-backend support.
package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/safe-signing-gate/interfaces"
)

// Factory creates storage backends from location URIs and aggregates them
// into multi-backend configurations for redundant publication.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new storage backend factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{log: logger}
}

// StorageBackendFor creates a storage backend from a parsed location.
//
// Supported schemes:
//   - file://  - local filesystem storage
//   - s3://    - Amazon S3 or compatible object storage
//   - ipfs://  - IPFS distributed storage
//   - github:// - read-only storage via GitHub's Git blob API
//   - vault:// - HashiCorp Vault KV v2 storage
func (sf *Factory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "file":
		return NewFileBackend(location.Path, sf.log)
	case "s3":
		return sf.createS3Backend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "github":
		return sf.createGitHubBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of
// locations. Invalid locations are skipped with a warning; at least one
// backend must be creatable.
func (sf *Factory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no valid backends from %d locations", interfaces.ErrInvalidLocationURI, len(locations))
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createS3Backend parses s3://[key:secret@]bucket/prefix?region=...&endpoint=...
func (sf *Factory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	bucket := location.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 URI missing bucket", interfaces.ErrInvalidLocationURI)
	}

	var accessKey, secretKey string
	if location.Auth != "" {
		parts := strings.SplitN(location.Auth, ":", 2)
		accessKey = parts[0]
		if len(parts) == 2 {
			secretKey = parts[1]
		}
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Backend(
		bucket,
		strings.TrimPrefix(location.Path, "/"),
		region,
		location.GetParam("endpoint"),
		accessKey,
		secretKey,
		sf.log,
	)
}

// createIPFSBackend parses ipfs://host:port/
func (sf *Factory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host := location.Host
	port := "5001"
	if h, p, ok := strings.Cut(location.Host, ":"); ok {
		host, port = h, p
	}
	if host == "" {
		return nil, fmt.Errorf("%w: ipfs URI missing host", interfaces.ErrInvalidLocationURI)
	}

	return NewIPFSBackend(host, port, sf.log)
}

// createGitHubBackend parses github://owner/repo
func (sf *Factory) createGitHubBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	owner := location.Host
	repo := strings.Trim(location.Path, "/")
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: github URI must be github://owner/repo", interfaces.ErrInvalidLocationURI)
	}

	return NewGitHubBackend(owner, repo, sf.log), nil
}

// createVaultBackend parses vault://host:port/mount/path?token=...&scheme=https
func (sf *Factory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: vault URI missing host", interfaces.ErrInvalidLocationURI)
	}

	scheme := location.GetParam("scheme")
	if scheme == "" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, location.Host)

	mountPath, dataPath, _ := strings.Cut(strings.Trim(location.Path, "/"), "/")
	if mountPath == "" {
		mountPath = "secret"
	}
	if dataPath == "" {
		dataPath = "signing-gate"
	}

	return NewVaultBackend(address, location.GetParam("token"), mountPath, dataPath, sf.log)
}
