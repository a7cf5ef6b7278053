package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

// IPFSBackend publishes signing bundles to IPFS, the content-addressed store
// the sandboxed gate code is distributed through. Content ids remain SHA-256
// hashes for consistency with the other backends; the IPFS CID returned at
// publication time is kept in a local index and logged so callers can
// distribute it out of band.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string

	mu   sync.RWMutex
	cids map[interfaces.ContentID]string
}

// NewIPFSBackend creates an IPFS storage backend connected to the node at
// host:port.
func NewIPFSBackend(host, port string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/", apiURL),
		cids:        make(map[interfaces.ContentID]string),
	}, nil
}

// Fetch retrieves content previously published through this backend. Content
// published elsewhere must be fetched by CID directly; only ids recorded at
// publication time resolve here.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	b.mu.RLock()
	cid, ok := b.cids[id]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	reader, err := b.shell.Cat("/ipfs/" + cid)
	if err != nil {
		b.log.Error("Failed to fetch data from IPFS",
			slog.String("cid", cid),
			slog.String("content_id", id.String()),
			"err", err)
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("cid", cid),
		slog.String("content_id", id.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store publishes data to IPFS, pins it, and returns its content identifier.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	b.mu.Lock()
	b.cids[id] = cid
	b.mu.Unlock()

	b.log.Info("Published content to IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()))

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// CID returns the IPFS CID recorded when id was published through this
// backend, if any.
func (b *IPFSBackend) CID(id interfaces.ContentID) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cid, ok := b.cids[id]
	return cid, ok
}
