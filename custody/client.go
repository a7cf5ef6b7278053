// Package custody consumes the distributed custody network's signing
// capability and persists custody-key configuration. The network's threshold
// cryptography itself stays opaque: this package only submits signing
// requests and never sees key material.
package custody

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// signRequest is the wire form of a custody signing request. The signature is
// retrieved out of band under sigName.
type signRequest struct {
	ToSign    string `json:"toSign"`
	PublicKey string `json:"publicKey"`
	SigName   string `json:"sigName"`
}

// Client implements interfaces.SigningExecutor against the custody network's
// HTTP API. Exactly one request per Sign call: a transport fault is terminal
// for the invocation and is never retried here, since a retry could race a
// slow-but-successful original attempt into a double signature.
type Client struct {
	// ServerAddr is the base URL of the custody network endpoint.
	ServerAddr string

	client *http.Client
	log    *slog.Logger
}

// NewClient creates a custody client with a bounded request timeout.
func NewClient(serverAddr string, log *slog.Logger) *Client {
	return &Client{
		ServerAddr: serverAddr,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Sign submits the payload for threshold signing under the given public key
// and signature name.
func (c *Client) Sign(ctx context.Context, dataToSign []byte, publicKey string, sigName string) error {
	body, err := json.Marshal(signRequest{
		ToSign:    "0x" + hex.EncodeToString(dataToSign),
		PublicKey: publicKey,
		SigName:   sigName,
	})
	if err != nil {
		return fmt.Errorf("could not marshal signing request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/sign", c.ServerAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach custody network: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("custody network returned non-200 response: %d", resp.StatusCode)
		}
		return fmt.Errorf("custody network returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	c.log.Info("Custody network accepted signing request",
		slog.String("sigName", sigName),
		slog.Int("payloadBytes", len(dataToSign)))
	return nil
}
