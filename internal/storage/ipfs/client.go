// Package ipfs uploads content to an IPFS node over the Kubo RPC API and
// resolves content identifiers to public gateway URLs.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/nftbazaar/marketd/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Config holds the IPFS node and gateway endpoints.
type Config struct {
	// APIURL is the Kubo RPC endpoint, e.g. http://127.0.0.1:5001.
	APIURL string
	// GatewayURL is the public HTTP gateway used to build retrieval URLs,
	// e.g. https://ipfs.io.
	GatewayURL string
	// Timeout bounds each upload request. Zero means 30s.
	Timeout time.Duration
}

// Client implements domain.StorageGateway against a Kubo node.
type Client struct {
	api     string
	gateway string
	http    *http.Client
	logger  *slog.Logger
}

// New validates the configured endpoints and returns a Client. No network
// call is made; a dead node surfaces on the first Add.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	api, err := url.Parse(cfg.APIURL)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return nil, fmt.Errorf("ipfs: invalid api url %q", cfg.APIURL)
	}
	gw, err := url.Parse(cfg.GatewayURL)
	if err != nil || gw.Scheme == "" || gw.Host == "" {
		return nil, fmt.Errorf("ipfs: invalid gateway url %q", cfg.GatewayURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		api:     strings.TrimRight(cfg.APIURL, "/"),
		gateway: strings.TrimRight(cfg.GatewayURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "ipfs")),
	}, nil
}

// addResponse is the Kubo /api/v0/add reply for a single file.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Add pins the given bytes on the node and returns the content identifier.
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.Join(domain.ErrUpload, errors.New("ipfs: empty payload"))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "file")
	if err != nil {
		return "", fmt.Errorf("ipfs: build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("ipfs: build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("ipfs: build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", fmt.Errorf("ipfs: build add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Join(domain.ErrUpload, fmt.Errorf("ipfs: add: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Join(domain.ErrUpload,
			fmt.Errorf("ipfs: add: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var r addResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", errors.Join(domain.ErrUpload, fmt.Errorf("ipfs: decode add response: %w", err))
	}
	if _, err := cid.Decode(r.Hash); err != nil {
		return "", errors.Join(domain.ErrUpload, fmt.Errorf("ipfs: node returned invalid cid %q: %w", r.Hash, err))
	}

	c.logger.DebugContext(ctx, "content pinned",
		slog.String("cid", r.Hash),
		slog.Int("bytes", len(data)),
	)
	return r.Hash, nil
}

// AddJSON marshals v and pins the resulting document, returning its CID.
func (c *Client) AddJSON(ctx context.Context, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ipfs: marshal json document: %w", err)
	}
	return c.Add(ctx, data)
}

// GatewayURL resolves a CID or /ipfs/ path to a retrieval URL on the
// configured gateway.
func (c *Client) GatewayURL(path string) string {
	path = strings.TrimPrefix(path, "/ipfs/")
	return c.gateway + "/ipfs/" + path
}

var _ domain.StorageGateway = (*Client)(nil)
