package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"closedgroups/internal/domain"
)

// storeRequest is the body of POST /msg/{pk}.
type storeRequest struct {
	Data []byte `json:"data"`
}

// HTTP is a NetworkLayer that talks to relay servers over HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the relay at base. A nil client means
// http.DefaultClient.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: client}
}

func (c *HTTP) GetSwarm(ctx context.Context, pk domain.X25519Public) ([]domain.Node, error) {
	var nodes []domain.Node
	if err := c.getJSON(ctx, c.Base, "/swarm/"+pk.String(), &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *HTTP) FetchMessages(
	ctx context.Context,
	node domain.Node,
	pk domain.X25519Public,
	lastHash string,
) ([]domain.RawEnvelope, error) {
	base := strings.TrimRight(node.URL, "/")
	if base == "" {
		base = c.Base
	}
	path := "/msg/" + pk.String()
	if lastHash != "" {
		path += "?last_hash=" + url.QueryEscape(lastHash)
	}
	var envs []domain.RawEnvelope
	if err := c.getJSON(ctx, base, path, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

func (c *HTTP) StoreMessage(ctx context.Context, pk domain.X25519Public, data []byte) error {
	return c.post(ctx, "/msg/"+pk.String(), storeRequest{Data: data}, nil)
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(http.MethodPost, c.Base+path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, base, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(http.MethodGet, base+path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(method, u string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("relay %s %s: %s: %s", strings.ToLower(method), u, resp.Status, s)
	}
	return fmt.Errorf("relay %s %s: %s", strings.ToLower(method), u, resp.Status)
}

var _ domain.NetworkLayer = (*HTTP)(nil)
