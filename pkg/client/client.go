// Package client wraps the controller's REST API for CLI usage. It
// plays the same role a gRPC+mTLS client would, but speaks JSON
// over HTTP with a bearer token, matching the server this module
// actually exposes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/vcp/pkg/types"
)

// Client is a thin REST client for controllerd's API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client pointed at addr (e.g. "http://127.0.0.1:8080").
func NewClient(addr string) *Client {
	return &Client{
		baseURL: addr,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithToken creates a Client that is already authenticated
// with a previously issued bearer token.
func NewClientWithToken(addr, token string) *Client {
	c := NewClient(addr)
	c.token = token
	return c
}

// Token returns the session token obtained by Login, for callers that
// want to cache it (e.g. virtctl's config file).
func (c *Client) Token() string { return c.token }

// Login exchanges a username/password for a session token and stores
// it on the client for subsequent requests.
func (c *Client) Login(username, password string) error {
	var resp struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := c.do(context.Background(), http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp); err != nil {
		return err
	}
	c.token = resp.Auth.Token
	return nil
}

type pageEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("request failed: %s: %s", resp.Status, string(data))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) list(ctx context.Context, path string, out any) error {
	var page pageEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return err
	}
	return json.Unmarshal(page.Data, out)
}

// VMs

func (c *Client) ListVMs(ctx context.Context) ([]*types.VM, error) {
	var vms []*types.VM
	err := c.list(ctx, "/api/vms", &vms)
	return vms, err
}

func (c *Client) GetVM(ctx context.Context, id string) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodGet, "/api/vms/"+url.PathEscape(id), nil, &vm)
	return &vm, err
}

func (c *Client) CreateVM(ctx context.Context, req any) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodPost, "/api/vms", req, &vm)
	return &vm, err
}

func (c *Client) DeleteVM(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/vms/"+url.PathEscape(id), nil, nil)
}

func (c *Client) StartVM(ctx context.Context, id string) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodPost, "/api/vms/"+url.PathEscape(id)+"/start", nil, &vm)
	return &vm, err
}

func (c *Client) StopVM(ctx context.Context, id string, force bool) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodPost, "/api/vms/"+url.PathEscape(id)+"/stop", map[string]bool{"force": force}, &vm)
	return &vm, err
}

func (c *Client) RestartVM(ctx context.Context, id string) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodPost, "/api/vms/"+url.PathEscape(id)+"/restart", nil, &vm)
	return &vm, err
}

func (c *Client) MigrateVM(ctx context.Context, id, targetNodeID string) (*types.VM, error) {
	var vm types.VM
	err := c.do(ctx, http.MethodPost, "/api/vms/"+url.PathEscape(id)+"/migrate", map[string]string{"target_node_id": targetNodeID}, &vm)
	return &vm, err
}

// Volumes

func (c *Client) ListVolumes(ctx context.Context) ([]*types.Volume, error) {
	var vols []*types.Volume
	err := c.list(ctx, "/api/storage/volumes", &vols)
	return vols, err
}

func (c *Client) GetVolume(ctx context.Context, id string) (*types.Volume, error) {
	var vol types.Volume
	err := c.do(ctx, http.MethodGet, "/api/storage/volumes/"+url.PathEscape(id), nil, &vol)
	return &vol, err
}

func (c *Client) CreateVolume(ctx context.Context, req any) (*types.Volume, error) {
	var vol types.Volume
	err := c.do(ctx, http.MethodPost, "/api/storage/volumes", req, &vol)
	return &vol, err
}

func (c *Client) DeleteVolume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/storage/volumes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ResizeVolume(ctx context.Context, id string, sizeGB float64) (*types.Volume, error) {
	var vol types.Volume
	err := c.do(ctx, http.MethodPost, "/api/storage/volumes/"+url.PathEscape(id)+"/resize", map[string]float64{"size_gb": sizeGB}, &vol)
	return &vol, err
}

func (c *Client) CloneVolume(ctx context.Context, id, name string) (*types.Volume, error) {
	var vol types.Volume
	err := c.do(ctx, http.MethodPost, "/api/storage/volumes/"+url.PathEscape(id)+"/clone", map[string]string{"name": name}, &vol)
	return &vol, err
}

// Snapshots

func (c *Client) ListSnapshots(ctx context.Context) ([]*types.Snapshot, error) {
	var snaps []*types.Snapshot
	err := c.list(ctx, "/api/storage/snapshots", &snaps)
	return snaps, err
}

func (c *Client) CreateSnapshot(ctx context.Context, volumeID, name string) (*types.Snapshot, error) {
	var snap types.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/storage/snapshots", map[string]string{"volume_id": volumeID, "name": name}, &snap)
	return &snap, err
}

func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/storage/snapshots/"+url.PathEscape(id), nil, nil)
}

func (c *Client) RestoreSnapshot(ctx context.Context, id string) (*types.Volume, error) {
	var vol types.Volume
	err := c.do(ctx, http.MethodPost, "/api/storage/snapshots/"+url.PathEscape(id)+"/restore", nil, &vol)
	return &vol, err
}

// Networks

func (c *Client) ListNetworks(ctx context.Context) ([]*types.Network, error) {
	var nets []*types.Network
	err := c.list(ctx, "/api/networks", &nets)
	return nets, err
}

func (c *Client) CreateNetwork(ctx context.Context, req any) (*types.Network, error) {
	var net types.Network
	err := c.do(ctx, http.MethodPost, "/api/networks", req, &net)
	return &net, err
}

func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/networks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AllocateIP(ctx context.Context, networkID string) (*types.IPAllocation, error) {
	var alloc types.IPAllocation
	err := c.do(ctx, http.MethodPost, "/api/networks/"+url.PathEscape(networkID)+"/allocate-ip", nil, &alloc)
	return &alloc, err
}

// Nodes

func (c *Client) ListNodes(ctx context.Context) ([]*types.Node, error) {
	var nodes []*types.Node
	err := c.list(ctx, "/api/nodes", &nodes)
	return nodes, err
}

func (c *Client) GetNode(ctx context.Context, id string) (*types.Node, error) {
	var node types.Node
	err := c.do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(id), nil, &node)
	return &node, err
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/nodes/"+url.PathEscape(id), nil, nil)
}

// GenerateJoinToken requests a join token for a new agent or controller node.
func (c *Client) GenerateJoinToken(ctx context.Context, role string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/nodes", map[string]string{"role": role}, &resp)
	return resp.Token, err
}
