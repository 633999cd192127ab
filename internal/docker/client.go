// Package docker talks to the Docker Engine through the official SDK.
package docker

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"
)

var errNoDaemon = errors.New("docker: client not configured")

// Client owns one SDK connection. Every call takes argument vectors, never a shell string.
type Client struct {
	api *client.Client
}

// New connects using DOCKER_HOST and friends. A non-empty host wins over the environment.
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker: connect: %w", err)
	}
	return &Client{api: api}, nil
}

// Ping fails unless the daemon answered with a negotiated API version.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the daemon's API version.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c == nil || c.api == nil {
		return "", errNoDaemon
	}
	pong, err := c.api.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("docker: ping: %w", err)
	}
	if pong.APIVersion == "" {
		return "", errors.New("docker: daemon reported no api version")
	}
	return pong.APIVersion, nil
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}
