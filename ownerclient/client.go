// Package ownerclient is the reference OwnerClientPool/OwnerClient,
// built on github.com/valyala/fasthttp for low-overhead request/response
// against an owner's side-channel endpoint. The lom package only ever
// sees the core.OwnerClient/core.OwnerClientPool interfaces; this
// package is a pluggable default a host process wires in.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package ownerclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

var (
	_ core.OwnerClient     = (*Client)(nil)
	_ core.OwnerClientPool = (*Pool)(nil)
)

// Pool lazily opens (and caches forever) one Client per owner address.
type Pool struct {
	http *fasthttp.Client

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool() *Pool {
	return &Pool{
		http: &fasthttp.Client{
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: time.Minute,
		},
		clients: make(map[string]*Client),
	}
}

func (p *Pool) Get(owner core.OwnerAddress) (core.OwnerClient, error) {
	key := owner.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c := &Client{http: p.http, baseURL: fmt.Sprintf("http://%s:%d", owner.NodeIP, owner.Port)}
	p.clients[key] = c
	return c, nil
}

// Client talks to one owner's side-channel HTTP endpoint.
type Client struct {
	http    *fasthttp.Client
	baseURL string
}

func (c *Client) WaitForRefRemoved(ctx context.Context, id, generatorID core.ObjectID) error {
	url := fmt.Sprintf("%s/ref_removed?id=%s&generator=%s", c.baseURL, id.String(), generatorID.String())
	status, err := c.do(ctx, fasthttp.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "wait for ref removed")
	}
	if status != fasthttp.StatusOK {
		return errors.Errorf("wait for ref removed: unexpected status %d", status)
	}
	return nil
}

func (c *Client) AddSpilledURL(ctx context.Context, id core.ObjectID, u cos.ObjectURL, selfNodeID string) error {
	url := fmt.Sprintf("%s/add_spilled_url", c.baseURL)
	body := []byte(fmt.Sprintf(`{"id":%q,"url":%q,"node":%q}`, id.String(), u.String(), selfNodeID))
	status, err := c.do(ctx, fasthttp.MethodPost, url, body)
	if err != nil {
		return errors.Wrap(err, "add spilled url")
	}
	if status != fasthttp.StatusOK {
		return errors.Errorf("add spilled url: unexpected status %d", status)
	}
	return nil
}

// do runs req/resp on a goroutine so ctx cancellation is honored even
// though fasthttp.Client itself is not context-aware.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if body != nil {
		req.SetBody(body)
	}

	done := make(chan error, 1)
	go func() { done <- c.http.Do(req, resp) }()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return resp.StatusCode(), nil
	}
}
