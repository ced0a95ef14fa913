/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"context"
	"fmt"
	"strings"
)

type route struct {
	prefix string
	client Client
}

// Router dispatches chat calls to the client owning the requested model,
// matched by model-name prefix. Registration order decides ties.
type Router struct {
	routes []route
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register binds a model-name prefix to a client.
func (r *Router) Register(prefix string, c Client) {
	r.routes = append(r.routes, route{prefix: prefix, client: c})
}

// Chat implements Client.
func (r *Router) Chat(ctx context.Context, req *Request) (*Response, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(req.Model, rt.prefix) {
			return rt.client.Chat(ctx, req)
		}
	}
	return nil, fmt.Errorf("no provider registered for model %q", req.Model)
}
