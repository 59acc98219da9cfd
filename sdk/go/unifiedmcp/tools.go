package unifiedmcp

import (
	"context"
	"net/http"
)

// ListTools lists the tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	err := c.invoke(ctx, operation{
		name:   "list_tools",
		event:  "tool:list",
		field:  "tools",
		method: http.MethodGet,
		path:   "/api/v1/tools",
	}, &out)
	return out, err
}

// ExecuteTool runs the named tool with parameters, which may be nil, and
// returns its result as decoded JSON.
func (c *Client) ExecuteTool(ctx context.Context, name string, parameters Object) (any, error) {
	if parameters == nil {
		parameters = Object{}
	}
	var out any
	err := c.invoke(ctx, operation{
		name:    "execute_tool",
		event:   "tool:execute",
		payload: Object{"name": name, "parameters": parameters},
		field:   "result",
		method:  http.MethodPost,
		path:    "/api/v1/tools/" + pathSegment(name) + "/execute",
		body:    Object{"parameters": parameters},
	}, &out)
	return out, err
}
