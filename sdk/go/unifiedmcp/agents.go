package unifiedmcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// CreateAgent creates an agent from config.
func (c *Client) CreateAgent(ctx context.Context, config Object) (Agent, error) {
	var out Agent
	err := c.invoke(ctx, operation{
		name:    "create_agent",
		event:   "agent:create",
		payload: config,
		field:   "agent",
		method:  http.MethodPost,
		path:    "/api/v1/agents",
		body:    config,
	}, &out)
	return out, err
}

// GetAgent fetches an agent by id.
func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	var out Agent
	err := c.invoke(ctx, operation{
		name:    "get_agent",
		event:   "agent:get",
		payload: Object{"agentId": agentID},
		field:   "agent",
		method:  http.MethodGet,
		path:    agentPath(agentID),
	}, &out)
	return out, err
}

// ListAgents lists agents. filter is passed to the server uninterpreted and
// may be nil.
func (c *Client) ListAgents(ctx context.Context, filter Object) ([]Agent, error) {
	query, err := filterQuery(filter)
	if err != nil {
		return nil, err
	}
	var out []Agent
	err = c.invoke(ctx, operation{
		name:    "list_agents",
		event:   "agent:list",
		payload: Object{"filter": filter},
		field:   "agents",
		method:  http.MethodGet,
		path:    "/api/v1/agents",
		query:   query,
	}, &out)
	return out, err
}

// UpdateAgent replaces the configuration of an agent.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, config Object) (Agent, error) {
	var out Agent
	err := c.invoke(ctx, operation{
		name:    "update_agent",
		event:   "agent:update",
		payload: Object{"agentId": agentID, "config": config},
		field:   "agent",
		method:  http.MethodPut,
		path:    agentPath(agentID),
		body:    config,
	}, &out)
	return out, err
}

// DeleteAgent deletes an agent. Over HTTP a successful call always reports
// true; over realtime the server's success flag is returned.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) (bool, error) {
	var ok bool
	err := c.invoke(ctx, operation{
		name:      "delete_agent",
		event:     "agent:delete",
		payload:   Object{"agentId": agentID},
		field:     "success",
		method:    http.MethodDelete,
		path:      agentPath(agentID),
		noContent: true,
	}, &ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RunAgent asks an agent to perform task and returns its result as decoded
// JSON.
func (c *Client) RunAgent(ctx context.Context, agentID, task string) (any, error) {
	var out any
	err := c.invoke(ctx, operation{
		name:    "run_agent",
		event:   "agent:run",
		payload: Object{"agentId": agentID, "task": task},
		field:   "result",
		method:  http.MethodPost,
		path:    agentPath(agentID) + "/run",
		body:    Object{"task": task},
	}, &out)
	return out, err
}

func agentPath(agentID string) string {
	return "/api/v1/agents/" + pathSegment(agentID)
}

// filterQuery JSON-encodes a non-empty filter into the "filter" parameter.
func filterQuery(filter Object) (url.Values, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(filter)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodeFailure, err, "encode filter")
	}
	return url.Values{"filter": []string{string(encoded)}}, nil
}
