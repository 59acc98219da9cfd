package unifiedmcp

import (
	"context"
	"net/http"
)

// CreateTask creates a task. dependencies lists the ids of tasks it depends
// on and may be nil.
func (c *Client) CreateTask(ctx context.Context, title, description string, dependencies []string) (Task, error) {
	if dependencies == nil {
		dependencies = []string{}
	}
	data := Object{
		"title":        title,
		"description":  description,
		"dependencies": dependencies,
	}
	var out Task
	err := c.invoke(ctx, operation{
		name:    "create_task",
		event:   "task:create",
		payload: data,
		field:   "task",
		method:  http.MethodPost,
		path:    "/api/v1/tasks",
		body:    data,
	}, &out)
	return out, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var out Task
	err := c.invoke(ctx, operation{
		name:    "get_task",
		event:   "task:get",
		payload: Object{"taskId": taskID},
		field:   "task",
		method:  http.MethodGet,
		path:    taskPath(taskID),
	}, &out)
	return out, err
}

// ListTasks lists tasks. filter is passed to the server uninterpreted and may
// be nil.
func (c *Client) ListTasks(ctx context.Context, filter Object) ([]Task, error) {
	query, err := filterQuery(filter)
	if err != nil {
		return nil, err
	}
	var out []Task
	err = c.invoke(ctx, operation{
		name:    "list_tasks",
		event:   "task:list",
		payload: Object{"filter": filter},
		field:   "tasks",
		method:  http.MethodGet,
		path:    "/api/v1/tasks",
		query:   query,
	}, &out)
	return out, err
}

// UpdateTask applies updates to a task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, updates Object) (Task, error) {
	var out Task
	err := c.invoke(ctx, operation{
		name:    "update_task",
		event:   "task:update",
		payload: Object{"taskId": taskID, "updates": updates},
		field:   "task",
		method:  http.MethodPut,
		path:    taskPath(taskID),
		body:    updates,
	}, &out)
	return out, err
}

// DeleteTask deletes a task. Over HTTP a successful call always reports
// true; over realtime the server's success flag is returned.
func (c *Client) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	var ok bool
	err := c.invoke(ctx, operation{
		name:      "delete_task",
		event:     "task:delete",
		payload:   Object{"taskId": taskID},
		field:     "success",
		method:    http.MethodDelete,
		path:      taskPath(taskID),
		noContent: true,
	}, &ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// AddDependency makes taskID depend on dependsOnTaskID and returns the
// updated task.
func (c *Client) AddDependency(ctx context.Context, taskID, dependsOnTaskID string) (Task, error) {
	var out Task
	err := c.invoke(ctx, operation{
		name:    "add_dependency",
		event:   "task:addDependency",
		payload: Object{"taskId": taskID, "dependsOnTaskId": dependsOnTaskID},
		field:   "task",
		method:  http.MethodPost,
		path:    taskPath(taskID) + "/dependencies",
		body:    Object{"dependsOnTaskId": dependsOnTaskID},
	}, &out)
	return out, err
}

// RemoveDependency removes the dependency of taskID on dependsOnTaskID and
// returns the updated task.
func (c *Client) RemoveDependency(ctx context.Context, taskID, dependsOnTaskID string) (Task, error) {
	var out Task
	err := c.invoke(ctx, operation{
		name:    "remove_dependency",
		event:   "task:removeDependency",
		payload: Object{"taskId": taskID, "dependsOnTaskId": dependsOnTaskID},
		field:   "task",
		method:  http.MethodDelete,
		path:    taskPath(taskID) + "/dependencies/" + pathSegment(dependsOnTaskID),
	}, &out)
	return out, err
}

// GetNextTask returns the next available task, or nil when there is none.
func (c *Client) GetNextTask(ctx context.Context) (Task, error) {
	var out Task
	err := c.invoke(ctx, operation{
		name:   "get_next_task",
		event:  "task:getNext",
		field:  "task",
		method: http.MethodGet,
		path:   "/api/v1/tasks/next",
	}, &out)
	return out, err
}

func taskPath(taskID string) string {
	return "/api/v1/tasks/" + pathSegment(taskID)
}
