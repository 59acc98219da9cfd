package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"UnifiedMCP-Client/internal/realtime/realtimetest"
	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

func main() {
	tasks := map[string]map[string]any{}
	srv := realtimetest.NewServer(func(event string, data json.RawMessage) (any, bool) {
		var payload map[string]any
		_ = json.Unmarshal(data, &payload)
		switch event {
		case "task:create":
			id := fmt.Sprintf("task-%d", len(tasks)+1)
			task := map[string]any{"id": id, "title": payload["title"], "status": "pending"}
			tasks[id] = task
			return map[string]any{"success": true, "task": task}, true
		case "task:getNext":
			for _, task := range tasks {
				return map[string]any{"success": true, "task": task}, true
			}
			return map[string]any{"success": true, "task": nil}, true
		default:
			return map[string]any{"success": false, "error": "unsupported event " + event}, true
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := unifiedmcp.NewClient(ctx, srv.URL, unifiedmcp.WithTimeout(2*time.Second))
	if err != nil {
		panic(err)
	}
	defer client.Close()
	fmt.Printf("realtime connected: %v\n", client.Connected())

	updates := make(chan any, 1)
	client.On(unifiedmcp.EventTaskUpdated, unifiedmcp.HandlerFunc(func(data any) {
		updates <- data
	}))

	task, err := client.CreateTask(ctx, "index docs", "crawl and index the handbook", nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("created task %v\n", task["id"])

	next, err := client.GetNextTask(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("next task %v (status=%v)\n", next["id"], next["status"])

	if _, err := client.ListTools(ctx); err != nil {
		fmt.Printf("list tools failed as expected: %v\n", err)
	}

	_ = srv.Push(unifiedmcp.EventTaskUpdated, map[string]any{"id": task["id"], "status": "done"})
	select {
	case update := <-updates:
		fmt.Printf("push update: %v\n", update)
	case <-ctx.Done():
		fmt.Println("no push update received")
	}
}
