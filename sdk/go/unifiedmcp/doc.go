// Package unifiedmcp is a Go client for the Unified MCP Server.
//
// Every domain call is sent over the realtime (Socket.IO) channel while it is
// connected and over the REST API otherwise. Realtime calls block until the
// server acknowledges them or the client timeout elapses:
//
//	client, err := unifiedmcp.NewClient(ctx, "http://localhost:3000",
//		unifiedmcp.WithAPIKey(os.Getenv("UNIFIEDMCP_API_KEY")))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	task, err := client.CreateTask(ctx, "index docs", "crawl and index", nil)
//
// Push notifications are delivered to handlers registered with On, one at a
// time and in arrival order. Handlers may call the client.
package unifiedmcp
