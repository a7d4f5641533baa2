// Package client provides a Go SDK for the task queue HTTP API.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Submit a task
//	id, err := c.SubmitTask(ctx, client.SubmitTaskRequest{
//	    Function: "resize",
//	    Kwargs:   map[string]any{"width": 640},
//	    Creator:  42,
//	})
//
//	// Poll for the outcome
//	status, err := c.GetStatus(ctx, id)
//	if status == "done" {
//	    result, _ := c.GetResult(ctx, id)
//	    fmt.Println(string(result))
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithTimeout(10 * time.Second),
//	    client.WithHeader("X-Env", "staging"),
//	)
package client
