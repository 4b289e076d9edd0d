package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/taskgraph"
)

// sharedHTTPClient is reused across every HTTPRequest invocation to pool TCP
// connections, grounded on http_client's CreateHttpClient asset.
var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// HTTPRequest issues a single HTTP request and logs the response status and
// body length. Grounded on http_client/http_request's OnRunHttpRequest
// handler, collapsed onto the shared client instead of an injected asset
// dependency since output/dependency data-flow between tasks is out of
// scope here.
func HTTPRequest(ctx context.Context, task *taskgraph.Task) error {
	args := task.Args()
	logger := ctxlog.FromContext(ctx).With("action", "http_request", "task", task.ID())

	method := stringArg(args, "method")
	if method == "" {
		method = http.MethodGet
	}
	url := stringArg(args, "url")

	logger.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Info("Received HTTP response", "status", resp.Status, "body_bytes", len(bodyBytes))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http request to %q failed with status %s", url, resp.Status)
	}
	return nil
}
