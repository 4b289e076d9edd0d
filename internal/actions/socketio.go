package actions

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/taskgraph"
)

// sioResult carries the outcome of a socketio wait through a channel so it
// can be selected against the task's context alongside a timeout.
type sioResult struct {
	err error
}

// WaitForSocketIOEvent connects to a socket.io namespace, optionally emits an
// event once connected, and blocks until a named event arrives or the task's
// timeout expires. Grounded on modules/socketio's OnRunSocketIO handler,
// adapted to the taskgraph.Task argument shape — there is no typed Output here,
// since inter-task data passing is out of scope; the action only reports
// success or failure.
func WaitForSocketIOEvent(ctx context.Context, task *taskgraph.Task) error {
	args := task.Args()
	logger := ctxlog.FromContext(ctx).With("action", "wait_for_socketio_event", "task", task.ID())
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	rawURL := stringArg(args, "url")
	namespace := stringArg(args, "namespace")
	onEvent := stringArg(args, "on_event")
	emitEvent := stringArg(args, "emit_event")
	insecureSkipVerify := boolArg(args, "insecure_skip_verify")

	var isConnected atomic.Bool

	timeout, err := time.ParseDuration(stringArg(args, "timeout"))
	if err != nil {
		logger.Warn("Failed to parse timeout, using default 10s", "error", err)
		timeout = 10 * time.Second
	}

	done := make(chan sioResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)

	if insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Successfully connected", "namespace", namespace, "sid", io.Id())
		if emitEvent != "" {
			emitData := mapArg(args, "emit_data")
			jsonData, _ := json.Marshal(emitData)
			logger.Info("Emitting event", "event", emitEvent, "data", string(jsonData))
			io.Emit(emitEvent, emitData)
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				done <- sioResult{err: e}
				return
			}
		}
		done <- sioResult{err: fmt.Errorf("connect_error")}
	})

	io.On(types.EventName(onEvent), func(...any) {
		done <- sioResult{}
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event %q", onEvent)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.err
	}
}

func stringArg(args map[string]cty.Value, name string) string {
	v, ok := args[name]
	if !ok || v.IsNull() || !v.Type().Equals(cty.String) {
		return ""
	}
	return v.AsString()
}

func boolArg(args map[string]cty.Value, name string) bool {
	v, ok := args[name]
	if !ok || v.IsNull() || !v.Type().Equals(cty.Bool) {
		return false
	}
	return v.True()
}

func mapArg(args map[string]cty.Value, name string) map[string]any {
	v, ok := args[name]
	if !ok || v.IsNull() || !v.CanIterateElements() {
		return nil
	}
	out := make(map[string]any)
	it := v.ElementIterator()
	for it.Next() {
		k, val := it.Element()
		out[k.AsString()] = ctyToGo(val)
	}
	return out
}

func ctyToGo(v cty.Value) any {
	if v.IsNull() {
		return nil
	}
	switch {
	case v.Type().Equals(cty.String):
		return v.AsString()
	case v.Type().Equals(cty.Bool):
		return v.True()
	case v.Type().Equals(cty.Number):
		f, _ := v.AsBigFloat().Float64()
		return f
	default:
		return v.GoString()
	}
}
