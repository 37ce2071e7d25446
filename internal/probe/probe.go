package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"edgeprobe/internal/models"
)

// maxBody caps how much of a response is read.
const maxBody = 16 << 20

const timeoutMessage = "Request timed out"

// RPCChecker issues JSON-RPC 2.0 calls over HTTP.
type RPCChecker struct {
	Client *http.Client
	now    func() time.Time
}

// NewRPCChecker creates a checker. The per-call timeout comes from the call.
func NewRPCChecker() *RPCChecker {
	return &RPCChecker{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Probe runs one timed call. Failures are reported in the Outcome, never returned.
func (c *RPCChecker) Probe(ctx context.Context, endpoint string, call models.Call) models.Outcome {
	params := call.Params
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: call.Method, Params: params, ID: 1})
	if err != nil {
		return c.failed(c.now(), fmt.Sprintf("encoding request: %v", err))
	}

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.failed(c.now(), err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return c.failed(start, transportMessage(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return c.failed(start, fmt.Sprintf("HTTP error: %d", resp.StatusCode))
	}

	var decoded response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&decoded); err != nil {
		return c.failed(start, transportMessage(ctx, fmt.Errorf("malformed response: %w", err)))
	}
	latency := c.now().Sub(start)

	if len(decoded.Error) > 0 && !bytes.Equal(decoded.Error, []byte("null")) {
		return c.failed(start, "RPC error: "+string(decoded.Error))
	}
	if len(decoded.Result) == 0 {
		return c.failed(start, "malformed response: missing result")
	}

	return models.Outcome{
		Timestamp: stamp(start),
		LatencyMS: float64(latency.Microseconds()) / 1000,
		Success:   true,
	}
}

func (c *RPCChecker) failed(start time.Time, msg string) models.Outcome {
	return models.Outcome{Timestamp: stamp(start), Success: false, Error: msg}
}

func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func transportMessage(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutMessage
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return timeoutMessage
	}
	return err.Error()
}
