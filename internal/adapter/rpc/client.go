package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fluid-presale/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Caller performs a single JSON-RPC method call and decodes the result into result.
type Caller interface {
	Call(ctx context.Context, method string, result any, params ...any) error
}

// Compile-time check
var _ Caller = (*Client)(nil)

// Client is a JSON-RPC 2.0 client speaking to one node endpoint over HTTP(S) or WS(S).
type Client struct {
	endpoint string
	client   *fasthttp.Client
	timeout  time.Duration
	logger   *zap.Logger
	nextID   atomic.Uint64
}

// NewClient creates a new JSON-RPC client for the endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if !isHTTP(endpoint) && !isWS(endpoint) {
		return nil, fmt.Errorf("%w: unsupported protocol in URL %s", apperrors.ErrInvalidInput, endpoint)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client: &fasthttp.Client{
			ReadTimeout: timeout,
		},
		timeout: timeout,
		logger:  logger.Named("RPCClient"),
	}, nil
}

// JSONRPCRequest defines the structure of an outgoing JSON-RPC request.
type JSONRPCRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// JSONRPCResponse defines the basic structure for a JSON-RPC response.
type JSONRPCResponse struct {
	ID      interface{}     `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError defines the structure for a JSON-RPC error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Call sends method with params and decodes the result. A JSON null result leaves
// pointer targets nil.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(JSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s request: %v", apperrors.ErrInvalidInput, method, err)
	}

	var body []byte
	if isWS(c.endpoint) {
		body, err = c.callWS(ctx, payload)
	} else {
		body, err = c.callHTTP(ctx, payload)
	}
	if err != nil {
		return err
	}
	return c.decodeResponse(method, body, result)
}

// Ping checks that the node answers eth_blockNumber and reports the round-trip latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var blockNumber string
	if err := c.Call(ctx, "eth_blockNumber", &blockNumber); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// callHTTP performs the JSON-RPC exchange over HTTP/HTTPS.
func (c *Client) callHTTP(ctx context.Context, payload []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	timeout := c.effectiveTimeout(ctx)
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: context deadline already passed for %s", apperrors.ErrTimeout, c.endpoint)
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			c.logger.Debug("HTTP RPC call timed out",
				zap.String("url", c.endpoint),
				zap.Duration("timeout", timeout),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: http request to %s timed out after %v: %v",
				apperrors.ErrTimeout, c.endpoint, timeout, err,
			)
		}
		c.logger.Debug("HTTP RPC request failed", zap.String("url", c.endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: http request to %s failed: %v",
			apperrors.ErrExternalServiceFailure, c.endpoint, err,
		)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Debug("HTTP RPC call returned non-OK status",
			zap.String("url", c.endpoint),
			zap.Int("statusCode", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: rpc %s returned non-OK http status: %d",
			apperrors.ErrExternalServiceFailure, c.endpoint, resp.StatusCode(),
		)
	}

	// The response is released on return.
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// callWS performs the JSON-RPC exchange over WSS/WS on a short-lived connection.
func (c *Client) callWS(ctx context.Context, payload []byte) ([]byte, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.timeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.logger.Debug("WSS dial failed", zap.String("url", c.endpoint), zap.Error(err))
		return nil, c.wrapWSError(ctx, "dial", err)
	}
	defer conn.Close()

	timeout := c.effectiveTimeout(ctx)
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug("WSS write message failed", zap.String("url", c.endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: wss write to %s failed: %v",
			apperrors.ErrExternalServiceFailure, c.endpoint, err,
		)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		c.logger.Debug("WSS read message failed", zap.String("url", c.endpoint), zap.Error(err))
		return nil, c.wrapWSError(ctx, "read from", err)
	}
	return message, nil
}

func (c *Client) wrapWSError(ctx context.Context, op string, err error) error {
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: wss %s %s context timed out: %v", apperrors.ErrTimeout, op, c.endpoint, ctxErr)
		}
		return fmt.Errorf("%w: wss %s %s context error: %v", apperrors.ErrExternalServiceFailure, op, c.endpoint, ctxErr)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: wss %s %s timed out: %v", apperrors.ErrTimeout, op, c.endpoint, err)
	}
	return fmt.Errorf("%w: wss %s %s failed: %v", apperrors.ErrExternalServiceFailure, op, c.endpoint, err)
}

// effectiveTimeout is the client timeout shortened to the context deadline.
func (c *Client) effectiveTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

// decodeResponse checks the JSON-RPC envelope and decodes its result.
func (c *Client) decodeResponse(method string, body []byte, result any) error {
	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.logger.Debug("RPC call failed to unmarshal JSON response",
			zap.String("method", method),
			zap.ByteString("body", body),
			zap.Error(err),
		)
		return fmt.Errorf("%w: rpc %s returned invalid JSON response: %v",
			apperrors.ErrExternalServiceFailure, c.endpoint, err,
		)
	}

	if rpcResp.Error != nil {
		c.logger.Debug("RPC call returned JSON-RPC error",
			zap.String("method", method),
			zap.Int("errorCode", rpcResp.Error.Code),
			zap.String("errorMessage", rpcResp.Error.Message),
		)
		return fmt.Errorf("%w: %s: %w", apperrors.ErrExternalServiceFailure, method, rpcResp.Error)
	}

	if rpcResp.Jsonrpc != "2.0" {
		return fmt.Errorf("%w: rpc %s returned invalid JSON-RPC structure",
			apperrors.ErrExternalServiceFailure, c.endpoint,
		)
	}

	if result == nil {
		return nil
	}
	raw := rpcResp.Result
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: rpc %s returned unexpected %s result: %v",
			apperrors.ErrExternalServiceFailure, c.endpoint, method, err,
		)
	}
	return nil
}

func isHTTP(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func isWS(rawURL string) bool {
	return strings.HasPrefix(rawURL, "wss://") || strings.HasPrefix(rawURL, "ws://")
}
