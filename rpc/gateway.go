// Package rpc sends JSON-RPC calls to blockchain nodes. Protocol-level node
// errors are carried in the Response, never as Go errors; only transport
// failures surface as errors from Send.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/tranvictor/walletd/networks"
)

const TIMEOUT time.Duration = 4 * time.Second

// Error is a protocol-level JSON-RPC error reported by a node.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is the tagged result of a Send: exactly one of Result and Error
// is set.
type Response struct {
	Result json.RawMessage
	Error  *Error
}

// UnmarshalResult decodes the success payload into out.
func (r *Response) UnmarshalResult(out interface{}) error {
	if r.Error != nil {
		return fmt.Errorf("response carries no result: %s", r.Error.Message)
	}
	return json.Unmarshal(r.Result, out)
}

type node struct {
	name string
	url  string

	mu     sync.Mutex
	client *gethrpc.Client
}

func (n *node) getClient() (*gethrpc.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		return n.client, nil
	}
	client, err := gethrpc.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to %s: %w", n.name, err)
	}
	n.client = client
	return n.client, nil
}

func (n *node) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	client, err := n.getClient()
	if err != nil {
		return nil, err
	}
	timeout, cancel := context.WithTimeout(ctx, TIMEOUT)
	defer cancel()
	var result json.RawMessage
	err = client.CallContext(timeout, &result, method, params...)
	return result, err
}

// Gateway manages one node pool per chain and fans calls out to all nodes of
// the requested chain, returning the first success.
type Gateway struct {
	mu     sync.Mutex
	pools  map[int64][]*node
	logger *slog.Logger
}

func NewGateway(logger *slog.Logger) *Gateway {
	return &Gateway{
		pools:  map[int64][]*node{},
		logger: logger,
	}
}

func (g *Gateway) nodesFor(chainID int64) ([]*node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nodes, found := g.pools[chainID]; found {
		return nodes, nil
	}
	network, err := networks.GetNetworkByChainID(chainID)
	if err != nil {
		return nil, err
	}
	nodes := []*node{}
	for name, url := range networks.GetNodes(network) {
		nodes = append(nodes, &node{name: name, url: url})
	}
	g.pools[chainID] = nodes
	return nodes, nil
}

type callResult struct {
	node   string
	result json.RawMessage
	err    error
}

// Send calls method on every node of the chain in parallel. The first
// successful answer wins. A JSON-RPC error answered by a node is a protocol
// outcome: when no node succeeds and at least one answered, Send returns a
// Response carrying that error and a nil Go error. Only when every node
// failed at the transport level does Send return an error.
func (g *Gateway) Send(
	ctx context.Context,
	chainID int64,
	method string,
	params ...interface{},
) (*Response, error) {
	nodes, err := g.nodesFor(chainID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured for chain %d", chainID)
	}

	resCh := make(chan callResult, len(nodes))
	for i := range nodes {
		n := nodes[i]
		go func() {
			result, err := n.call(ctx, method, params...)
			resCh <- callResult{node: n.name, result: result, err: err}
		}()
	}

	var protoErr *Error
	transportErrs := []error{}
	for i := 0; i < len(nodes); i++ {
		res := <-resCh
		if res.err == nil {
			return &Response{Result: res.result}, nil
		}
		if perr := asProtocolError(res.err); perr != nil {
			if protoErr == nil {
				protoErr = perr
			}
			continue
		}
		transportErrs = append(transportErrs, fmt.Errorf("%s: %w", res.node, res.err))
	}

	if protoErr != nil {
		return &Response{Error: protoErr}, nil
	}
	return nil, fmt.Errorf(
		"couldn't reach any node of chain %d: %w",
		chainID, errors.Join(transportErrs...),
	)
}

// asProtocolError converts a geth rpc error into our protocol Error when the
// node actually answered, or nil for transport-level failures.
func asProtocolError(err error) *Error {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return nil
	}
	result := &Error{
		Code:    rpcErr.ErrorCode(),
		Message: rpcErr.Error(),
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		result.Data = dataErr.ErrorData()
	}
	return result
}
