// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Значения по умолчанию
const (
	DefaultRetryAttempts  = 2
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
)

// Options настраивает переключение между узлами.
type Options struct {
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	// Metrics может быть nil.
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return o
}

// RPCClient распределяет запросы по списку RPC узлов (round-robin)
// и переключается на следующий узел при сетевой ошибке.
type RPCClient struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	opts    Options
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewClient создает новый RPC клиент
func NewClient(urls []string, opts Options, logger *zap.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &RPCClient{
		nodes:  nodes,
		urls:   urls,
		opts:   opts.withDefaults(),
		logger: logger.Named("rpc-client"),
	}, nil
}

// URLs возвращает адреса узлов.
func (c *RPCClient) URLs() []string {
	return append([]string(nil), c.urls...)
}

func (c *RPCClient) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	// Следующий запрос уйдет на следующий узел
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// ExecuteWithRetry выполняет RPC-запрос. Ошибки узла (JSON-RPC ответ с ошибкой)
// возвращаются сразу, сетевые ошибки приводят к переключению на следующий узел
// после паузы RetryDelay.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *solanarpc.Client) error) error {
	var url string
	attempt := 0

	op := func() (struct{}, error) {
		attempt++
		var node *solanarpc.Client
		node, url = c.next()

		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		start := time.Now()
		err := operation(reqCtx, node)
		c.opts.Metrics.recordLatency(method, start, err)
		timedOut := errors.Is(reqCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if timedOut {
			err = ErrTimeout
		}
		rpcErr := NewError(err, url, method)
		if !IsRetryableError(rpcErr) {
			return struct{}{}, backoff.Permanent(rpcErr)
		}
		return struct{}{}, rpcErr
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.RetryDelay)),
		backoff.WithMaxTries(uint(c.opts.RetryAttempts)),
		backoff.WithNotify(func(err error, _ time.Duration) {
			c.logger.Debug("RPC request failed, trying next node",
				zap.String("method", method),
				zap.String("url", url),
				zap.Error(err),
				zap.Int("attempt", attempt))
			c.opts.Metrics.recordFailover(method)
		}),
	)
	return err
}
