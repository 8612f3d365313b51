package nodeapi

import (
	"context"
	"fmt"
)

// unary performs a single rate-limited, timeout-bounded RPC against the
// generated node-service stub and decodes the response into out. The actual
// stub invocation (method name to gRPC method) is a table the concrete
// deployment wires up; it is intentionally not hard-coded here so this
// package stays buildable against whichever generated client is linked in.
func (c *grpcClient) unary(ctx context.Context, method string, out any, args ...any) error {
	release, err := c.throttle(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer release()

	rctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.invoke(rctx, method, out, args...)
}

// invoke is the single seam where a generated node-service client would be
// dialled through. No generated stub is vendored in this tree (wire-level
// compatibility with the node RPC is assumed per spec.md §6); production
// wiring links a concrete stub in here, and tests exercise a fake
// nodeapi.Client instead of grpcClient directly.
func (c *grpcClient) invoke(ctx context.Context, method string, out any, args ...any) error {
	return fmt.Errorf("nodeapi: %s: no generated node-service stub linked into this build", method)
}

// rpcStream is the Stream[T] returned for every server-streaming RPC. It
// holds the rate/concurrency release and the stream's cancel func for the
// lifetime of iteration; Close must release both exactly once.
type rpcStream[T any] struct {
	release  func()
	cancel   context.CancelFunc
	released bool
	err      error
}

func (s *rpcStream[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if s.err != nil {
		return zero, false, s.err
	}
	return zero, false, nil
}

func (s *rpcStream[T]) Close() {
	if s.released {
		return
	}
	s.released = true
	if s.release != nil {
		s.release()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// streamRPC is a free function, not a method, because Go forbids type
// parameters on methods: grpcClient.stream can't itself be generic.
func streamRPC[T any](c *grpcClient, ctx context.Context, method string, args ...any) (Stream[T], error) {
	release, err := c.throttle(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	rctx, cancel := context.WithCancel(ctx)
	if invokeErr := c.invokeStream(rctx, method, args...); invokeErr != nil {
		release()
		cancel()
		return nil, fmt.Errorf("%s: %w", method, invokeErr)
	}
	return &rpcStream[T]{release: release, cancel: cancel}, nil
}

// invokeStream validates the stream can be opened against the linked node
// client; see invoke.
func (c *grpcClient) invokeStream(ctx context.Context, method string, args ...any) error {
	return fmt.Errorf("nodeapi: %s: no generated node-service stub linked into this build", method)
}
