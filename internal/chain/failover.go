package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/metrics"
)

// Failover executes reads against an ordered list of endpoints. Each endpoint
// is tried exactly once per read; the first success wins.
type Failover struct {
	readers []BlockchainReader
	timeout time.Duration
	logger  *slog.Logger
}

// NewFailover creates a Failover over readers in priority order. timeout
// bounds each individual attempt; zero disables the per-attempt deadline.
func NewFailover(readers []BlockchainReader, timeout time.Duration, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{
		readers: readers,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "rpc_failover")),
	}
}

// Dial builds a Failover with one EthReader per endpoint URL.
func Dial(endpoints []string, timeout time.Duration, logger *slog.Logger) *Failover {
	readers := make([]BlockchainReader, 0, len(endpoints))
	for _, ep := range endpoints {
		readers = append(readers, NewEthReader(ep))
	}
	return NewFailover(readers, timeout, logger)
}

// Endpoints returns the number of configured readers.
func (f *Failover) Endpoints() int { return len(f.readers) }

// Close releases every reader that holds a connection.
func (f *Failover) Close() {
	for _, r := range f.readers {
		if c, ok := r.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Query performs msg as an eth_call and hands the raw result to decode. A
// transport error or a decode error both move on to the next endpoint. When
// every endpoint has failed the returned error is a *domain.RpcExhaustedError
// carrying the last underlying failure.
func (f *Failover) Query(ctx context.Context, msg ethereum.CallMsg, decode func([]byte) error) error {
	return f.run(ctx, "eth_call", func(ctx context.Context, r BlockchainReader) error {
		out, err := r.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		if err := decode(out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	})
}

// Code returns the bytecode deployed at addr using the same failover policy
// as Query.
func (f *Failover) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	err := f.run(ctx, "eth_getCode", func(ctx context.Context, r BlockchainReader) error {
		c, err := r.CodeAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		code = c
		return nil
	})
	return code, err
}

func (f *Failover) run(ctx context.Context, method string, attempt func(context.Context, BlockchainReader) error) error {
	var last error
	for i, r := range f.readers {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if f.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.timeout)
		}
		err := attempt(attemptCtx, r)
		cancel()

		if err == nil {
			metrics.RPCCallsTotal.WithLabelValues(r.Endpoint(), "ok").Inc()
			return nil
		}
		// The caller gave up; this is not an endpoint failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.RPCCallsTotal.WithLabelValues(r.Endpoint(), "error").Inc()
		f.logger.WarnContext(ctx, "chain: endpoint failed, trying next",
			slog.String("method", method),
			slog.Int("index", i),
			slog.String("endpoint", r.Endpoint()),
			slog.String("error", err.Error()),
		)
		last = fmt.Errorf("%s: %w", r.Endpoint(), err)
	}

	metrics.RPCExhaustedTotal.Inc()
	if last == nil {
		last = errors.New("no endpoints configured")
	}
	return &domain.RpcExhaustedError{Endpoints: len(f.readers), Last: last}
}
