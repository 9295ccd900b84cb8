package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Etcd is a Backend over an etcd v3 cluster.
type Etcd struct {
	client  *clientv3.Client
	timeout time.Duration // per-request; 0 leaves deadlines to the caller
}

// DialEtcd connects to the cluster described by cfg.
func DialEtcd(cfg EtcdConfig) (*Etcd, error) {
	logger, err := cfg.clientLogger()
	if err != nil {
		return nil, fmt.Errorf("store: etcd logger: %w", err)
	}

	ccfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Logger:      logger,
	}
	if cfg.PasswordEnv != "" {
		ccfg.Password = os.Getenv(cfg.PasswordEnv)
	}
	if cfg.WaitForConnection {
		ccfg.DialOptions = []grpc.DialOption{grpc.WithBlock()} //nolint:staticcheck // surfaces dial errors at startup
	}

	cli, err := clientv3.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("store: dial etcd %s: %w", strings.Join(cfg.Endpoints, ","), classify(err))
	}
	return &Etcd{client: cli, timeout: cfg.RequestTimeout}, nil
}

// NewEtcd wraps an existing client. The Etcd takes ownership of cli.
func NewEtcd(cli *clientv3.Client) *Etcd {
	return &Etcd{client: cli}
}

func (e *Etcd) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

func (e *Etcd) Get(ctx context.Context, key string) (*KeyValue, error) {
	ctx, cancel := e.reqCtx(ctx)
	defer cancel()
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	kv := resp.Kvs[0]
	return &KeyValue{Key: string(kv.Key), Value: kv.Value, Revision: kv.ModRevision}, nil
}

func (e *Etcd) Put(ctx context.Context, key string, value []byte) (int64, error) {
	ctx, cancel := e.reqCtx(ctx)
	defer cancel()
	resp, err := e.client.Put(ctx, key, string(value))
	if err != nil {
		return 0, classify(err)
	}
	return resp.Header.Revision, nil
}

func (e *Etcd) Delete(ctx context.Context, key string, prefix bool) (int64, error) {
	ctx, cancel := e.reqCtx(ctx)
	defer cancel()
	var opts []clientv3.OpOption
	if prefix {
		opts = append(opts, clientv3.WithPrefix())
	}
	resp, err := e.client.Delete(ctx, key, opts...)
	if err != nil {
		return 0, classify(err)
	}
	return resp.Deleted, nil
}

func (e *Etcd) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	ctx, cancel := e.reqCtx(ctx)
	defer cancel()
	resp, err := e.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, classify(err)
	}
	out := make([]KeyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KeyValue{Key: string(kv.Key), Value: kv.Value, Revision: kv.ModRevision})
	}
	return out, nil
}

func (e *Etcd) Revision(ctx context.Context) (int64, error) {
	ctx, cancel := e.reqCtx(ctx)
	defer cancel()
	resp, err := e.client.Get(ctx, "/", clientv3.WithCountOnly())
	if err != nil {
		return 0, classify(err)
	}
	return resp.Header.Revision, nil
}

func (e *Etcd) Watch(ctx context.Context, key string, opts WatchOptions) <-chan WatchResponse {
	out := make(chan WatchResponse)

	var wopts []clientv3.OpOption
	if opts.Prefix {
		wopts = append(wopts, clientv3.WithPrefix())
	}
	if opts.FromRevision > 0 {
		wopts = append(wopts, clientv3.WithRev(opts.FromRevision))
	}
	// Without a leader the stream is cancelled instead of hanging silently.
	wch := e.client.Watch(clientv3.WithRequireLeader(ctx), key, wopts...)

	go func() {
		defer close(out)
		for wr := range wch {
			resp := toWatchResponse(wr)
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
			if resp.Err != nil {
				return
			}
		}
	}()
	return out
}

func toWatchResponse(wr clientv3.WatchResponse) WatchResponse {
	if wr.CompactRevision != 0 {
		return WatchResponse{Err: fmt.Errorf("%w: compacted through %d", ErrCompacted, wr.CompactRevision)}
	}
	if err := wr.Err(); err != nil {
		return WatchResponse{Err: classify(err)}
	}
	evs := make([]Event, 0, len(wr.Events))
	for _, ev := range wr.Events {
		evs = append(evs, Event{
			Key:      string(ev.Kv.Key),
			Value:    ev.Kv.Value,
			Deleted:  ev.Type == mvccpb.DELETE,
			Revision: ev.Kv.ModRevision,
		})
	}
	return WatchResponse{Events: evs}
}

func (e *Etcd) Close() error {
	return e.client.Close()
}

// classify wraps connectivity failures in ErrUnavailable so callers can tell
// them apart from request errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rpctypes.ErrCompacted) {
		return fmt.Errorf("%w: %v", ErrCompacted, err)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch {
	case errors.Is(err, rpctypes.ErrNoLeader),
		errors.Is(err, rpctypes.ErrTimeout),
		errors.Is(err, rpctypes.ErrTimeoutDueToLeaderFail),
		errors.Is(err, rpctypes.ErrTimeoutDueToConnectionLost):
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// clientLogger builds the zap logger handed to the etcd client.
func (c EtcdConfig) clientLogger() (*zap.Logger, error) {
	if c.ClientLogLevel == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zap.ParseAtomicLevel(c.ClientLogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
