package transport

import (
	"context"
	"time"

	"rkcluster/connpool"
	"rkcluster/parser"

	"github.com/redis/go-redis/v9"
)

// GoRedisTransport is the reference Transport implementation, adapting
// go-redis/v9 onto the interface the engine and cluster state consume. It
// keeps one connpool.Pool of single-connection *redis.Client instances per
// node, rather than relying on go-redis's own internal pooling, so that
// "no two connections to the same (host, port) coexist outside this pool"
// holds the way the data model requires.
type GoRedisTransport struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PoolSize is the number of idle connections kept warm per node.
	PoolSize int
	// MaxActive bounds total connections per node; 0 means the
	// connpool default.
	MaxActive int
}

// NewGoRedisTransport builds a GoRedisTransport with the given per-node
// pool size and Redis Cluster's recommended timeouts.
func NewGoRedisTransport(poolSize int) *GoRedisTransport {
	return &GoRedisTransport{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
	}
}

type goRedisConn struct {
	node Node
	pool *connpool.Pool[*redis.Client]
}

func (c *goRedisConn) Node() Node { return c.node }

func (c *goRedisConn) Close() error {
	c.pool.Empty()
	return nil
}

// Open dials node and primes its connection pool, returning an error if the
// node can't be reached at all.
func (t *GoRedisTransport) Open(ctx context.Context, node Node) (Conn, error) {
	addr := node.Addr()
	dial := func() (*redis.Client, error) {
		cl := redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  t.DialTimeout,
			ReadTimeout:  t.ReadTimeout,
			WriteTimeout: t.WriteTimeout,
			PoolSize:     1,
		})
		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			return nil, err
		}
		return cl, nil
	}
	closeFn := func(cl *redis.Client) error { return cl.Close() }

	size := t.PoolSize
	if size <= 0 {
		size = 10
	}
	pool, err := connpool.New(addr, size, t.MaxActive, dial, closeFn)
	if err != nil {
		return nil, err
	}

	cl, err := pool.Get()
	if err != nil {
		return nil, err
	}
	pool.Put(cl)

	return &goRedisConn{node: node, pool: pool}, nil
}

// SendOne borrows a client from conn's pool, runs cmd, and returns it.
func (t *GoRedisTransport) SendOne(ctx context.Context, conn Conn, cmd parser.Command) Result {
	gc, ok := conn.(*goRedisConn)
	if !ok {
		return Result{Err: errWrongConnType}
	}
	cl, err := gc.pool.Get()
	if err != nil {
		return Result{Err: err}
	}
	defer gc.pool.Put(cl)

	reply, err := cl.Do(ctx, toArgs(cmd)...).Result()
	return Result{Reply: reply, Err: err}
}

// SendPipeline borrows a client from conn's pool and executes every command
// in one round trip, returning one Result per command in order.
func (t *GoRedisTransport) SendPipeline(ctx context.Context, conn Conn, cmds parser.Pipeline) []Result {
	results := make([]Result, len(cmds))
	gc, ok := conn.(*goRedisConn)
	if !ok {
		for i := range results {
			results[i] = Result{Err: errWrongConnType}
		}
		return results
	}
	cl, err := gc.pool.Get()
	if err != nil {
		for i := range results {
			results[i] = Result{Err: err}
		}
		return results
	}
	defer gc.pool.Put(cl)

	pipe := cl.Pipeline()
	redisCmds := make([]*redis.Cmd, len(cmds))
	for i, c := range cmds {
		redisCmds[i] = pipe.Do(ctx, toArgs(c)...)
	}
	// Exec's own error is redundant with each Cmder's individual Err(); the
	// classifier only ever looks at per-command results.
	_, _ = pipe.Exec(ctx)

	for i, rc := range redisCmds {
		v, err := rc.Result()
		results[i] = Result{Reply: v, Err: err}
	}
	return results
}

func toArgs(cmd parser.Command) []interface{} {
	args := make([]interface{}, len(cmd))
	for i, b := range cmd {
		args[i] = b
	}
	return args
}

var errWrongConnType = wrongConnTypeError{}

type wrongConnTypeError struct{}

func (wrongConnTypeError) Error() string {
	return "transport: conn was not opened by this Transport"
}
