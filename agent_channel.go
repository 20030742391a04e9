package intar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"intar.dev/intar/probe"
)

// wireRequest is a Request plus the request-id field intar injects for
// demultiplexing. The guest agent ignores req_id when decoding the request
// and copies it onto its reply line (writeReply in cmd/intar-agent).
type wireRequest struct {
	probe.Request
	ReqID uint64 `json:"req_id"`
}

// reqIDEnvelope extracts just the req_id field from a guest reply line.
// probe.Response implements its own MarshalJSON/UnmarshalJSON, so it is
// decoded separately (embedding it here would promote those methods onto
// the envelope and silently drop req_id).
type reqIDEnvelope struct {
	ReqID uint64 `json:"req_id"`
}

// AgentChannel is the ndjson request/response client over the VM's
// virtio-serial unix socket. It demultiplexes concurrent in-flight
// requests by request id rather than assuming a single caller at a time.
type AgentChannel struct {
	sockPath string

	mu      sync.Mutex
	conn    net.Conn
	writer  *bufio.Writer
	pending map[uint64]chan probe.Response
	nextID  atomic.Uint64
	closed  chan struct{}
	once    sync.Once
}

// NewAgentChannel builds a channel bound to sockPath; call Connect to
// establish the underlying connection and start the reader loop.
func NewAgentChannel(sockPath string) *AgentChannel {
	return &AgentChannel{
		sockPath: sockPath,
		pending:  make(map[uint64]chan probe.Response),
		closed:   make(chan struct{}),
	}
}

// Connect dials the unix socket with exponential backoff starting at
// 250ms and capped at 5s, retrying until it succeeds or dialCtx is
// cancelled. Once connected, a supervising goroutine keeps reconnecting
// with the same backoff whenever readLoop exits, until Close is called
// or superviseCtx is cancelled. superviseCtx is deliberately a separate,
// longer-lived context than dialCtx: the initial dial is bounded by
// whatever handshake deadline the caller applies, but the reconnect
// supervisor has to keep running for the VM's whole lifetime, well past
// that deadline.
func (a *AgentChannel) Connect(dialCtx, superviseCtx context.Context) error {
	conn, err := a.dialWithBackoff(dialCtx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.writer = bufio.NewWriter(conn)
	a.mu.Unlock()

	go a.supervise(superviseCtx, conn)
	return nil
}

// dialWithBackoff dials the unix socket, retrying indefinitely with
// exponential backoff (250ms, capped at 5s) until it succeeds, the
// channel is closed, or ctx is cancelled.
func (a *AgentChannel) dialWithBackoff(ctx context.Context) (net.Conn, error) {
	backoff := 250 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		conn, err := net.Dial("unix", a.sockPath)
		if err == nil {
			return conn, nil
		}

		select {
		case <-a.closed:
			return nil, Wrap(TransportError, "agent channel closed", nil)
		case <-ctx.Done():
			return nil, Wrap(TransportError, "agent channel connect cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// supervise runs readLoop over conn and, whenever it returns (the guest
// agent closed the connection, or it errored), redials and restarts it,
// indefinitely until Close is called or ctx is cancelled. This is what
// lets an in-flight scenario survive a guest agent restart: the VM stays
// up, only the agent process bounces, and the channel reconnects under
// it without the orchestrator noticing.
func (a *AgentChannel) supervise(ctx context.Context, conn net.Conn) {
	for {
		a.readLoop(conn)

		select {
		case <-a.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		newConn, err := a.dialWithBackoff(ctx)
		if err != nil {
			return
		}

		a.mu.Lock()
		a.conn = newConn
		a.writer = bufio.NewWriter(newConn)
		a.mu.Unlock()
		conn = newConn
	}
}

// readLoop reads one ndjson line at a time and dispatches it to the
// pending request it answers, by req_id. Runs until conn is closed.
func (a *AgentChannel) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var env reqIDEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		var resp probe.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}

		a.mu.Lock()
		ch, ok := a.pending[env.ReqID]
		if ok {
			delete(a.pending, env.ReqID)
		}
		a.mu.Unlock()

		if ok {
			ch <- resp
		}
	}

	a.mu.Lock()
	for id, ch := range a.pending {
		close(ch)
		delete(a.pending, id)
	}
	a.conn = nil
	a.mu.Unlock()
}

// send writes req with a fresh req_id and returns a channel that will
// receive exactly one Response (or be closed without a value if the
// connection drops before a reply arrives).
func (a *AgentChannel) send(req probe.Request) (chan probe.Response, error) {
	a.mu.Lock()
	if a.conn == nil {
		a.mu.Unlock()
		return nil, Wrap(TransportError, "agent channel not connected", nil)
	}

	id := a.nextID.Add(1)
	ch := make(chan probe.Response, 1)
	a.pending[id] = ch

	line, err := json.Marshal(wireRequest{Request: req, ReqID: id})
	if err != nil {
		delete(a.pending, id)
		a.mu.Unlock()
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}
	line = append(line, '\n')

	_, werr := a.writer.Write(line)
	if werr == nil {
		werr = a.writer.Flush()
	}
	a.mu.Unlock()

	if werr != nil {
		return nil, Wrap(TransportError, "write agent request", werr)
	}
	return ch, nil
}

// Do sends req and waits for its response, up to timeout. Requests issued
// on the same channel are delivered in order on the wire; responses are
// demultiplexed by req_id so concurrent callers are safe.
func (a *AgentChannel) Do(ctx context.Context, req probe.Request, timeout time.Duration) (probe.Response, error) {
	ch, err := a.send(req)
	if err != nil {
		return probe.Response{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return probe.Response{}, Wrap(TransportError, "agent channel closed before reply", nil)
		}
		return resp, nil
	case <-timer.C:
		return probe.Response{}, Wrap(TransportError, "agent request timed out", nil)
	case <-ctx.Done():
		return probe.Response{}, Wrap(TransportError, "agent request cancelled", ctx.Err())
	}
}

// Ping sends {"type":"ping"} and waits for pong, used to consider the
// channel live during AgentHandshake.
func (a *AgentChannel) Ping(ctx context.Context, timeout time.Duration) (uint64, error) {
	resp, err := a.Do(ctx, probe.PingRequest(), timeout)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, Wrap(TransportError, resp.Message, nil)
	}
	return resp.UptimeSecs, nil
}

// CheckAll issues a check_all request for probes and returns the results
// in input order, as the guest agent preserves it.
func (a *AgentChannel) CheckAll(ctx context.Context, probes []probe.IDSpec, timeout time.Duration) ([]probe.Result, error) {
	resp, err := a.Do(ctx, probe.CheckAllRequest(probes), timeout)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, Wrap(TransportError, resp.Message, nil)
	}
	return resp.Results, nil
}

// Close stops the supervising reconnect loop and shuts down the
// underlying connection, if any.
func (a *AgentChannel) Close() error {
	a.once.Do(func() { close(a.closed) })

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
