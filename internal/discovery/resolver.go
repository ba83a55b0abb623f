// SPDX-License-Identifier: AGPL-3.0-or-later

package discovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/ohx-project/ohx-core/internal/logging"
)

// Tunables from spec.md §4.5, §5.
const (
	ConcurrentResolvers = 10
	ResolverTimeout     = 2 * time.Second
	grpcKeepalive       = 60 * time.Second
)

// Outcome tags a ResolveResult (spec.md §3's ResolveResult tagged union).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeCapacityLimit
	OutcomeVersionMismatch
	OutcomeUnresolved
)

// ResolvedService is the successful-resolve payload.
type ResolvedService struct {
	ServiceName string
	Version     string
	Addresses   []string
	ResponseID  string
	Conn        *grpc.ClientConn
}

// ResolveResult is returned from a resolve call.
type ResolveResult struct {
	Outcome     Outcome
	Service     ResolvedService
	LastAttempt time.Time
}

// ResolveRequest is what a caller asks the resolver to find.
type ResolveRequest struct {
	ServiceName string
	MinVersion  string
	MaxVersion  string // optional
}

// ErrCapacityLimit is returned immediately when ConcurrentResolvers
// requests are already in flight (spec.md §4.5).
var ErrCapacityLimit = errors.New("discovery: capacity limit")

// Identity is this daemon's own advertised service identity, used to
// answer incoming requests that name this daemon's service.
type Identity struct {
	ServiceName string
	Version     string
	Addresses   []string
}

type inflightEntry struct {
	request ResolveRequest
	reply   chan<- ResolveResult
}

// datagram is a received packet tagged with the socket family it arrived
// on, so a response can be unicast back on the same family.
type datagram struct {
	data   []byte
	from   net.Addr
	family int // 4 or 6
}

type resolveCmd struct {
	request ResolveRequest
	reply   chan<- ResolveResult
}

// dialFunc abstracts gRPC dialing so tests can substitute a fake.
type dialFunc func(ctx context.Context, addr string) (*grpc.ClientConn, error)

// Resolver is the C8 discovery engine: one goroutine (Serve) owns all
// mutable state, so the in-flight map needs no lock (spec.md §5).
type Resolver struct {
	identity Identity
	iface    string

	v4 *ipv4.PacketConn
	v6 *ipv6.PacketConn

	resolveCh  chan resolveCmd
	timeoutCh  chan string
	datagramCh chan datagram

	dial dialFunc
}

// NewResolver builds a Resolver advertising identity on the given network
// interface (empty string = all interfaces).
func NewResolver(identity Identity, iface string) *Resolver {
	return &Resolver{
		identity:   identity,
		iface:      iface,
		resolveCh:  make(chan resolveCmd),
		timeoutCh:  make(chan string, ConcurrentResolvers),
		datagramCh: make(chan datagram, 64),
		dial:       dialGRPC,
	}
}

// Resolve submits a resolve request and blocks for its outcome, or until
// ctx is canceled.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	reply := make(chan ResolveResult, 1)
	select {
	case r.resolveCh <- resolveCmd{request: req, reply: reply}:
	case <-ctx.Done():
		return ResolveResult{}, ctx.Err()
	}

	select {
	case res := <-reply:
		if res.Outcome == OutcomeCapacityLimit {
			return res, ErrCapacityLimit
		}
		return res, nil
	case <-ctx.Done():
		return ResolveResult{}, ctx.Err()
	}
}

// Serve implements suture.Service: it binds both multicast sockets, spawns
// their reader goroutines, and runs the single-threaded command loop until
// ctx is canceled.
func (r *Resolver) Serve(ctx context.Context) error {
	log := logging.WithComponent("discovery.resolver")

	v4, err := newV4Socket(ctx, r.iface)
	if err != nil {
		return err
	}
	defer v4.Close()
	r.v4 = v4

	v6, err := newV6Socket(ctx, r.iface)
	if err != nil {
		return err
	}
	defer v6.Close()
	r.v6 = v6

	readerCtx, cancelReaders := context.WithCancel(ctx)
	defer cancelReaders()
	go r.readLoopV4(readerCtx, v4)
	go r.readLoopV6(readerCtx, v6)

	inFlight := make(map[string]inflightEntry, ConcurrentResolvers)
	buffers := newPacketBuffers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-r.resolveCh:
			if len(inFlight) >= ConcurrentResolvers {
				cmd.reply <- ResolveResult{Outcome: OutcomeCapacityLimit, LastAttempt: time.Now()}
				continue
			}
			requestID, err := newChallenge()
			if err != nil {
				log.Error().Err(err).Msg("discovery: generate challenge failed")
				cmd.reply <- ResolveResult{Outcome: OutcomeUnresolved, LastAttempt: time.Now()}
				continue
			}
			inFlight[requestID] = inflightEntry{request: cmd.request, reply: cmd.reply}
			r.multicastRequest(log, NewRequestPacket(requestID, cmd.request.ServiceName, cmd.request.MinVersion, cmd.request.MaxVersion))
			r.scheduleTimeout(readerCtx, requestID)

		case requestID := <-r.timeoutCh:
			if entry, ok := inFlight[requestID]; ok {
				delete(inFlight, requestID)
				entry.reply <- ResolveResult{Outcome: OutcomeTimeout, LastAttempt: time.Now()}
			}

		case dg := <-r.datagramCh:
			req, resp, err := buffers.decode(dg.data)
			if err != nil {
				log.Debug().Err(err).Msg("discovery: dropping malformed packet")
				continue
			}
			if req != nil {
				r.respondIfMatch(log, *req, dg)
			}
			if resp != nil {
				r.completeInflight(ctx, log, inFlight, *resp)
			}
		}
	}
}

func newChallenge() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("discovery: generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (r *Resolver) scheduleTimeout(ctx context.Context, requestID string) {
	go func() {
		timer := time.NewTimer(ResolverTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case r.timeoutCh <- requestID:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

func (r *Resolver) readLoopV4(ctx context.Context, conn *ipv4.PacketConn) {
	buf := make([]byte, MaxPacketSize+1)
	for {
		n, _, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		r.pushDatagram(ctx, buf[:n], from, 4)
	}
}

func (r *Resolver) readLoopV6(ctx context.Context, conn *ipv6.PacketConn) {
	buf := make([]byte, MaxPacketSize+1)
	for {
		n, _, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		r.pushDatagram(ctx, buf[:n], from, 6)
	}
}

func (r *Resolver) pushDatagram(ctx context.Context, buf []byte, from net.Addr, family int) {
	data := make([]byte, len(buf))
	copy(data, buf)
	select {
	case r.datagramCh <- datagram{data: data, from: from, family: family}:
	case <-ctx.Done():
	}
}

// multicastRequest sends pkt to both the v4 and v6 multicast groups.
func (r *Resolver) multicastRequest(log zerolog.Logger, pkt RequestPacket) {
	data, err := json.Marshal(pkt)
	if err != nil {
		log.Error().Err(err).Msg("discovery: marshal request failed")
		return
	}
	v4Dst := &net.UDPAddr{IP: net.ParseIP(GroupV4), Port: Port}
	if _, err := r.v4.WriteTo(data, nil, v4Dst); err != nil {
		log.Error().Err(err).Msg("discovery: multicast request (v4) failed")
	}
	v6Dst := &net.UDPAddr{IP: net.ParseIP(GroupV6), Port: Port}
	if _, err := r.v6.WriteTo(data, nil, v6Dst); err != nil {
		log.Error().Err(err).Msg("discovery: multicast request (v6) failed")
	}
}

// respondIfMatch answers a request naming this daemon's own service.
func (r *Resolver) respondIfMatch(log zerolog.Logger, req RequestPacket, dg datagram) {
	if req.ServiceName != r.identity.ServiceName {
		return
	}
	ok, err := versionInRange(r.identity.Version, req.MinVersion, req.MaxVersion)
	if err != nil || !ok {
		return
	}
	resp := NewResponsePacket(req.Challenge, r.identity.ServiceName, r.identity.Version, r.identity.Addresses)
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("discovery: marshal response failed")
		return
	}
	if dg.family == 4 {
		if _, err := r.v4.WriteTo(data, nil, dg.from); err != nil {
			log.Error().Err(err).Msg("discovery: unicast response (v4) failed")
		}
		return
	}
	if _, err := r.v6.WriteTo(data, nil, dg.from); err != nil {
		log.Error().Err(err).Msg("discovery: unicast response (v6) failed")
	}
}

// completeInflight demultiplexes an incoming response by response_id and,
// on a version match, dials the advertised addresses in order.
func (r *Resolver) completeInflight(ctx context.Context, log zerolog.Logger, inFlight map[string]inflightEntry, resp ResponsePacket) {
	entry, ok := inFlight[resp.ResponseID]
	if !ok {
		return
	}

	match, err := versionInRange(resp.Version, entry.request.MinVersion, entry.request.MaxVersion)
	if err != nil {
		log.Error().Err(err).Msg("discovery: parse response version failed")
		return
	}
	if !match {
		delete(inFlight, resp.ResponseID)
		entry.reply <- ResolveResult{Outcome: OutcomeVersionMismatch, LastAttempt: time.Now()}
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, ResolverTimeout)
	defer cancel()

	for _, addr := range resp.Addresses {
		conn, err := r.dial(dialCtx, addr)
		if err != nil {
			continue
		}
		delete(inFlight, resp.ResponseID)
		entry.reply <- ResolveResult{
			Outcome: OutcomeSuccess,
			Service: ResolvedService{
				ServiceName: resp.ServiceName,
				Version:     resp.Version,
				Addresses:   resp.Addresses,
				ResponseID:  resp.ResponseID,
				Conn:        conn,
			},
			LastAttempt: time.Now(),
		}
		return
	}
	// All dials failed for this response; spec.md §4.5 says such entries
	// are ignored, leaving the request pending for other responses or the
	// eventual timeout.
}

// versionInRange implements spec.md §4.5's min <= version < max check
// using semver range semantics.
func versionInRange(version, min, max string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("discovery: parse version %q: %w", version, err)
	}
	minV, err := semver.NewVersion(min)
	if err != nil {
		return false, fmt.Errorf("discovery: parse min version %q: %w", min, err)
	}
	if v.LessThan(minV) {
		return false, nil
	}
	if max == "" {
		return true, nil
	}
	maxV, err := semver.NewVersion(max)
	if err != nil {
		return false, fmt.Errorf("discovery: parse max version %q: %w", max, err)
	}
	return v.LessThan(maxV), nil
}

// dialGRPC is the default dialFunc: a plaintext dial (this daemon has no
// CA-issued client certificate to present) with TCP-nodelay and a 60s
// keepalive (spec.md §4.5). Validating the peer's self-signed certificate
// is left to the caller of the resulting channel, not the discovery layer.
func dialGRPC(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	dialer := &net.Dialer{}
	return grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, a string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, "tcp", a)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		}),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: grpcKeepalive}),
		grpc.WithBlock(),
	)
}
