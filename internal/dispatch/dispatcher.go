// Package dispatch implements the gateway's routing decision tree: every
// packet the router decodes, and every packet a client originates, passes
// through the same TTL/broadcast/local/remote logic before it either hits
// the wire or a local service handler, per spec.md §4.5.
//
// Grounded on original_source/src/services/router.py's RouterService
// (route_packet's ttl/broadcast/local/remote branches, _send_error_reply)
// and rustyguts-bken/server/room.go's broadcast-to-subscribers pattern,
// re-expressed as a single collaborator wired to internal/router,
// internal/state, internal/session and internal/events rather than the
// source's loosely-typed service registry.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/LuminariMUD/Intermud3-sub000/internal/events"
	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/state"
)

// RouterConn is the slice of internal/router.Connection the dispatcher
// needs: send a packet to the wire and drain inbound frames.
type RouterConn interface {
	Send(p packet.Packet) error
	Inbound() <-chan packet.Packet
	Connected() bool
	ForceReconnect()
}

// Dispatcher owns the routing decision tree and every per-kind local
// service handler. It satisfies internal/rpc.Gateway, so client-originated
// packets run through the same decision tree as packets read off the wire.
type Dispatcher struct {
	log      *slog.Logger
	mudName  string
	store    *state.Store
	conn     RouterConn
	sessions SessionLocator
	bridge   *events.Bridge
	hideIP   bool

	droppedTTL   int64
	routedLocal  int64
	routedRemote int64
	broadcasts   int64
	unreachable  int64
}

// SessionLocator is the slice of internal/session.Manager the dispatcher
// needs to know which local users are "online" for who/finger/locate
// purposes is answered entirely by internal/state; this seam exists only
// in case a future handler needs to reach live API sessions directly.
type SessionLocator interface {
	Count() int
}

// New constructs a Dispatcher. hideIP elides the IP address field from
// outgoing finger-reply packets, per §4.5's finger policy.
func New(log *slog.Logger, mudName string, store *state.Store, conn RouterConn, sessions SessionLocator, bridge *events.Bridge, hideIP bool) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:      log,
		mudName:  mudName,
		store:    store,
		conn:     conn,
		sessions: sessions,
		bridge:   bridge,
		hideIP:   hideIP,
	}
}

// Send implements internal/rpc.Gateway: a client-originated packet enters
// the decision tree exactly like one read off the wire, minus the
// "already broadcast by the router" exemption (see dispatch).
func (d *Dispatcher) Send(p packet.Packet) error { return d.dispatch(p, false) }

// Connected and ForceReconnect delegate to the underlying router
// connection, completing the Gateway interface.
func (d *Dispatcher) Connected() bool  { return d.conn.Connected() }
func (d *Dispatcher) ForceReconnect()  { d.conn.ForceReconnect() }

// Run drains the router's inbound channel until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-d.conn.Inbound():
			if !ok {
				return
			}
			if err := d.dispatch(p, true); err != nil {
				d.log.Warn("dispatch inbound packet", "kind", p.Head().Kind, "error", err)
			}
		}
	}
}

// dispatch applies the §4.5 decision tree. originWire is true for packets
// read off the router connection — these have already been fanned out
// network-wide by the upstream router, so a broadcast among them is
// delivered to local subscribers only, never re-sent (that would loop).
func (d *Dispatcher) dispatch(p packet.Packet, originWire bool) error {
	h := p.Head()
	if h.TTL <= 0 {
		atomic.AddInt64(&d.droppedTTL, 1)
		d.log.Warn("dropping packet with expired ttl", "kind", h.Kind, "from", h.OriginatorMud)
		return nil
	}
	p.SetTTL(h.TTL - 1)
	h = p.Head()

	switch {
	case h.IsBroadcast():
		return d.routeBroadcast(p, originWire)
	case h.TargetMud == d.mudName:
		d.routeLocal(p)
		return nil
	default:
		return d.routeRemote(p)
	}
}

func (d *Dispatcher) routeBroadcast(p packet.Packet, originWire bool) error {
	atomic.AddInt64(&d.broadcasts, 1)
	var err error
	if !originWire {
		err = d.conn.Send(p)
	}
	switch pkt := p.(type) {
	case *packet.ChannelMsgPacket:
		d.applyChannelMsg(pkt)
	case *packet.ChannelListenPacket, *packet.ChannelAddPacket:
		d.bridge.Process(p)
	case *packet.LocateReqPacket:
		// locate-req is the one broadcast *request* kind: every mud that
		// sees it, including this one, must answer directly if the
		// target user is online locally.
		d.handleLocateReq(pkt)
	}
	return err
}

// routeRemote looks up target_mud; an unknown or offline destination gets
// an error reply addressed back to the originator instead of a wire send.
func (d *Dispatcher) routeRemote(p packet.Packet) error {
	h := p.Head()
	mud := d.store.GetMud(h.TargetMud)
	if mud == nil || mud.Status != state.MudOnline {
		atomic.AddInt64(&d.unreachable, 1)
		reason := fmt.Sprintf("%s is not a known, online mud", h.TargetMud)
		errPkt := packet.MakeErrorReply(p, packet.ErrCodeUnknownDest, reason)
		d.routeLocal(errPkt)
		return nil
	}
	atomic.AddInt64(&d.routedRemote, 1)
	return d.conn.Send(p)
}

// routeLocal dispatches by concrete kind to the matching per-kind service
// handler. Unmapped kinds are logged and otherwise ignored.
func (d *Dispatcher) routeLocal(p packet.Packet) {
	atomic.AddInt64(&d.routedLocal, 1)
	switch pkt := p.(type) {
	case *packet.TellPacket:
		d.handleTell(pkt)
	case *packet.ChannelMsgPacket:
		d.applyChannelMsg(pkt)
	case *packet.ChannelAddPacket:
		d.handleChannelAdd(pkt)
	case *packet.WhoReqPacket:
		d.handleWhoReq(pkt)
	case *packet.WhoReplyPacket:
		d.handleWhoReply(pkt)
	case *packet.FingerReqPacket:
		d.handleFingerReq(pkt)
	case *packet.FingerReplyPacket:
		d.handleFingerReply(pkt)
	case *packet.LocateReqPacket:
		d.handleLocateReq(pkt)
	case *packet.LocateReplyPacket:
		d.handleLocateReply(pkt)
	case *packet.MudlistPacket:
		d.store.UpdateMudlist(pkt.Mudlist, pkt.MudlistID)
		d.bridge.Process(pkt)
	case *packet.ChanlistReplyPacket:
		d.store.UpdateChanlist(pkt.Chanlist, pkt.ChanlistID)
	case *packet.ShutdownPacket:
		d.store.MarkShutdown(pkt.OriginatorMud)
	case *packet.ErrorPacket:
		d.bridge.Process(pkt)
	case *packet.StartupReplyPacket:
		d.log.Info("router handshake acknowledged")
	default:
		d.log.Debug("no local handler for packet kind", "kind", p.Head().Kind)
	}
}

// Stats reports the dispatcher's lifetime routing counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"dropped_ttl":   atomic.LoadInt64(&d.droppedTTL),
		"routed_local":  atomic.LoadInt64(&d.routedLocal),
		"routed_remote": atomic.LoadInt64(&d.routedRemote),
		"broadcasts":    atomic.LoadInt64(&d.broadcasts),
		"unreachable":   atomic.LoadInt64(&d.unreachable),
	}
}
