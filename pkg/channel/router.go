package channel

import (
	"fmt"
	"net/netip"
	"sync"

	"avaneesh/dcp-go/pkg/pdu"
)

type paramKey struct {
	dcpID   uint8
	paramID uint16
}

// Router resolves outbound PDUs to network destinations from the network
// information configured on this endpoint.
type Router struct {
	mu sync.RWMutex

	slaves       map[uint8]pdu.NetworkAddress
	sources      map[uint16]pdu.NetworkAddress
	targets      map[uint16]pdu.NetworkAddress
	params       map[uint16]pdu.NetworkAddress
	targetParams map[paramKey]pdu.NetworkAddress
	connected    map[uint8]bool

	// peer of the last inbound control PDU
	lastPeer netip.AddrPort
	// pinned by RegisterSuccessful
	master netip.AddrPort
}

// NewRouter creates a new router
func NewRouter() *Router {
	r := &Router{}
	r.Clear()
	return r
}

// Clear forgets all network information
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slaves = make(map[uint8]pdu.NetworkAddress)
	r.sources = make(map[uint16]pdu.NetworkAddress)
	r.targets = make(map[uint16]pdu.NetworkAddress)
	r.params = make(map[uint16]pdu.NetworkAddress)
	r.targetParams = make(map[paramKey]pdu.NetworkAddress)
	r.connected = make(map[uint8]bool)
	r.lastPeer = netip.AddrPort{}
	r.master = netip.AddrPort{}
}

// ClearData forgets data and parameter network information but keeps slaves and master
func (r *Router) ClearData() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[uint16]pdu.NetworkAddress)
	r.targets = make(map[uint16]pdu.NetworkAddress)
	r.params = make(map[uint16]pdu.NetworkAddress)
	r.targetParams = make(map[paramKey]pdu.NetworkAddress)
}

// SetSlave records the control endpoint of dcpID
func (r *Router) SetSlave(dcpID uint8, addr pdu.NetworkAddress) {
	r.mu.Lock()
	r.slaves[dcpID] = addr
	r.mu.Unlock()
}

// SetSource records where input dataID arrives
func (r *Router) SetSource(dataID uint16, addr pdu.NetworkAddress) {
	r.mu.Lock()
	r.sources[dataID] = addr
	r.mu.Unlock()
}

// SetTarget records where output dataID is sent
func (r *Router) SetTarget(dataID uint16, addr pdu.NetworkAddress) {
	r.mu.Lock()
	r.targets[dataID] = addr
	r.mu.Unlock()
}

// SetParam records where tunable parameters paramID arrive
func (r *Router) SetParam(paramID uint16, addr pdu.NetworkAddress) {
	r.mu.Lock()
	r.params[paramID] = addr
	r.mu.Unlock()
}

// SetTargetParam records where the master sends parameters paramID of dcpID
func (r *Router) SetTargetParam(dcpID uint8, paramID uint16, addr pdu.NetworkAddress) {
	r.mu.Lock()
	r.targetParams[paramKey{dcpID, paramID}] = addr
	r.mu.Unlock()
}

// SetConnected marks dcpID as connected or disconnected
func (r *Router) SetConnected(dcpID uint8, connected bool) {
	r.mu.Lock()
	if connected {
		r.connected[dcpID] = true
	} else {
		delete(r.connected, dcpID)
	}
	r.mu.Unlock()
}

// IsConnected reports whether dcpID was connected with ConnectToSlave
func (r *Router) IsConnected(dcpID uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected[dcpID]
}

// Source returns the network information of input dataID
func (r *Router) Source(dataID uint16) (pdu.NetworkAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.sources[dataID]
	return a, ok
}

// Target returns the network information of output dataID
func (r *Router) Target(dataID uint16) (pdu.NetworkAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.targets[dataID]
	return a, ok
}

// Param returns the network information of tunable parameters paramID
func (r *Router) Param(paramID uint16) (pdu.NetworkAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.params[paramID]
	return a, ok
}

// ObservePeer records the sender of an inbound control PDU
func (r *Router) ObservePeer(peer netip.AddrPort) {
	if !peer.IsValid() {
		return
	}
	r.mu.Lock()
	r.lastPeer = peer
	r.mu.Unlock()
}

// PinMaster makes the last observed peer the master endpoint
func (r *Router) PinMaster() {
	r.mu.Lock()
	r.master = r.lastPeer
	r.mu.Unlock()
}

// Master returns the pinned master endpoint
func (r *Router) Master() (netip.AddrPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.master, r.master.IsValid()
}

// Destination returns where p should be written.
// ok is false when p should go to the physical channel's default peer.
func (r *Router) Destination(p pdu.PDU) (netip.AddrPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, receiver, isControl := pdu.ControlHeader(p); isControl {
		return r.resolve(r.slaves[receiver])
	}

	switch v := p.(type) {
	case *pdu.DatInputOutput:
		return r.resolve(r.targets[v.DataID])
	case *pdu.DatParameter:
		for k, a := range r.targetParams {
			if k.paramID == v.ParamID {
				return r.resolve(a)
			}
		}
		return netip.AddrPort{}, false
	}

	// responses and notifications answer the master
	if r.master.IsValid() {
		return r.master, true
	}
	if r.lastPeer.IsValid() {
		return r.lastPeer, true
	}
	return netip.AddrPort{}, false
}

// DestinationForParam returns the destination of parameters paramID of dcpID
func (r *Router) DestinationForParam(dcpID uint8, paramID uint16) (netip.AddrPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.targetParams[paramKey{dcpID, paramID}])
}

// resolve turns network information into an endpoint. An unspecified IP
// means "the host the master talks from".
func (r *Router) resolve(a pdu.NetworkAddress) (netip.AddrPort, bool) {
	ap, ok := a.AddrPort()
	if !ok {
		return netip.AddrPort{}, false
	}
	if ap.Addr().IsUnspecified() {
		host := r.master
		if !host.IsValid() {
			host = r.lastPeer
		}
		if !host.IsValid() {
			return netip.AddrPort{}, false
		}
		return netip.AddrPortFrom(host.Addr(), ap.Port()), true
	}
	return ap, true
}

// String returns a summary for logging
func (r *Router) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Router{Slaves=%d, Sources=%d, Targets=%d, Params=%d, Master=%s}",
		len(r.slaves), len(r.sources), len(r.targets), len(r.params), r.master)
}
