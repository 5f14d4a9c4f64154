package main

import (
	"context"
	"sync"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
)

type NodeChangeTypes int

const (
	ChangeNone    NodeChangeTypes = 0
	ChangeNewNode NodeChangeTypes = 1 << iota
	ChangeNodeUpdate
	ChangeNodeGone
)

type NodeChange struct {
	Changes NodeChangeTypes
	Node    espnow.MAC
}

// NodeManager keeps track of every remote that has sent us a command.
//
// Nodes that stay silent for longer than the timeout are forgotten and
// listeners are told they are gone.
type NodeManager struct {
	lock      sync.Mutex
	timeout   time.Duration
	nodes     map[espnow.MAC]*NodeState
	listeners []chan NodeChange
	now       func() time.Time
}

// NodeState is a copy of what is known about a node.
type NodeState struct {
	Addr        espnow.MAC `json:"addr"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	LastCommand string     `json:"last_command"`
	LastSeq     uint32     `json:"last_seq"`
	Messages    uint64     `json:"messages"`
}

func NewNodeManager(timeout time.Duration) *NodeManager {
	return &NodeManager{
		timeout:   timeout,
		nodes:     make(map[espnow.MAC]*NodeState),
		listeners: make([]chan NodeChange, 0),
		now:       time.Now,
	}
}

// Start runs the idle-node cleanup until ctx is done.
func (m *NodeManager) Start(ctx context.Context) {
	go m.cleanupNodes(ctx)
}

func (m *NodeManager) MessageReceived(msg *rcvr.Message) {
	changes := ChangeNodeUpdate

	m.doLocked(func() {
		now := m.now()

		n, ok := m.nodes[msg.Addr]
		if !ok {
			changes |= ChangeNewNode
			n = &NodeState{Addr: msg.Addr, FirstSeen: now}
			m.nodes[msg.Addr] = n
		}

		n.LastSeen = now
		n.LastCommand = string(msg.Payload())
		n.LastSeq = msg.Seq
		n.Messages++
	})

	m.notifyListeners(msg.Addr, changes)
}

// GetNode returns a copy of the node's state, or nil if it is unknown.
func (m *NodeManager) GetNode(addr espnow.MAC) *NodeState {
	var node *NodeState

	m.doLocked(func() {
		if n, ok := m.nodes[addr]; ok {
			cp := *n
			node = &cp
		}
	})

	return node
}

// Nodes returns copies of all known nodes.
func (m *NodeManager) Nodes() []NodeState {
	var out []NodeState

	m.doLocked(func() {
		out = make([]NodeState, 0, len(m.nodes))
		for _, n := range m.nodes {
			out = append(out, *n)
		}
	})

	return out
}

// AddListener must be called before Start.
func (m *NodeManager) AddListener(ch chan NodeChange) {
	m.listeners = append(m.listeners, ch)
}

func (m *NodeManager) cleanupNodes(ctx context.Context) {
	ticker := time.NewTicker(m.timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.expireNodes()
		}
	}
}

func (m *NodeManager) expireNodes() {
	var gone []espnow.MAC

	m.doLocked(func() {
		now := m.now()
		for addr, n := range m.nodes {
			if now.Sub(n.LastSeen) > m.timeout {
				gone = append(gone, addr)
				delete(m.nodes, addr)
			}
		}
	})

	for _, addr := range gone {
		log.WithField("node", addr).Info("node timed out")
		m.notifyListeners(addr, ChangeNodeGone)
	}
}

func (m *NodeManager) notifyListeners(addr espnow.MAC, changes NodeChangeTypes) {
	notification := NodeChange{Node: addr, Changes: changes}

	for _, ch := range m.listeners {
		select {
		case ch <- notification:
		default:
		}
	}
}

func (m *NodeManager) doLocked(fn func()) {
	m.lock.Lock()
	defer m.lock.Unlock()
	fn()
}
