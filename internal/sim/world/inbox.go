package world

import (
	"errors"
	"sync"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/entity"
)

var ErrInboxFull = errors.New("world: inbox full")

type JoinRequest struct {
	Name      string
	SessionID string
	Codec     protocol.Codec
	Out       chan []byte
	// Kick is called from the world goroutine when the client is dropped
	// (slow consumer). It must not block.
	Kick func(code string)
	Resp chan JoinResponse
}

// JoinResponse carries either a WELCOME or a refusal code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Reason  string
}

// ActionEnvelope is one decoded client action (a protocol.*Msg value).
type ActionEnvelope struct {
	Player entity.ID
	Act    any
}

// Command is one unit of work drained at the start of a tick. Exactly one
// field is set.
type Command struct {
	Join   *JoinRequest
	Leave  entity.ID
	Action *ActionEnvelope
}

// Inbox hands commands from network goroutines to the simulation. Actions go
// through a fixed-size ring and are refused when it is full; joins and leaves
// are never refused. Safe for concurrent producers and a single consumer.
type Inbox struct {
	mu      sync.Mutex
	control []Command

	data  []ActionEnvelope
	head  int
	tail  int
	count int

	overflow uint64
}

func NewInbox(capacity int) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbox{data: make([]ActionEnvelope, capacity)}
}

// Push stages an action, returning ErrInboxFull if the ring is full.
func (b *Inbox) Push(env ActionEnvelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		b.overflow++
		return ErrInboxFull
	}
	b.data[b.tail] = env
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	return nil
}

func (b *Inbox) Join(req JoinRequest) {
	b.mu.Lock()
	b.control = append(b.control, Command{Join: &req})
	b.mu.Unlock()
}

func (b *Inbox) Leave(id entity.ID) {
	b.mu.Lock()
	b.control = append(b.control, Command{Leave: id})
	b.mu.Unlock()
}

// Drain returns joins and leaves in arrival order, then actions in FIFO
// order, and clears the inbox.
func (b *Inbox) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 && len(b.control) == 0 {
		return nil
	}
	out := make([]Command, 0, len(b.control)+b.count)
	out = append(out, b.control...)
	b.control = b.control[:0]
	for i := 0; i < b.count; i++ {
		env := b.data[(b.head+i)%len(b.data)]
		out = append(out, Command{Action: &env})
		b.data[(b.head+i)%len(b.data)] = ActionEnvelope{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	return out
}

// Len reports staged actions plus pending joins/leaves.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count + len(b.control)
}

func (b *Inbox) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Overflow counts actions refused because the ring was full.
func (b *Inbox) Overflow() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
