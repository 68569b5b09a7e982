package main

import (
	"encoding/json"
	"fmt"
	"reflect"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/tuning"
	"tilecraft.dev/internal/sim/world"
)

// replayer re-runs a recorded session on a fresh world and checks that every
// tick produces the same joins and dig outcomes.
type replayer struct {
	w    *world.World
	last *world.TickLogEntry
}

func newReplayer(tune tuning.Tuning) (*replayer, error) {
	w, err := world.New(world.Config{ID: "replay", Tuning: tune})
	if err != nil {
		return nil, err
	}
	r := &replayer{w: w}
	w.SetTickLogger(r)
	return r, nil
}

func (r *replayer) WriteTick(e world.TickLogEntry) error {
	r.last = &e
	return nil
}

// step advances one tick and returns what the world recorded for it, if
// anything.
func (r *replayer) step() *world.TickLogEntry {
	r.last = nil
	r.w.StepOnce()
	return r.last
}

// apply steps through any unrecorded ticks up to entry.Tick, then feeds the
// entry's commands and verifies the result. Leaves are queued before joins.
func (r *replayer) apply(entry world.TickLogEntry) error {
	if entry.Tick < r.w.CurrentTick() {
		return fmt.Errorf("tick %d out of order (world at %d)", entry.Tick, r.w.CurrentTick())
	}
	for r.w.CurrentTick() < entry.Tick {
		tick := r.w.CurrentTick()
		if got := r.step(); got != nil && len(got.Digs) > 0 {
			return fmt.Errorf("tick %d: unrecorded dig outcomes %+v", tick, got.Digs)
		}
	}

	inbox := r.w.Inbox()
	for _, id := range entry.Leaves {
		inbox.Leave(entity.ID(id))
	}
	resps := make([]chan world.JoinResponse, len(entry.Joins))
	for i, j := range entry.Joins {
		resps[i] = make(chan world.JoinResponse, 1)
		inbox.Join(world.JoinRequest{Name: j.Name, Resp: resps[i]})
	}
	for i, a := range entry.Actions {
		act, err := decodeRecorded(a)
		if err != nil {
			return fmt.Errorf("tick %d action %d: %w", entry.Tick, i, err)
		}
		if err := inbox.Push(world.ActionEnvelope{Player: entity.ID(a.PlayerID), Act: act}); err != nil {
			return fmt.Errorf("tick %d action %d: %w", entry.Tick, i, err)
		}
	}

	got := r.step()
	for i, j := range entry.Joins {
		resp := <-resps[i]
		if resp.Welcome.PlayerID != j.PlayerID {
			return fmt.Errorf("tick %d: %s joined as %d, recorded %d (%s)", entry.Tick, j.Name, resp.Welcome.PlayerID, j.PlayerID, resp.Code)
		}
	}
	if got == nil {
		return fmt.Errorf("tick %d: replay recorded nothing", entry.Tick)
	}
	if !sameDigs(got.Digs, entry.Digs) {
		return fmt.Errorf("tick %d: digs differ: got %+v want %+v", entry.Tick, got.Digs, entry.Digs)
	}
	if got.Entities != entry.Entities || got.Circuits != entry.Circuits {
		return fmt.Errorf("tick %d: entities/circuits %d/%d, recorded %d/%d", entry.Tick, got.Entities, got.Circuits, entry.Entities, entry.Circuits)
	}
	return nil
}

// decodeRecorded turns a logged action (decoded from JSON as a generic
// value) back into its protocol message.
func decodeRecorded(a world.RecordedAction) (any, error) {
	if m, ok := a.Act.(map[string]any); ok && m["type"] == nil {
		m["type"] = a.Type
	}
	b, err := json.Marshal(a.Act)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAction(protocol.JSONCodec{}, b)
}

func sameDigs(a, b []world.RecordedDig) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
