package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	persistlog "tilecraft.dev/internal/persistence/log"
	"tilecraft.dev/internal/sim/tuning"
	"tilecraft.dev/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		worldDir   = flag.String("world_dir", "", "world data dir containing events/")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning the session ran with")
		toTick     = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
	)
	flag.Parse()

	if *worldDir == "" {
		fmt.Fprintln(os.Stderr, "missing -world_dir")
		os.Exit(2)
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	r, err := newReplayer(tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}

	var checked uint64
	err = persistlog.ReadTicks(*worldDir, func(e world.TickLogEntry) error {
		if *toTick != 0 && e.Tick > *toTick {
			return errStop
		}
		if err := r.apply(e); err != nil {
			return err
		}
		checked++
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d logged ticks, world at tick=%d\n", checked, r.w.CurrentTick())
}
