package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "tankarena.gg/internal/persistence/log"
	"tankarena.gg/internal/sim/world"
)

func main() {
	var (
		journalDir = flag.String("journal", "", "journal dir containing journal-*.jsonl.zst")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	h, entries, err := persistlog.Read(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	entries = clip(entries, *toTick)

	fmt.Printf("journal world=%s seed=%d epoch_ms=%d tuning=%s ticks=%d\n",
		h.WorldID, h.Seed, h.EpochMs, h.TuningDigest, len(entries))
	if len(entries) == 0 {
		return
	}

	w, err := persistlog.Rebuild(h)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebuild world:", err)
		os.Exit(1)
	}
	checked, err := persistlog.Verify(w, entries, *fromTick)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed after %d verified ticks: %v\n", checked, err)
		os.Exit(1)
	}
	fmt.Printf("ok: verified %d ticks (%d..%d)\n", checked, max(*fromTick, entries[0].Tick), entries[len(entries)-1].Tick)
}

func clip(entries []world.TickLogEntry, toTick uint64) []world.TickLogEntry {
	if toTick == 0 {
		return entries
	}
	for i, e := range entries {
		if e.Tick > toTick {
			return entries[:i]
		}
	}
	return entries
}
