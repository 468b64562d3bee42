package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tankarena.gg/internal/sim/world"
)

const (
	journalPrefix = "journal"
	kindHeader    = "header"
)

// Header is the first line of a journal.
type Header struct {
	Kind         string `json:"kind"`
	WorldID      string `json:"world_id"`
	Seed         int64  `json:"seed"`
	EpochMs      int64  `json:"epoch_ms"`
	TuningDigest string `json:"tuning_digest,omitempty"`
	// Tuning is the raw tuning document the world was built from.
	Tuning string `json:"tuning"`
}

// Journal implements world.TickLogger.
type Journal struct {
	w      *JSONLZstdWriter
	header Header
	wrote  bool
}

func NewJournal(dir string, h Header) *Journal {
	h.Kind = kindHeader
	return &Journal{w: NewJSONLZstdWriter(dir, journalPrefix), header: h}
}

func (j *Journal) WriteTick(e world.TickLogEntry) error {
	if !j.wrote {
		if err := j.w.Write(j.header); err != nil {
			return err
		}
		j.wrote = true
	}
	return j.w.Write(e)
}

// OnFileClosed registers fn for every completed journal file.
func (j *Journal) OnFileClosed(fn func(path string)) { j.w.SetOnClose(fn) }

func (j *Journal) Flush() error { return j.w.Flush() }
func (j *Journal) Close() error { return j.w.Close() }

// ListFiles returns the journal files in dir in write order.
func ListFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, journalPrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// Read loads the header and every tick entry of the journal in dir.
func Read(dir string) (Header, []world.TickLogEntry, error) {
	var h Header
	files, err := ListFiles(dir)
	if err != nil {
		return h, nil, err
	}
	if len(files) == 0 {
		return h, nil, fmt.Errorf("no journal files in %s", dir)
	}
	var entries []world.TickLogEntry
	for _, path := range files {
		if err := readFile(path, &h, &entries); err != nil {
			return h, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if h.Kind != kindHeader {
		return h, nil, fmt.Errorf("journal in %s has no header", dir)
	}
	return h, entries, nil
}

func readFile(path string, h *Header, entries *[]world.TickLogEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var peek struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &peek); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if peek.Kind == kindHeader {
			if err := json.Unmarshal(line, h); err != nil {
				return fmt.Errorf("unmarshal header: %w", err)
			}
			continue
		}
		var e world.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		*entries = append(*entries, e)
	}
	return sc.Err()
}
