package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	persistlog "tankarena.gg/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "journals":
			journalsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin state|journals [flags]")
	os.Exit(2)
}

// stateCmd prints the loopback-only admin state of a running server.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	full := fs.Bool("full", false, "include the last gameState")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(string(b)))
		os.Exit(1)
	}
	if !*full {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err == nil {
			delete(m, "state")
			b, _ = json.Marshal(m)
		}
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		fmt.Println(string(b))
		return
	}
	fmt.Println(out.String())
}

// journalsCmd lists the per-run journal directories under a journal root.
func journalsCmd(args []string) {
	fs := flag.NewFlagSet("journals", flag.ExitOnError)
	root := fs.String("dir", "./data/journals", "journal root directory")
	_ = fs.Parse(args)

	ents, err := os.ReadDir(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var runs []string
	for _, e := range ents {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	for _, run := range runs {
		dir := filepath.Join(*root, run)
		files, err := persistlog.ListFiles(dir)
		if err != nil {
			fmt.Printf("%s\terror=%v\n", run, err)
			continue
		}
		var size int64
		for _, f := range files {
			if st, err := os.Stat(f); err == nil {
				size += st.Size()
			}
		}
		fmt.Printf("%s\tfiles=%d\tbytes=%d\n", run, len(files), size)
	}
}
