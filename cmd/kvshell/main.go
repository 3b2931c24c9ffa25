// Command kvshell is an interactive REPL over the kvstore façade, built
// on peterh/liner for line editing and history.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/kvstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: kvshell <file>")
		os.Exit(2)
	}

	cfg := &kvstore.StoreConfig{
		Filename:  os.Args[1],
		CacheSize: 64 << 20,
		DiskSize:  256 << 20,
		App:       kvstore.DefaultConfig(64),
	}

	store, err := kvstore.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvshell: open: %v\n", err)
		os.Exit(1)
	}

	defer store.Close()

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	histPath := cfg.Filename + ".history"

	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	result := kvstore.NewLookupResult(nil)
	defer result.Deinit()

	for {
		input, err := line.Prompt("kvstore> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}

			fmt.Fprintf(os.Stderr, "kvshell: %v\n", err)
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if !dispatch(store, result, input) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}
}

func dispatch(store *kvstore.Store, result *kvstore.LookupResult, input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]

	switch cmd {
	case "quit", "exit":
		return false

	case "insert":
		if len(fields) != 3 {
			fmt.Println("usage: insert <key> <value>")
			return true
		}

		if err := store.Insert([]byte(fields[1]), []byte(fields[2])); err != nil {
			fmt.Println("error:", err)
		}

	case "delete":
		if len(fields) != 2 {
			fmt.Println("usage: delete <key>")
			return true
		}

		if err := store.Delete([]byte(fields[1])); err != nil {
			fmt.Println("error:", err)
		}

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return true
		}

		if err := store.Lookup([]byte(fields[1]), result); err != nil {
			fmt.Println("error:", err)
			return true
		}

		if !result.Found() {
			fmt.Println("(not found)")
			return true
		}

		v, _ := result.Value()
		fmt.Printf("%s\n", v)

	case "scan":
		var start []byte
		if len(fields) == 2 {
			start = []byte(fields[1])
		}

		it, err := store.NewIterator(start)
		if err != nil {
			fmt.Println("error:", err)
			return true
		}

		for it.Valid() {
			k, v := it.Current()
			fmt.Printf("%s\t%s\n", k, v)
			it.Next()
		}

		_ = it.Close()

	case "stats":
		store.StatsPrintInsertion(os.Stdout)
		store.StatsPrintLookup(os.Stdout)

	case "help":
		fmt.Println("commands: insert <k> <v>, delete <k>, get <k>, scan [start], stats, quit")

	default:
		fmt.Printf("unknown command %q (try \"help\")\n", cmd)
	}

	return true
}
