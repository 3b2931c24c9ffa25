// Command kvctl is a thin CLI front-end over the kvstore façade: create or
// open a store and run a single point/range operation against it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/calvinalkan/kvstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := pflag.NewFlagSet("kvctl", pflag.ContinueOnError)

	file := fs.StringP("file", "f", "", "store file path")
	cacheSize := fs.Uint64("cache-size", 64<<20, "in-memory cache size budget, bytes")
	diskSize := fs.Uint64("disk-size", 256<<20, "on-disk size budget, bytes")
	keySize := fs.Int("key-size", 64, "max logical key length")
	start := fs.String("start", "", "scan: start key (inclusive); empty scans from the beginning")

	fs.SetOutput(stderr)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 || *file == "" {
		fmt.Fprintln(stderr, "usage: kvctl -f <file> [--cache-size N] [--disk-size N] <insert|delete|lookup|scan|stats> [args...]")
		return 2
	}

	cfg := &kvstore.StoreConfig{
		Filename:  *file,
		CacheSize: *cacheSize,
		DiskSize:  *diskSize,
		App:       kvstore.DefaultConfig(*keySize),
	}

	store, err := kvstore.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "kvctl: open: %v\n", err)
		return 1
	}

	defer store.Close()

	switch rest[0] {
	case "insert":
		return cmdInsert(store, rest[1:], stdout, stderr)
	case "delete":
		return cmdDelete(store, rest[1:], stdout, stderr)
	case "lookup":
		return cmdLookup(store, rest[1:], stdout, stderr)
	case "scan":
		return cmdScan(store, *start, stdout, stderr)
	case "stats":
		store.StatsPrintInsertion(stdout)
		store.StatsPrintLookup(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "kvctl: unknown command %q\n", rest[0])
		return 2
	}
}

func cmdInsert(store *kvstore.Store, args []string, stdout, stderr *os.File) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: kvctl ... insert <key> <value>")
		return 2
	}

	if err := store.Insert([]byte(args[0]), []byte(args[1])); err != nil {
		fmt.Fprintf(stderr, "kvctl: insert: %v\n", err)
		return 1
	}

	return 0
}

func cmdDelete(store *kvstore.Store, args []string, stdout, stderr *os.File) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: kvctl ... delete <key>")
		return 2
	}

	if err := store.Delete([]byte(args[0])); err != nil {
		fmt.Fprintf(stderr, "kvctl: delete: %v\n", err)
		return 1
	}

	return 0
}

func cmdLookup(store *kvstore.Store, args []string, stdout, stderr *os.File) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: kvctl ... lookup <key>")
		return 2
	}

	result := kvstore.NewLookupResult(nil)
	defer result.Deinit()

	if err := store.Lookup([]byte(args[0]), result); err != nil {
		fmt.Fprintf(stderr, "kvctl: lookup: %v\n", err)
		return 1
	}

	if !result.Found() {
		fmt.Fprintln(stdout, "not found")
		return 1
	}

	value, _ := result.Value()
	fmt.Fprintf(stdout, "%s\n", value)

	return 0
}

func cmdScan(store *kvstore.Store, start string, stdout, stderr *os.File) int {
	var startKey []byte
	if start != "" {
		startKey = []byte(start)
	}

	it, err := store.NewIterator(startKey)
	if err != nil {
		fmt.Fprintf(stderr, "kvctl: scan: %v\n", err)
		return 1
	}

	defer it.Close()

	for it.Valid() {
		k, v := it.Current()
		fmt.Fprintf(stdout, "%s\t%s\n", k, v)
		it.Next()
	}

	if err := it.Status(); err != nil {
		fmt.Fprintf(stderr, "kvctl: scan: %v\n", err)
		return 1
	}

	return 0
}
