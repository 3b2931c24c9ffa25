package kvstore

import (
	"errors"
	"fmt"
	"log"

	"github.com/calvinalkan/kvstore/internal/engine"
)

// Store is the caller's handle to a mounted engine instance. It owns the
// shim, the thread registry, and the underlying engine.Store exclusively;
// nothing survives Close.
//
// Lifecycle: Uninitialized -> Mounted -> Closed. There is no transition
// back to Mounted once Closed.
type Store struct {
	cfg  *StoreConfig
	shim *shim
	eng  *engine.Store

	threads *threadRegistry

	openerGoroutine int64
}

// Create opens cfg.Filename, creating it if absent. It is equivalent to
// Open: the underlying engine always either creates or mounts depending on
// whether the file already exists (SPEC_FULL.md §4.4.2 steps 11/13).
func Create(cfg *StoreConfig) (*Store, error) {
	return openStore(cfg)
}

// Open mounts cfg.Filename, creating it if it does not yet exist.
func Open(cfg *StoreConfig) (*Store, error) {
	return openStore(cfg)
}

func openStore(cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		return nil, ErrBadParam
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := cfg.App.Validate(); err != nil {
		return nil, err
	}

	sh, err := newShim(cfg.App)
	if err != nil {
		return nil, err
	}

	valueCap := int(cfg.PageSize)

	approxOverhead := uint64(sh.physicalKeySize + valueCap + 16)

	slotCapacity := cfg.DiskSize / approxOverhead
	if slotCapacity < 1 {
		slotCapacity = 1
	}

	writeback := engine.WritebackNone
	if cfg.UseLog {
		writeback = engine.WritebackSync
	}

	engCfg := engine.Config{
		Path:            cfg.Filename,
		PhysicalKeySize: sh.physicalKeySize,
		ValueCap:        valueCap,
		SlotCapacity:    slotCapacity,
		Compare:         sh.compare,
		Hash:            sh.hash,
		Writeback:       writeback,
		DisableLocking:  false,
		Trunk: engine.TrunkParams{
			Fanout:             cfg.Fanout,
			MaxBranchesPerNode: cfg.MaxBranchesPerNode,
			RoughCountHeight:   cfg.BTreeRoughCountHeight,
			ReclaimThreshold:   cfg.ReclaimThreshold,
		},
	}

	eng, created, err := engine.Open(engCfg)
	if err != nil {
		return nil, translateEngineErr(err)
	}

	if eng == nil {
		return nil, ErrInvalidState
	}

	if created {
		log.Printf("kvstore: created new store at %s", cfg.Filename)
	} else {
		log.Printf("kvstore: mounted existing store at %s", cfg.Filename)
	}

	return &Store{
		cfg:             cfg,
		shim:            sh,
		eng:             eng,
		threads:         newThreadRegistry(),
		openerGoroutine: goroutineID(),
	}, nil
}

func translateEngineErr(err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return ErrBadParam
	case errors.Is(err, engine.ErrFull):
		return ErrNoMemory
	case errors.Is(err, engine.ErrClosed):
		return ErrInvalidState
	case errors.Is(err, engine.ErrCorrupt), errors.Is(err, engine.ErrIncompatible), errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrWriteback):
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
}

// Close unmounts the store. Best-effort: diagnostics surface through logs,
// not return values, matching the façade's close() contract. Idempotent;
// a second Close on an already-closed Store is a no-op.
func (s *Store) Close() {
	if s.eng == nil {
		return
	}

	if err := s.eng.Close(); err != nil {
		log.Printf("kvstore: close %s: %v", s.cfg.Filename, err)
	}

	s.eng = nil
}

// RegisterThread registers the calling goroutine so it may use Store. The
// goroutine that called Create/Open is implicitly registered; every other
// goroutine must call this before its first operation (SPEC_FULL.md §4.5).
func (s *Store) RegisterThread() error {
	return s.threads.register(goroutineID())
}

// DeregisterThread releases the calling goroutine's scratch buffer.
// Skipping this before the goroutine exits leaks the buffer; it is not
// fatal.
func (s *Store) DeregisterThread() {
	s.threads.deregister(goroutineID())
}

func (s *Store) assertRegistered() {
	id := goroutineID()
	if id == s.openerGoroutine || s.threads.registered(id) {
		return
	}

	panic("kvstore: operation from unregistered goroutine")
}

// Version returns a build identifier string.
func Version() string {
	return "kvstore-0.1.0"
}
