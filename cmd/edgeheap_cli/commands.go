package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sushant-115/edgeheapdb/core/edgeheap"
	storageengine "github.com/sushant-115/edgeheapdb/core/storage_engine"
	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
)

var errQuit = errors.New("quit")

// session holds the engine and the heap file commands act on.
type session struct {
	engine *storageengine.Engine
	file   *edgeheap.EdgeHeapfile
	out    io.Writer
}

func newSession(engine *storageengine.Engine, out io.Writer) *session {
	return &session{engine: engine, out: out}
}

// parseNodeID accepts "page:slot".
func parseNodeID(s string) (edgeheap.NodeID, error) {
	page, slot, ok := strings.Cut(s, ":")
	if !ok {
		return edgeheap.NodeID{}, fmt.Errorf("node id %q must be <page>:<slot>", s)
	}
	p, err := strconv.ParseUint(page, 10, 64)
	if err != nil {
		return edgeheap.NodeID{}, fmt.Errorf("node id %q: bad page: %w", s, err)
	}
	n, err := strconv.ParseUint(slot, 10, 16)
	if err != nil {
		return edgeheap.NodeID{}, fmt.Errorf("node id %q: bad slot: %w", s, err)
	}
	return edgeheap.NodeID{PageID: p, Slot: uint16(n)}, nil
}

func parseEID(page, slot string) (edgeheap.EID, error) {
	n, err := parseNodeID(page + ":" + slot)
	if err != nil {
		return edgeheap.EID{}, err
	}
	return edgeheap.EID{PageID: pagemanager.PageID(n.PageID), SlotNo: slottedpage.SlotID(n.Slot)}, nil
}

func parseEdge(args []string) (*edgeheap.Edge, error) {
	src, err := parseNodeID(args[0])
	if err != nil {
		return nil, err
	}
	dst, err := parseNodeID(args[1])
	if err != nil {
		return nil, err
	}
	e := &edgeheap.Edge{Source: src, Destination: dst, Label: args[2]}
	if len(args) > 3 {
		e.Payload = []byte(strings.Join(args[3:], " "))
	}
	return e, nil
}

func formatEdge(eid edgeheap.EID, e *edgeheap.Edge) string {
	s := fmt.Sprintf("%s %d:%d -[%s]-> %d:%d", eid,
		e.Source.PageID, e.Source.Slot, e.Label, e.Destination.PageID, e.Destination.Slot)
	if len(e.Payload) > 0 {
		s += " payload=" + strconv.Quote(string(e.Payload))
	}
	return s
}

func (s *session) printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *session) requireFile() bool {
	if s.file == nil {
		s.printf("Error: no heap file open. Use 'open <name>' or 'temp' first.\n")
		return false
	}
	return true
}

// processCommand runs one command line. It returns errQuit on exit.
func (s *session) processCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "open":
		if len(args) != 2 {
			s.printf("Error: open requires a file name.\n")
			return nil
		}
		s.openFile(ctx, args[1])
	case "temp":
		s.openFile(ctx, "")
	case "insert":
		if len(args) < 4 {
			s.printf("Error: insert requires <src page:slot> <dst page:slot> <label> [payload].\n")
			return nil
		}
		if !s.requireFile() {
			return nil
		}
		e, err := parseEdge(args[1:])
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		eid, err := s.file.InsertEdge(ctx, e)
		if err != nil {
			s.printf("Error: insert failed: %v\n", err)
			return nil
		}
		s.printf("Inserted %s\n", eid)
	case "get":
		if len(args) != 3 {
			s.printf("Error: get requires <page> <slot>.\n")
			return nil
		}
		if !s.requireFile() {
			return nil
		}
		eid, err := parseEID(args[1], args[2])
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		e, found, err := s.file.GetEdge(ctx, eid)
		switch {
		case err != nil:
			s.printf("Error: get failed: %v\n", err)
		case !found:
			s.printf("Not found: %s\n", eid)
		default:
			s.printf("%s\n", formatEdge(eid, e))
		}
	case "update":
		if len(args) < 6 {
			s.printf("Error: update requires <page> <slot> <src page:slot> <dst page:slot> <label> [payload].\n")
			return nil
		}
		if !s.requireFile() {
			return nil
		}
		eid, err := parseEID(args[1], args[2])
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		e, err := parseEdge(args[3:])
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		found, err := s.file.UpdateEdge(ctx, eid, e)
		switch {
		case err != nil:
			s.printf("Error: update failed: %v\n", err)
		case !found:
			s.printf("Not found: %s\n", eid)
		default:
			s.printf("Updated %s\n", eid)
		}
	case "delete":
		if len(args) != 3 {
			s.printf("Error: delete requires <page> <slot>.\n")
			return nil
		}
		if !s.requireFile() {
			return nil
		}
		eid, err := parseEID(args[1], args[2])
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		found, err := s.file.DeleteEdge(ctx, eid)
		switch {
		case err != nil:
			s.printf("Error: delete failed: %v\n", err)
		case !found:
			s.printf("Not found: %s\n", eid)
		default:
			s.printf("Deleted %s\n", eid)
		}
	case "stats":
		if !s.requireFile() {
			return nil
		}
		s.stats(ctx)
	case "scan":
		if !s.requireFile() {
			return nil
		}
		limit := -1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				s.printf("Error: scan limit must be a non-negative integer.\n")
				return nil
			}
			limit = n
		}
		s.scan(ctx, limit)
	case "drop":
		if !s.requireFile() {
			return nil
		}
		name := s.file.Name()
		if err := s.file.DeleteFile(ctx); err != nil {
			s.printf("Error: drop failed: %v\n", err)
			return nil
		}
		s.file = nil
		s.printf("Dropped %s\n", name)
	case "files":
		names, err := s.engine.Files()
		if err != nil {
			s.printf("Error: %v\n", err)
			return nil
		}
		for _, name := range names {
			s.printf("  %s\n", name)
		}
		s.printf("%d file(s)\n", len(names))
	case "backup":
		if len(args) != 2 {
			s.printf("Error: backup requires a target directory.\n")
			return nil
		}
		sum, err := s.engine.Backup(ctx, args[1])
		if err != nil {
			s.printf("Error: backup failed: %v\n", err)
			return nil
		}
		s.printf("Backup written to %s (sha256 %s)\n", args[1], hex.EncodeToString(sum))
	case "flush":
		if err := s.engine.Flush(); err != nil {
			s.printf("Error: flush failed: %v\n", err)
			return nil
		}
		s.printf("Flushed\n")
	case "pool":
		st := s.engine.PoolStats()
		numPages, freePages := s.engine.DiskStats()
		s.printf("frames=%d resident=%d pinned=%d dirty=%d\n", st.PoolSize, st.Resident, st.Pinned, st.Dirty)
		s.printf("pages=%d free=%d page_size=%d\n", numPages, freePages, s.engine.PageSize())
	case "help":
		s.printf("Commands:\n")
		s.printf("  open <name>\n")
		s.printf("  temp\n")
		s.printf("  insert <src page:slot> <dst page:slot> <label> [payload]\n")
		s.printf("  get <page> <slot>\n")
		s.printf("  update <page> <slot> <src page:slot> <dst page:slot> <label> [payload]\n")
		s.printf("  delete <page> <slot>\n")
		s.printf("  scan [limit]\n")
		s.printf("  stats\n")
		s.printf("  drop\n")
		s.printf("  files\n")
		s.printf("  backup <dir>\n")
		s.printf("  flush\n")
		s.printf("  pool\n")
		s.printf("  help\n")
		s.printf("  exit / quit\n")
	case "exit", "quit":
		if err := s.close(ctx); err != nil {
			s.printf("Error: %v\n", err)
		}
		return errQuit
	default:
		s.printf("Error: Unknown command. Type 'help' for a list of commands.\n")
	}
	return nil
}

func (s *session) openFile(ctx context.Context, name string) {
	if err := s.close(ctx); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	f, err := s.engine.OpenEdgeHeapfile(name)
	if err != nil {
		s.printf("Error: open failed: %v\n", err)
		return
	}
	s.file = f
	kind := "file"
	if f.IsTemporary() {
		kind = "temporary file"
	}
	s.printf("Opened %s %s (first directory page %s)\n", kind, f.Name(), f.FirstDirPageID())
}

// close lets go of the current file. The session owns the temporary files
// it creates, so a temporary file is deleted here.
func (s *session) close(ctx context.Context) error {
	f := s.file
	if f == nil {
		return nil
	}
	if f.IsTemporary() && !f.IsDeleted() {
		if err := f.DeleteFile(ctx); err != nil {
			return fmt.Errorf("dropping temporary file %s: %w", f.Name(), err)
		}
		s.printf("Dropped temporary file %s\n", f.Name())
	}
	s.file = nil
	return nil
}

func (s *session) stats(ctx context.Context) {
	edges, err := s.file.EdgeCount(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	sources, err := s.file.SourceCount(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	dests, err := s.file.DestinationCount(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	labels, err := s.file.LabelCount(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("edges=%d sources=%d destinations=%d labels=%d\n", edges, sources, dests, labels)
}

func (s *session) scan(ctx context.Context, limit int) {
	sc := s.file.OpenScan()
	defer sc.Close()
	n := 0
	for limit < 0 || n < limit {
		eid, e, ok, err := sc.Next(ctx)
		if err != nil {
			s.printf("Error: scan failed: %v\n", err)
			return
		}
		if !ok {
			break
		}
		s.printf("%s\n", formatEdge(eid, e))
		n++
	}
	s.printf("%d edge(s)\n", n)
}
