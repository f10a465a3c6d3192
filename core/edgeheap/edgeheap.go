// Package edgeheap stores variable-length edge records in a directory-based
// heap file.
//
// A file is a doubly-linked chain of directory pages. Each directory page is a
// slotted page of DataPageInfo entries, and each entry describes one data page
// holding edges. The id of the first directory page is the file's permanent
// handle and is kept in the catalog under the file name.
//
// Every public call pins pages from the buffer pool, works on them and unpins
// them again before returning, on success and failure alike. Mutations are not
// transactional: a failure half way through a delete can leave a directory
// entry pointing at a page that was already freed.
package edgeheap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	slottedpage "github.com/sushant-115/edgeheapdb/core/storage_engine/slotted_page"
	pagemanager "github.com/sushant-115/edgeheapdb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/edgeheapdb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// BufferPool is the page cache the heap file pins pages through.
type BufferPool interface {
	FetchPage(pagemanager.PageID) (*pagemanager.Page, error)
	UnpinPage(pagemanager.PageID, bool) error
	NewPage() (*pagemanager.Page, pagemanager.PageID, error)
	FreePage(pagemanager.PageID) error
	GetPageSize() int
}

// Catalog maps file names to first directory pages.
type Catalog interface {
	Resolve(name string) (pagemanager.PageID, bool, error)
	Register(name string, id pagemanager.PageID) error
	Unregister(name string) error
}

const tempNamePrefix = "tempEdgeHeapFile-"

func defaultTempName() string { return tempNamePrefix + uuid.NewString() }

// EdgeHeapfile is an open edge heap file. Calls on one handle are serialized.
type EdgeHeapfile struct {
	mu sync.Mutex

	name           string
	firstDirPageID pagemanager.PageID
	temporary      bool
	deleted        bool
	// generation changes whenever a page leaves the file; scans use it to
	// notice that a remembered page id may be stale.
	generation uint64

	bpm      BufferPool
	catalog  Catalog
	pageSize int

	logger  *zap.Logger
	metrics *internaltelemetry.StorageMetrics
	tracer  trace.Tracer
	newName func() string
}

// Option configures Open.
type Option func(*EdgeHeapfile)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(f *EdgeHeapfile) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics sets the instruments each operation records to; nil keeps no-op instruments.
func WithMetrics(m *internaltelemetry.StorageMetrics) Option {
	return func(f *EdgeHeapfile) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithTracer sets the tracer each operation opens a span on; nil keeps the no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *EdgeHeapfile) {
		if t != nil {
			f.tracer = t
		}
	}
}

// WithNameGenerator sets how temporary files are named.
func WithNameGenerator(gen func() string) Option {
	return func(f *EdgeHeapfile) {
		if gen != nil {
			f.newName = gen
		}
	}
}

// Open opens the file registered under name, creating it if the catalog has
// no entry. An empty name creates a temporary file under a generated name;
// temporary files are registered like any other and should be removed with
// DeleteFile by their owner.
func Open(name string, bpm BufferPool, catalog Catalog, opts ...Option) (*EdgeHeapfile, error) {
	f := &EdgeHeapfile{
		bpm:      bpm,
		catalog:  catalog,
		pageSize: bpm.GetPageSize(),
		logger:   zap.NewNop(),
		metrics:  internaltelemetry.NewNoopStorageMetrics(),
		tracer:   nooptrace.NewTracerProvider().Tracer(""),
		newName:  defaultTempName,
	}
	for _, opt := range opts {
		opt(f)
	}

	if name == "" {
		f.temporary = true
		f.name = f.newName()
	} else {
		f.name = name
		id, found, err := catalog.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", name, err)
		}
		if found {
			f.firstDirPageID = id
		}
	}
	f.logger = f.logger.Named("edgeheap").With(zap.String("file", f.name))

	if f.firstDirPageID != pagemanager.InvalidPageID {
		f.logger.Info("opened edge heap file", zap.Stringer("first_dir_page", f.firstDirPageID))
		return f, nil
	}

	dir, err := formatNew(bpm, slottedpage.TypeDirectory)
	if err != nil {
		return nil, fmt.Errorf("creating %q: %w", f.name, err)
	}
	f.metrics.PagesAllocated.Add(context.Background(), 1)
	if err := dir.release(); err != nil {
		return nil, fmt.Errorf("creating %q: %w", f.name, err)
	}
	if err := catalog.Register(f.name, dir.id); err != nil {
		if freeErr := bpm.FreePage(dir.id); freeErr != nil {
			f.logger.Error("failed to free unregistered directory page", zap.Stringer("page_id", dir.id), zap.Error(freeErr))
		}
		return nil, fmt.Errorf("registering %q: %w", f.name, err)
	}
	f.firstDirPageID = dir.id
	f.logger.Info("created edge heap file",
		zap.Stringer("first_dir_page", f.firstDirPageID),
		zap.Bool("temporary", f.temporary))
	return f, nil
}

func (f *EdgeHeapfile) Name() string { return f.name }

// FirstDirPageID is the file's permanent handle.
func (f *EdgeHeapfile) FirstDirPageID() pagemanager.PageID { return f.firstDirPageID }

func (f *EdgeHeapfile) IsTemporary() bool { return f.temporary }

func (f *EdgeHeapfile) IsDeleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted
}

// begin locks the file and starts a span. The returned func ends both and
// records the outcome; it must be deferred with a pointer to the named error.
func (f *EdgeHeapfile) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	f.mu.Lock()
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, "edgeheap."+op, trace.WithAttributes(
		attribute.String("edgeheap.file", f.name),
	))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			f.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
		}
		span.End()
		f.metrics.RecordOp(ctx, op, float64(time.Since(start).Microseconds())/1000, err != nil)
		f.mu.Unlock()
	}
}

func (f *EdgeHeapfile) checkLive() error {
	if f.deleted {
		return fmt.Errorf("%w: %q", ErrFileAlreadyDeleted, f.name)
	}
	return nil
}
