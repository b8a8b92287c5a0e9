package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"heroes/internal/metrics"
	"heroes/internal/model"
	"heroes/internal/query"
	"heroes/internal/storage"
)

var plog = logger.GetLogger("engine")

var (
	// ErrBusy is returned when a mutation could not be queued within the enqueue timeout.
	ErrBusy = errors.New("too many pending mutations")
	// ErrClosed is returned once the service has stopped accepting mutations.
	ErrClosed = errors.New("mutation service is closed")
)

const (
	defaultEnqueueTimeout      = 5 * time.Second
	defaultMaxPendingMutations = 1024
	DefaultUniverse            = "Earth-616"
)

type ServiceCfg struct {
	EnqueueTimeout      time.Duration
	MaxPendingMutations int
	// DefaultUniverse is stored when a create omits the universe.
	DefaultUniverse string
}

type mutationRequest struct {
	op    model.OpsType
	apply func(model.Collection) (model.Collection, model.Character, error)
	done  chan mutationResult
}

type mutationResult struct {
	record model.Character
	err    error
}

/*
Service applies creates, updates and deletes to the collection.

A single writer goroutine owns the read-modify-write cycle:
  - Ordering: the request channel preserves arrival order; one mutation is in flight at a time.
  - No lost updates: every mutation loads the collection saved by the previous one.
  - Backpressure: a bounded channel plus enqueue timeout fails fast with ErrBusy.
  - Completion: once queued, a mutation runs to the end even if the caller goes away.

Reads do not go through the writer; they load the latest saved snapshot.
*/
type Service struct {
	store    storage.RecordStore
	journal  *Journal
	cfg      ServiceCfg
	requests chan mutationRequest
	stopped  chan struct{}
}

// NewService starts the writer goroutine. journal may be nil. Cancelling the
// returned function stops the writer after the mutation in flight.
func NewService(ctx context.Context, store storage.RecordStore, journal *Journal, cfg ServiceCfg) (*Service, context.CancelFunc) {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.MaxPendingMutations <= 0 {
		cfg.MaxPendingMutations = defaultMaxPendingMutations
	}

	s := &Service{
		store:    store,
		journal:  journal,
		cfg:      cfg,
		requests: make(chan mutationRequest, cfg.MaxPendingMutations),
		stopped:  make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	go s.run(runCtx)
	return s, cancel
}

// Done is closed once the writer goroutine has exited.
func (s *Service) Done() <-chan struct{} {
	return s.stopped
}

// Journal returns the mutation journal, or nil when journaling is disabled.
func (s *Service) Journal() *Journal {
	return s.journal
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (s *Service) List(ctx context.Context) (model.Collection, error) {
	c, err := s.store.LoadAll(ctx)
	if err != nil {
		metrics.ObserveStorageError("load")
		return nil, err
	}
	return c, nil
}

// Search filters the current collection by name or real name.
func (s *Service) Search(ctx context.Context, q string) (model.Collection, error) {
	c, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	found := query.Search(c, q)
	metrics.ObserveSearch(len(found))
	return found, nil
}

func (s *Service) Get(ctx context.Context, id model.CharacterID) (model.Character, error) {
	c, err := s.List(ctx)
	if err != nil {
		return model.Character{}, err
	}
	ch, _, ok := query.Find(c, id)
	if !ok {
		return model.Character{}, &model.NotFoundError{ID: id}
	}
	return ch, nil
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// Create validates in, assigns the next id and appends the record.
func (s *Service) Create(ctx context.Context, in model.CharacterInput) (model.Character, error) {
	if err := in.Validate(); err != nil {
		metrics.ObserveMutation(model.CREATE.String(), metrics.ResultInvalid)
		return model.Character{}, err
	}
	n := in.Normalized()
	if n.Universe == "" {
		n.Universe = s.cfg.DefaultUniverse
	}

	return s.submit(ctx, model.CREATE, func(c model.Collection) (model.Collection, model.Character, error) {
		id, err := query.NextID(c)
		if err != nil {
			return nil, model.Character{}, err
		}
		ch := model.Character{
			ID:       id,
			Name:     n.Name,
			RealName: n.RealName,
			Universe: n.Universe,
		}
		return append(c, ch), ch, nil
	})
}

// Update merges the present fields of in into the record with the given id.
func (s *Service) Update(ctx context.Context, id model.CharacterID, in model.CharacterInput) (model.Character, error) {
	return s.submit(ctx, model.UPDATE, func(c model.Collection) (model.Collection, model.Character, error) {
		ch, idx, ok := query.Find(c, id)
		if !ok {
			return nil, model.Character{}, &model.NotFoundError{ID: id}
		}
		c[idx] = ch.Merge(in)
		return c, c[idx], nil
	})
}

// Delete removes the record with the given id.
func (s *Service) Delete(ctx context.Context, id model.CharacterID) error {
	_, err := s.submit(ctx, model.DELETE, func(c model.Collection) (model.Collection, model.Character, error) {
		ch, idx, ok := query.Find(c, id)
		if !ok {
			return nil, model.Character{}, &model.NotFoundError{ID: id}
		}
		return append(c[:idx], c[idx+1:]...), ch, nil
	})
	return err
}

// submit queues a mutation for the writer and waits for its result. The
// caller's context only bounds the wait for a queue slot.
func (s *Service) submit(
	ctx context.Context,
	op model.OpsType,
	apply func(model.Collection) (model.Collection, model.Character, error),
) (model.Character, error) {
	req := mutationRequest{op: op, apply: apply, done: make(chan mutationResult, 1)}

	res := s.enqueueAndWait(ctx, req)
	metrics.ObserveMutation(op.String(), classify(res.err))
	return res.record, res.err
}

func (s *Service) enqueueAndWait(ctx context.Context, req mutationRequest) mutationResult {
	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case <-s.stopped:
		return mutationResult{err: ErrClosed}
	default:
	}

	select {
	case s.requests <- req:
	case <-s.stopped:
		return mutationResult{err: ErrClosed}
	case <-timer.C:
		return mutationResult{err: ErrBusy}
	case <-ctx.Done():
		return mutationResult{err: ctx.Err()}
	}

	select {
	case res := <-req.done:
		return res
	case <-s.stopped:
		// the writer answers a request before it can exit
		select {
		case res := <-req.done:
			return res
		default:
			return mutationResult{err: ErrClosed}
		}
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.stopped)
	// mutations already taken off the queue finish even during shutdown
	execCtx := context.WithoutCancel(ctx)
	for {
		select {
		case req := <-s.requests:
			req.done <- s.execute(execCtx, req)
		case <-ctx.Done():
			plog.Infof("mutation writer is shutting down (%d queued mutations dropped)", len(s.requests))
			return
		}
	}
}

// execute performs one read-modify-write cycle.
func (s *Service) execute(ctx context.Context, req mutationRequest) mutationResult {
	c, err := s.store.LoadAll(ctx)
	if err != nil {
		metrics.ObserveStorageError("load")
		return mutationResult{err: err}
	}

	next, record, err := req.apply(c.Clone())
	if err != nil {
		return mutationResult{err: err}
	}

	if err := s.store.SaveAll(ctx, next); err != nil {
		metrics.ObserveStorageError("save")
		return mutationResult{err: err}
	}

	if s.journal != nil {
		if _, err := s.journal.Append(model.Mutation{Op: req.op, Record: record}); err != nil {
			plog.Errorf("failed to journal %s of character %d: %v", req.op, record.ID, err)
		}
	}
	plog.Debugf("%s character %d (%d records)", req.op, record.ID, len(next))
	return mutationResult{record: record}
}

func classify(err error) string {
	var (
		verr *model.ValidationError
		nerr *model.NotFoundError
	)
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.As(err, &verr):
		return metrics.ResultInvalid
	case errors.As(err, &nerr):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
