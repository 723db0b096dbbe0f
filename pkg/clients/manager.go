package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/storage"
)

var ErrNoHandle = errors.New("client has no active connection")

// Manager is the registry of connected clients and the source of
// participant sets for each round.
type Manager struct {
	mu       sync.Mutex
	repo     storage.Storage[Descriptor]
	handles  map[string]Client
	rng      *rand.Rand
	timeout  time.Duration
	liveness time.Duration
	now      func() time.Time
}

type ManagerOption func(*Manager)

// WithSeed makes sampling reproducible for a given registry snapshot.
func WithSeed(seed uint64) ManagerOption {
	return func(m *Manager) {
		m.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithCallTimeout bounds every fit and evaluate call made through proxies.
// A non-positive d keeps DefaultCallTimeout.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLivenessTimeout hides clients whose last heartbeat is older than d.
// Zero disables the check.
func WithLivenessTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.liveness = d
	}
}

func WithStorage(repo storage.Storage[Descriptor]) ManagerOption {
	return func(m *Manager) {
		m.repo = repo
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:    storage.NewInMemoryStorage[Descriptor](),
		handles: make(map[string]Client),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		timeout: DefaultCallTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Register adds a client or reconnects a known one. The descriptor's
// registration time is kept across reconnects.
func (m *Manager) Register(ctx context.Context, d Descriptor, c Client) (Descriptor, error) {
	if d.ID == "" {
		return Descriptor{}, pkgerrors.ErrEmptyKey
	}
	if c == nil {
		return Descriptor{}, ErrNoHandle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	d.State = Available
	d.LastSeen = now
	if d.Name == "" {
		d.Name = d.ID
	}

	existing, err := m.repo.Get(ctx, d.ID)
	switch {
	case err == nil:
		d.RegisteredAt = existing.RegisteredAt
		err = m.repo.Update(ctx, d.ID, d)
	case errors.Is(err, pkgerrors.ErrNotFound):
		d.RegisteredAt = now
		err = m.repo.Create(ctx, d.ID, d)
	}
	if err != nil {
		return Descriptor{}, err
	}
	m.handles[d.ID] = c

	return d, nil
}

// Disconnect marks a client offline and drops its connection handle.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.handles, id)

	return m.update(ctx, id, func(d *Descriptor) {
		d.State = Offline
	})
}

// Remove forgets a client entirely.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.handles, id)

	return m.repo.Delete(ctx, id)
}

// Heartbeat refreshes a client's liveness. An offline client with a live
// handle becomes available again.
func (m *Manager) Heartbeat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, connected := m.handles[id]

	return m.update(ctx, id, func(d *Descriptor) {
		d.LastSeen = m.now()
		if d.State == Offline && connected {
			d.State = Available
		}
	})
}

func (m *Manager) SetState(ctx context.Context, id string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(ctx, id, func(d *Descriptor) {
		d.State = s
	})
}

func (m *Manager) update(ctx context.Context, id string, fn func(d *Descriptor)) error {
	d, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(&d)

	return m.repo.Update(ctx, id, d)
}

func (m *Manager) Get(ctx context.Context, id string) (Descriptor, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, offset, limit uint64) (Page, error) {
	descs, total, err := m.repo.List(ctx, offset, limit)
	if err != nil {
		return Page{}, err
	}
	if descs == nil {
		descs = []Descriptor{}
	}

	return Page{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Clients: descs,
	}, nil
}

// Available returns the clients that can be sampled right now, sorted by
// ID. A nil criterion selects every available client.
func (m *Manager) Available(ctx context.Context, criterion Criterion) ([]Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.available(ctx, criterion)
}

func (m *Manager) available(ctx context.Context, criterion Criterion) ([]Descriptor, error) {
	all, _, err := m.repo.List(ctx, 0, math.MaxUint64)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.State != Available {
			continue
		}
		if _, ok := m.handles[d.ID]; !ok {
			continue
		}
		if m.liveness > 0 && now.Sub(d.LastSeen) > m.liveness {
			continue
		}
		if criterion != nil && !criterion.Select(d) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// Sample picks max(minCount, ceil(fraction*available)) clients at random.
// It fails with fl.ErrInsufficientClients when fewer than minCount clients
// are available.
func (m *Manager) Sample(ctx context.Context, minCount int, fraction float64, criterion Criterion) ([]Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	avail, err := m.available(ctx, criterion)
	if err != nil {
		return nil, err
	}
	if len(avail) < minCount {
		return nil, fmt.Errorf("%w: %d available, %d required", fl.ErrInsufficientClients, len(avail), minCount)
	}

	n := fl.SampleSize(len(avail), minCount, fraction)
	perm := m.rng.Perm(len(avail))
	picked := make([]Descriptor, n)
	for i := range n {
		picked[i] = avail[perm[i]]
	}
	slices.SortFunc(picked, func(a, b Descriptor) int { return strings.Compare(a.ID, b.ID) })

	return picked, nil
}

// Proxy returns a call handle for a connected client.
func (m *Manager) Proxy(id string) (*Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandle, id)
	}

	return NewProxy(id, c, m.timeout), nil
}
