package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
)

const (
	// DefaultInterval is the time between polls.
	DefaultInterval = 4 * time.Second

	defaultConcurrency = 8
	defaultSeenSize    = 10000
)

// ErrNoNodes is returned when the swarm of an address is empty.
var ErrNoNodes = errors.New("no storage nodes for address")

// Config holds the collaborators of a Poller.
type Config struct {
	// Local is the local user's public key, polled as the direct inbox.
	// The zero key disables inbox polling.
	Local domain.X25519Public

	// Groups provides the poll set and persists poll cursors.
	Groups  domain.GroupStore
	Network domain.NetworkLayer
	Handler domain.EnvelopeHandler

	// Interval between ticks. Zero means DefaultInterval.
	Interval time.Duration
	// Concurrency bounds parallel group fetches in a tick. Zero means 8.
	Concurrency int
	// SeenSize is the number of handled envelope hashes remembered for
	// deduplication. Zero means 10000.
	SeenSize int

	Log slog.Logger
}

// Poller drives periodic fetching.
type Poller struct {
	cfg Config
	log slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cursors map[domain.X25519Public]string

	seen *lru.Cache[string, struct{}]
}

// New returns a stopped Poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.SeenSize <= 0 {
		cfg.SeenSize = defaultSeenSize
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	seen, err := lru.New[string, struct{}](cfg.SeenSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	return &Poller{
		cfg:     cfg,
		log:     log,
		cursors: make(map[domain.X25519Public]string),
		seen:    seen,
	}, nil
}

// IsRunning reports whether the periodic loop is active.
func (p *Poller) IsRunning() bool { return p.running.Load() }

// Start begins polling: one tick immediately, then one per interval, until
// Stop is called or ctx is done. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	p.log.Infof("Polling every %s", p.cfg.Interval)

	go p.run(ctx, p.done)
}

// Stop halts the loop and waits for the current tick to wind down. Envelopes
// not yet handled when Stop is called are left for the next Start. Stop also
// waits for a loop that already ended because its parent context was done.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.running.Store(false)
	p.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	p.log.Infof("Polling stopped")
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Debugf("Poll finished with errors: %v", err)
		}
		select {
		case <-ctx.Done():
			p.running.Store(false)
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs a single tick. A failure for one address is logged and
// does not prevent the others from being polled; all failures are joined
// into the result.
func (p *Poller) PollOnce(ctx context.Context) error {
	groups, err := p.cfg.Groups.PollSet()
	if err != nil {
		return fmt.Errorf("load poll set: %w", err)
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		errs     []error
		deferred []pending
	)
	g.SetLimit(p.cfg.Concurrency)
	for _, group := range groups {
		g.Go(func() error {
			retry, err := p.pollAddress(ctx, group, true)
			mu.Lock()
			defer mu.Unlock()
			deferred = append(deferred, retry...)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !p.cfg.Local.IsZero() {
		if _, err := p.pollAddress(ctx, p.cfg.Local, false); err != nil {
			errs = append(errs, err)
		}
	}

	for _, env := range deferred {
		if !p.shouldContinue(ctx) {
			break
		}
		if err := p.cfg.Handler.HandleEnvelope(ctx, env.address, env.data); err != nil {
			p.log.Debugf("Retry on %s still failing: %v", env.address, err)
		}
	}
	return errors.Join(errs...)
}

// pending is a group envelope to retry later in the tick.
type pending struct {
	address domain.X25519Public
	data    []byte
}

// pollAddress fetches and handles new envelopes of one address. When
// deferMissing is set, envelopes whose sender ratchet is missing are
// returned for a later retry.
func (p *Poller) pollAddress(ctx context.Context, address domain.X25519Public, deferMissing bool) ([]pending, error) {
	envs, err := p.fetch(ctx, address)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warnf("Unable to poll %s: %v", address, err)
		}
		return nil, fmt.Errorf("poll %s: %w", address, err)
	}

	var retry []pending
	for _, env := range envs {
		if !p.shouldContinue(ctx) {
			break
		}
		key := address.String() + "/" + env.Hash
		if ok, _ := p.seen.ContainsOrAdd(key, struct{}{}); ok {
			p.setCursor(address, env.Hash)
			continue
		}
		err := p.cfg.Handler.HandleEnvelope(ctx, address, env.Data)
		if deferMissing && errors.Is(err, ratchet.ErrRatchetNotFound) {
			retry = append(retry, pending{address: address, data: env.Data})
		}
		p.setCursor(address, env.Hash)
	}
	return retry, nil
}

// fetch asks one node of the address's swarm for envelopes after the
// address cursor.
func (p *Poller) fetch(ctx context.Context, address domain.X25519Public) ([]domain.RawEnvelope, error) {
	nodes, err := p.cfg.Network.GetSwarm(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	node := nodes[rand.IntN(len(nodes))]
	return p.cfg.Network.FetchMessages(ctx, node, address, p.cursor(address))
}

// shouldContinue reports whether handling may go on. It is checked before
// every envelope so that Stop takes effect promptly.
func (p *Poller) shouldContinue(ctx context.Context) bool {
	return ctx.Err() == nil
}

// cursor returns the last handled hash of address, loading it from the
// store on first use so a restarted client resumes where it stopped.
func (p *Poller) cursor(address domain.X25519Public) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cursors[address]; ok {
		return c
	}
	c, _, err := p.cfg.Groups.LoadCursor(address)
	if err != nil {
		p.log.Warnf("Unable to load poll cursor of %s: %v", address, err)
		return ""
	}
	p.cursors[address] = c
	return c
}

func (p *Poller) setCursor(address domain.X25519Public, hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursors[address] == hash {
		return
	}
	p.cursors[address] = hash
	if err := p.cfg.Groups.SaveCursor(address, hash); err != nil {
		p.log.Warnf("Unable to save poll cursor of %s: %v", address, err)
	}
}
