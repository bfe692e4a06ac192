package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/relay"
	"closedgroups/internal/services/groupcipher"
	"closedgroups/internal/services/lifecycle"
	"closedgroups/internal/services/message"
	"closedgroups/internal/services/poller"
	"closedgroups/internal/services/session"
	"closedgroups/internal/store"
	"closedgroups/internal/testutils"
)

// inbox collects what a party observes.
type inbox struct {
	mu       sync.Mutex
	messages []domain.GroupMessage
	events   []domain.InfoEvent
}

func (in *inbox) Deliver(msg domain.GroupMessage) {
	in.mu.Lock()
	in.messages = append(in.messages, msg)
	in.mu.Unlock()
}

func (in *inbox) Record(ev domain.InfoEvent) {
	in.mu.Lock()
	in.events = append(in.events, ev)
	in.mu.Unlock()
}

func (in *inbox) texts() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []string
	for _, m := range in.messages {
		out = append(out, m.Text)
	}
	return out
}

func (in *inbox) lastEvent() domain.InfoEvent {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.events) == 0 {
		return domain.InfoEvent{}
	}
	return in.events[len(in.events)-1]
}

// party is one user with a full client stack over a shared network.
type party struct {
	name     string
	id       domain.Identity
	kv       *store.MemoryKV
	net      domain.NetworkLayer
	groups   *store.GroupKVStore
	ratchets *store.RatchetKVStore
	cipher   *groupcipher.Cipher
	sender   *message.Sender
	manager  *lifecycle.Manager
	receiver *message.Receiver
	poller   *poller.Poller
	inbox    *inbox
	logs     *bytes.Buffer
	bknd     *slog.Backend
}

func (p *party) pub() domain.X25519Public { return p.id.XPub }

// poll runs two ticks so groups joined in the first are fetched in the
// second.
func (p *party) poll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for range 2 {
		_ = p.poller.PollOnce(ctx)
	}
}

func (p *party) group(t *testing.T, g domain.X25519Public) domain.GroupMetadata {
	t.Helper()
	meta, err := p.manager.Group(g)
	require.NoError(t, err)
	return meta
}

// restart rebuilds every service of p over its existing stores, as a new
// process would.
func (p *party) restart(t *testing.T) {
	t.Helper()
	p.build(t)
}

// replayInbox hands every envelope ever stored in p's inbox to its
// receiver, as after losing the poll cursor, and returns the errors.
func (p *party) replayInbox(t *testing.T) []error {
	t.Helper()
	ctx := context.Background()
	envs, err := p.net.FetchMessages(ctx, domain.Node{}, p.pub(), "")
	require.NoError(t, err)
	require.NotEmpty(t, envs)
	var errs []error
	for _, env := range envs {
		errs = append(errs, p.receiver.HandleEnvelope(ctx, p.pub(), env.Data))
	}
	return errs
}

func (p *party) logger(sys string) slog.Logger {
	l := p.bknd.Logger(p.name + "/" + sys)
	l.SetLevel(slog.LevelDebug)
	return l
}

func (p *party) build(t *testing.T) {
	t.Helper()
	pub := p.pub()
	p.groups = store.NewGroupStore(p.kv)
	p.ratchets = store.NewRatchetStore(p.kv)
	engine := ratchet.NewEngine(p.ratchets, p.logger("CIPH"))
	p.cipher = groupcipher.New(pub, engine, p.groups, p.logger("CIPH"))
	p.sender = message.NewSender(p.id, p.cipher, p.net, p.logger("MSGS"))
	p.manager = lifecycle.New(lifecycle.Config{
		Local:      pub,
		Groups:     p.groups,
		Ratchets:   p.ratchets,
		Sessions:   session.New(store.NewSessionStore(p.kv), p.logger("SESS")),
		Dispatcher: p.sender,
		Events:     p.inbox,
		Log:        p.logger("LIFE"),
	})
	p.receiver = message.NewReceiver(p.id, p.cipher, p.manager, p.inbox, p.logger("MSGS"))
	var err error
	p.poller, err = poller.New(poller.Config{
		Local:   pub,
		Groups:  p.groups,
		Network: p.net,
		Handler: p.receiver,
		Log:     p.logger("POLL"),
	})
	require.NoError(t, err)
}

func newParty(t *testing.T, name string, net domain.NetworkLayer) *party {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	var logs bytes.Buffer
	p := &party{
		name:  name,
		id:    domain.Identity{XPub: pub, XPriv: priv},
		kv:    store.NewMemoryKV(),
		net:   net,
		inbox: &inbox{},
		logs:  &logs,
		bknd:  slog.NewBackend(testutils.NewTestLogBackend(t, &logs)),
	}
	p.build(t)
	return p
}

// network returns a fresh shared in-memory network.
func network() domain.NetworkLayer {
	return relay.NewMemory(relay.NewMailbox(0))
}

var errStoreRefused = errors.New("store refused")

// refusingNetwork fails every store addressed to refuse.
type refusingNetwork struct {
	domain.NetworkLayer
	refuse domain.X25519Public
}

func (n *refusingNetwork) StoreMessage(ctx context.Context, pk domain.X25519Public, data []byte) error {
	if pk == n.refuse {
		return errStoreRefused
	}
	return n.NetworkLayer.StoreMessage(ctx, pk, data)
}

// createGroup has a create a group with others and lets everyone join.
func createGroup(t *testing.T, admin *party, others ...*party) domain.X25519Public {
	t.Helper()
	var keys []domain.X25519Public
	for _, o := range others {
		keys = append(keys, o.pub())
	}
	meta, err := admin.manager.CreateGroup(context.Background(), "team", keys)
	require.NoError(t, err)
	for _, o := range others {
		o.poll(t)
		require.True(t, o.group(t, meta.PublicKey).IsMember(o.pub()))
	}
	return meta.PublicKey
}
