package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/relay"
	"closedgroups/internal/services/groupcipher"
	identitysvc "closedgroups/internal/services/identity"
	"closedgroups/internal/services/lifecycle"
	"closedgroups/internal/services/message"
	"closedgroups/internal/services/poller"
	sessionsvc "closedgroups/internal/services/session"
	"closedgroups/internal/store"
)

// ErrNoRelay is returned when an operation needs the network but no relay
// is configured.
var ErrNoRelay = errors.New("no relay configured. use --relay")

// Sink receives what the local user sees.
type Sink interface {
	domain.MessageSink
	domain.EventSink
}

// NewIdentityService returns the identity service over the identity file
// in home.
func NewIdentityService(home string) *identitysvc.Service {
	return identitysvc.New(store.NewIdentityFileStore(home))
}

// Wire bundles all stores, services, and clients for one local identity.
type Wire struct {
	Identity domain.Identity

	DB           *store.LevelDB
	GroupStore   *store.GroupKVStore
	RatchetStore *store.RatchetKVStore
	Network      domain.NetworkLayer

	Cipher   *groupcipher.Cipher
	Sender   *message.Sender
	Receiver *message.Receiver
	Groups   *lifecycle.Manager
	Poller   *poller.Poller
}

// NewWire opens the database and constructs the dependency graph for id.
func NewWire(cfg Config, id domain.Identity, logs *LogBackend, sink Sink) (*Wire, error) {
	db, err := store.OpenLevelDB(cfg.DBPath, logs.Logger(SubsysStore))
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var network domain.NetworkLayer = noRelay{}
	if cfg.RelayURL != "" {
		network = relay.NewHTTP(cfg.RelayURL, httpClient)
	}

	groups := store.NewGroupStore(db)
	ratchets := store.NewRatchetStore(db)
	sessions := sessionsvc.New(store.NewSessionStore(db), logs.Logger(SubsysLifecycle))

	engine := ratchet.NewEngine(ratchets, logs.Logger(SubsysCipher))
	cipher := groupcipher.New(id.XPub, engine, groups, logs.Logger(SubsysCipher))
	sender := message.NewSender(id, cipher, network, logs.Logger(SubsysMessages))
	manager := lifecycle.New(lifecycle.Config{
		Local:               id.XPub,
		Groups:              groups,
		Ratchets:            ratchets,
		Sessions:            sessions,
		Dispatcher:          sender,
		Events:              sink,
		DispatchConcurrency: cfg.DispatchConcurrency,
		Log:                 logs.Logger(SubsysLifecycle),
	})
	receiver := message.NewReceiver(id, cipher, manager, sink, logs.Logger(SubsysMessages))
	poll, err := poller.New(poller.Config{
		Local:    id.XPub,
		Groups:   groups,
		Network:  network,
		Handler:  receiver,
		Interval: cfg.PollInterval,
		Log:      logs.Logger(SubsysPoller),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Wire{
		Identity:     id,
		DB:           db,
		GroupStore:   groups,
		RatchetStore: ratchets,
		Network:      network,
		Cipher:       cipher,
		Sender:       sender,
		Receiver:     receiver,
		Groups:       manager,
		Poller:       poll,
	}, nil
}

// Close stops polling and closes the database.
func (w *Wire) Close() error {
	w.Poller.Stop()
	if err := w.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// noRelay is the network used when no relay URL is configured.
type noRelay struct{}

func (noRelay) GetSwarm(context.Context, domain.X25519Public) ([]domain.Node, error) {
	return nil, ErrNoRelay
}

func (noRelay) FetchMessages(context.Context, domain.Node, domain.X25519Public, string) ([]domain.RawEnvelope, error) {
	return nil, ErrNoRelay
}

func (noRelay) StoreMessage(context.Context, domain.X25519Public, []byte) error {
	return ErrNoRelay
}
