package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/services/lifecycle"
)

func stranger(t *testing.T) domain.X25519Public {
	t.Helper()
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return pub
}

func TestAddMembers_NewMemberReadsLaterMessages(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)

	g := createGroup(t, a, b)

	require.NoError(t, a.sender.SendText(ctx, g, "hi"))
	b.poll(t)
	require.Equal(t, []string{"hi"}, b.inbox.texts())

	require.NoError(t, a.manager.AddMembers(ctx, g, []domain.X25519Public{c.pub()}))
	b.poll(t)
	c.poll(t)
	require.ElementsMatch(t, []domain.X25519Public{a.pub(), b.pub(), c.pub()}, b.group(t, g).Members)
	require.Equal(t, domain.EventMembersAdded, b.inbox.lastEvent().Kind)

	// C starts at the snapshot it was given and cannot read history.
	require.Empty(t, c.inbox.texts())
	require.True(t, c.group(t, g).IsAdmin(a.pub()))

	require.NoError(t, b.sender.SendText(ctx, g, "yo"))
	c.poll(t)
	a.poll(t)
	require.Equal(t, []string{"yo"}, c.inbox.texts())
	require.Equal(t, []string{"yo"}, a.inbox.texts())
	require.Equal(t, b.pub(), c.inbox.messages[0].Sender)

	require.NoError(t, c.sender.SendText(ctx, g, "hello all"))
	a.poll(t)
	b.poll(t)
	require.Equal(t, []string{"yo", "hello all"}, a.inbox.texts())
	require.Equal(t, []string{"hi", "hello all"}, b.inbox.texts())
}

func TestRemoveMembers_RemovedMemberCannotDecrypt(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)

	require.NoError(t, a.sender.SendText(ctx, g, "before"))
	b.poll(t)
	c.poll(t)
	require.Equal(t, []string{"before"}, c.inbox.texts())

	require.NoError(t, a.manager.RemoveMembers(ctx, g, []domain.X25519Public{c.pub()}))
	require.ElementsMatch(t, []domain.X25519Public{a.pub(), b.pub()}, a.group(t, g).Members)
	require.Equal(t, domain.EventMembersRemoved, a.inbox.lastEvent().Kind)

	// B applies the removal before the rotated chain key of A, and
	// sends its own.
	b.poll(t)
	a.poll(t)
	require.ElementsMatch(t, []domain.X25519Public{a.pub(), b.pub()}, b.group(t, g).Members)

	require.NoError(t, a.sender.SendText(ctx, g, "after"))
	require.NoError(t, b.sender.SendText(ctx, g, "reply"))
	b.poll(t)
	a.poll(t)
	require.Equal(t, []string{"before", "after"}, b.inbox.texts())
	require.Equal(t, []string{"reply"}, a.inbox.texts())

	// C still holds its old state but the new messages use fresh chains.
	envs, err := net.FetchMessages(ctx, domain.Node{}, g, "")
	require.NoError(t, err)
	for _, env := range envs[len(envs)-2:] {
		_, _, err := c.cipher.Decrypt(ctx, env.Data, g)
		require.Error(t, err)
	}

	c.poll(t)
	require.Equal(t, []string{"before"}, c.inbox.texts())
	require.False(t, c.group(t, g).IsMember(c.pub()))
	_, ok, err := c.groups.LoadGroupPrivateKey(g)
	require.NoError(t, err)
	require.False(t, ok)
	polled, err := c.groups.PollSet()
	require.NoError(t, err)
	require.Empty(t, polled)
	senders, err := c.ratchets.ListRatchetSenders(g)
	require.NoError(t, err)
	require.Empty(t, senders)
}

func TestHandleInfo_NonAdminRejected(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)

	u := domain.GroupUpdate{
		Kind:           domain.UpdateInfo,
		GroupPublicKey: g,
		Name:           "team",
		Members:        []domain.X25519Public{a.pub(), b.pub()},
		Admins:         []domain.X25519Public{a.pub()},
	}
	require.NoError(t, b.sender.SendToGroup(ctx, g, u))
	a.poll(t)

	require.True(t, a.group(t, g).IsMember(c.pub()))
	require.Contains(t, a.logs.String(), "[WRN] A/LIFE: Rejected info update")

	err := a.manager.HandleUpdate(ctx, b.pub(), u)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorizedUpdate)

	// The ratchets of A are untouched.
	senders, err := a.ratchets.ListRatchetSenders(g)
	require.NoError(t, err)
	require.Len(t, senders, 3)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)

	require.NoError(t, b.manager.Leave(ctx, g))
	require.Equal(t, domain.EventUserLeft, b.inbox.lastEvent().Kind)
	polled, err := b.groups.PollSet()
	require.NoError(t, err)
	require.Empty(t, polled)
	_, ok, err := b.groups.LoadGroupPrivateKey(g)
	require.NoError(t, err)
	require.False(t, ok)

	a.poll(t)
	c.poll(t)
	a.poll(t)

	for _, p := range []*party{a, c} {
		meta := p.group(t, g)
		require.ElementsMatch(t, []domain.X25519Public{a.pub(), c.pub()}, meta.Members)
		require.Equal(t, []domain.X25519Public{a.pub()}, meta.Admins)
		ev := p.inbox.lastEvent()
		require.Equal(t, domain.EventUserLeft, ev.Kind)
		require.Equal(t, b.pub(), ev.Actor)
	}

	require.NoError(t, c.sender.SendText(ctx, g, "still here"))
	require.NoError(t, a.sender.SendText(ctx, g, "me too"))
	a.poll(t)
	c.poll(t)
	require.Equal(t, []string{"still here"}, a.inbox.texts())
	require.Equal(t, []string{"me too"}, c.inbox.texts())
}

func TestHandleNew_KeepsExistingRatchet(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b := newParty(t, "A", net), newParty(t, "B", net)
	g := createGroup(t, a, b)

	require.NoError(t, a.sender.SendText(ctx, g, "one"))
	b.poll(t)
	before, ok, err := b.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, before.KeyIndex)

	priv, ok, err := a.groups.LoadGroupPrivateKey(g)
	require.NoError(t, err)
	require.True(t, ok)
	fresh, err := ratchet.Generate(nil)
	require.NoError(t, err)

	u := domain.GroupUpdate{
		Kind:            domain.UpdateNew,
		GroupPublicKey:  g,
		Name:            "team",
		GroupPrivateKey: priv,
		SenderKeys:      []domain.SenderKey{ratchet.ToSenderKey(fresh, a.pub())},
		Members:         []domain.X25519Public{a.pub(), b.pub()},
		Admins:          []domain.X25519Public{a.pub()},
		Sent:            time.Now().Add(time.Minute).UnixMilli(),
	}
	require.NoError(t, b.manager.HandleUpdate(ctx, a.pub(), u))

	after, _, err := b.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.Equal(t, before, after)

	// An invitation older than the last change is ignored.
	u.Sent = time.Now().Add(-time.Minute).UnixMilli()
	u.Name = "renamed"
	err = b.manager.HandleUpdate(ctx, a.pub(), u)
	require.ErrorIs(t, err, lifecycle.ErrStaleUpdate)
	require.Equal(t, "team", b.group(t, g).Name)
}

func TestHandleNew_Rejects(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b := newParty(t, "A", net), newParty(t, "B", net)

	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	r, err := ratchet.Generate(nil)
	require.NoError(t, err)
	u := domain.GroupUpdate{
		Kind:            domain.UpdateNew,
		GroupPublicKey:  pub,
		Name:            "team",
		GroupPrivateKey: priv,
		SenderKeys:      []domain.SenderKey{ratchet.ToSenderKey(r, a.pub())},
		Members:         []domain.X25519Public{a.pub(), b.pub()},
		Admins:          []domain.X25519Public{a.pub()},
	}

	// Sent by a non-admin.
	err = b.manager.HandleUpdate(ctx, stranger(t), u)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorizedUpdate)

	// Not addressed to us.
	notUs := u
	notUs.Members = []domain.X25519Public{a.pub()}
	err = b.manager.HandleUpdate(ctx, a.pub(), notUs)
	require.ErrorIs(t, err, lifecycle.ErrNotMember)

	// Private key of another group.
	otherPriv, _, err := crypto.GenerateX25519()
	require.NoError(t, err)
	wrongKey := u
	wrongKey.GroupPrivateKey = otherPriv
	err = b.manager.HandleUpdate(ctx, a.pub(), wrongKey)
	require.ErrorIs(t, err, lifecycle.ErrInvalidUpdate)

	_, err = b.manager.Group(pub)
	require.ErrorIs(t, err, lifecycle.ErrUnknownGroup)

	require.NoError(t, b.manager.HandleUpdate(ctx, a.pub(), u))
	require.Equal(t, domain.EventJoined, b.inbox.lastEvent().Kind)
	polled, err := b.groups.PollSet()
	require.NoError(t, err)
	require.Equal(t, []domain.X25519Public{pub}, polled)
}

func TestHandleChainKey(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b := newParty(t, "A", net), newParty(t, "B", net)
	g := createGroup(t, a, b)

	own, ok, err := a.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.True(t, ok)
	u := domain.GroupUpdate{
		Kind:           domain.UpdateChainKey,
		GroupPublicKey: g,
		SenderKeys:     []domain.SenderKey{ratchet.ToSenderKey(own, a.pub())},
		Sent:           time.Now().UnixMilli(),
	}

	// Only the owner may rotate its ratchet.
	err = b.manager.HandleUpdate(ctx, stranger(t), u)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorizedUpdate)

	require.NoError(t, b.manager.HandleUpdate(ctx, a.pub(), u))
	got, ok, err := b.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, own.ChainKey, got.ChainKey)
	require.EqualValues(t, 0, got.KeyIndex)
	require.Equal(t, u.Sent, got.Rotated)

	// The same rotation again, or an older one, does not reset the ratchet.
	require.NoError(t, a.sender.SendText(ctx, g, "one"))
	b.poll(t)
	require.Equal(t, []string{"one"}, b.inbox.texts())
	err = b.manager.HandleUpdate(ctx, a.pub(), u)
	require.ErrorIs(t, err, lifecycle.ErrStaleUpdate)
	older := u
	older.Sent--
	err = b.manager.HandleUpdate(ctx, a.pub(), older)
	require.ErrorIs(t, err, lifecycle.ErrStaleUpdate)
	got, _, err = b.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.EqualValues(t, 1, got.KeyIndex)

	two := u
	two.Sent++
	two.SenderKeys = append(two.SenderKeys, two.SenderKeys[0])
	err = b.manager.HandleUpdate(ctx, a.pub(), two)
	require.ErrorIs(t, err, lifecycle.ErrInvalidUpdate)
}

func TestHandleInfo_KeepsChainKeyRotatedAfterRemoval(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)
	sent := time.Now().Add(time.Minute).UnixMilli()

	// A's rotated chain key reaches B before the removal it follows.
	fresh, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.NoError(t, b.manager.HandleUpdate(ctx, a.pub(), domain.GroupUpdate{
		Kind:           domain.UpdateChainKey,
		GroupPublicKey: g,
		SenderKeys:     []domain.SenderKey{ratchet.ToSenderKey(fresh, a.pub())},
		Sent:           sent + 10,
	}))
	require.NoError(t, b.manager.HandleUpdate(ctx, a.pub(), domain.GroupUpdate{
		Kind:           domain.UpdateInfo,
		GroupPublicKey: g,
		Name:           "team",
		Members:        []domain.X25519Public{a.pub(), b.pub()},
		Admins:         []domain.X25519Public{a.pub()},
		Sent:           sent,
	}))

	got, ok, err := b.ratchets.LoadRatchet(g, a.pub())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, fresh.ChainKey, got.ChainKey)
	_, ok, err = b.ratchets.LoadRatchet(g, c.pub())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, sent, b.group(t, g).RemovedAt)

	// A chain key from before the removal is refused.
	older, err := ratchet.Generate(nil)
	require.NoError(t, err)
	err = b.manager.HandleUpdate(ctx, a.pub(), domain.GroupUpdate{
		Kind:           domain.UpdateChainKey,
		GroupPublicKey: g,
		SenderKeys:     []domain.SenderKey{ratchet.ToSenderKey(older, a.pub())},
		Sent:           sent - 1,
	})
	require.ErrorIs(t, err, lifecycle.ErrStaleUpdate)
}

func TestRestart_DoesNotReapplyUpdates(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)

	require.NoError(t, a.manager.RemoveMembers(ctx, g, []domain.X25519Public{c.pub()}))
	b.poll(t)
	a.poll(t)
	require.NoError(t, a.sender.SendText(ctx, g, "after"))
	b.poll(t)
	require.Equal(t, []string{"after"}, b.inbox.texts())

	b.restart(t)
	b.poll(t)
	require.ElementsMatch(t, []domain.X25519Public{a.pub(), b.pub()}, b.group(t, g).Members)
	require.Equal(t, []string{"after"}, b.inbox.texts())

	require.NoError(t, a.sender.SendText(ctx, g, "later"))
	b.poll(t)
	require.Equal(t, []string{"after", "later"}, b.inbox.texts())
}

func TestReplayedInbox_IsStale(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)

	require.NoError(t, a.manager.RemoveMembers(ctx, g, []domain.X25519Public{c.pub()}))
	b.poll(t)
	a.poll(t)
	c.poll(t)
	require.NoError(t, b.manager.Leave(ctx, g))
	a.poll(t)

	// Replaying the whole inbox, as a node without our cursor would serve
	// it, re-joins nobody and resets no ratchet.
	for _, p := range []*party{b, c} {
		for _, err := range p.replayInbox(t) {
			require.True(t, errors.Is(err, lifecycle.ErrStaleUpdate) ||
				errors.Is(err, lifecycle.ErrNotMember), "replayed update applied: %v", err)
		}
		require.False(t, p.group(t, g).IsMember(p.pub()))
		_, ok, err := p.groups.LoadGroupPrivateKey(g)
		require.NoError(t, err)
		require.False(t, ok)
		polled, err := p.groups.PollSet()
		require.NoError(t, err)
		require.Empty(t, polled)
	}
	require.ElementsMatch(t, []domain.X25519Public{a.pub()}, a.group(t, g).Members)
	require.Contains(t, b.logs.String(), "[DBG] B/LIFE: Ignored new update")
}

func TestOperations_Errors(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b, c := newParty(t, "A", net), newParty(t, "B", net), newParty(t, "C", net)
	g := createGroup(t, a, b, c)
	d := stranger(t)

	tests := []struct {
		name string
		run  func() error
		want error
	}{{
		name: "leave together with others",
		run: func() error {
			return a.manager.RemoveMembers(ctx, g, []domain.X25519Public{a.pub(), b.pub()})
		},
		want: lifecycle.ErrMixedRemoval,
	}, {
		name: "remove non-member",
		run:  func() error { return a.manager.RemoveMembers(ctx, g, []domain.X25519Public{d}) },
		want: lifecycle.ErrNotMember,
	}, {
		name: "remove nobody",
		run:  func() error { return a.manager.RemoveMembers(ctx, g, nil) },
		want: lifecycle.ErrNoChange,
	}, {
		name: "non-admin removes",
		run:  func() error { return b.manager.RemoveMembers(ctx, g, []domain.X25519Public{c.pub()}) },
		want: lifecycle.ErrUnauthorizedUpdate,
	}, {
		name: "add existing member",
		run:  func() error { return a.manager.AddMembers(ctx, g, []domain.X25519Public{b.pub()}) },
		want: lifecycle.ErrNoChange,
	}, {
		name: "non-admin adds",
		run:  func() error { return b.manager.AddMembers(ctx, g, []domain.X25519Public{d}) },
		want: lifecycle.ErrUnauthorizedUpdate,
	}, {
		name: "unknown group",
		run:  func() error { return a.manager.AddMembers(ctx, d, []domain.X25519Public{c.pub()}) },
		want: lifecycle.ErrUnknownGroup,
	}, {
		name: "blank name",
		run: func() error {
			_, err := a.manager.CreateGroup(ctx, "  ", nil)
			return err
		},
		want: lifecycle.ErrEmptyName,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), tc.want)
		})
	}

	require.Len(t, a.group(t, g).Members, 3)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	net := network()
	a, b := newParty(t, "A", net), newParty(t, "B", net)
	g := createGroup(t, a, b)

	require.ErrorIs(t, a.manager.Rename(ctx, g, " "), lifecycle.ErrEmptyName)
	require.ErrorIs(t, b.manager.Rename(ctx, g, "mine"), lifecycle.ErrUnauthorizedUpdate)

	require.NoError(t, a.manager.Rename(ctx, g, "crew"))
	require.ErrorIs(t, a.manager.Rename(ctx, g, "crew"), lifecycle.ErrNoChange)

	b.poll(t)
	require.Equal(t, "crew", b.group(t, g).Name)
	ev := b.inbox.lastEvent()
	require.Equal(t, domain.EventRenamed, ev.Kind)
	require.Equal(t, "crew", ev.Name)
}

func TestCreateGroup_DispatchFailureIsolated(t *testing.T) {
	net := network()
	b, c := newParty(t, "B", net), newParty(t, "C", net)
	a := newParty(t, "A", &refusingNetwork{NetworkLayer: net, refuse: b.pub()})

	meta, err := a.manager.CreateGroup(context.Background(), "team",
		[]domain.X25519Public{b.pub(), c.pub()})
	require.ErrorIs(t, err, errStoreRefused)
	require.False(t, meta.PublicKey.IsZero())

	// State is kept and the other member still joins.
	require.Len(t, a.group(t, meta.PublicKey).Members, 3)
	c.poll(t)
	require.True(t, c.group(t, meta.PublicKey).IsMember(c.pub()))

	b.poll(t)
	_, err = b.manager.Group(meta.PublicKey)
	require.ErrorIs(t, err, lifecycle.ErrUnknownGroup)
}

func TestAuthorizeInfo(t *testing.T) {
	a, b, c, d := stranger(t), stranger(t), stranger(t), stranger(t)
	snapshot := domain.GroupMetadata{
		PublicKey: stranger(t),
		Name:      "team",
		Members:   []domain.X25519Public{a, b, c},
		Admins:    []domain.X25519Public{a},
	}
	leaveOf := func(k domain.X25519Public) domain.GroupUpdate {
		var members []domain.X25519Public
		for _, m := range snapshot.Members {
			if m != k {
				members = append(members, m)
			}
		}
		return domain.GroupUpdate{
			Kind:    domain.UpdateInfo,
			Name:    "team",
			Members: members,
			Admins:  []domain.X25519Public{a},
		}
	}

	tests := []struct {
		name   string
		sender domain.X25519Public
		update func() domain.GroupUpdate
		ok     bool
	}{{
		name:   "admin removes member",
		sender: a,
		update: func() domain.GroupUpdate { return leaveOf(c) },
		ok:     true,
	}, {
		name:   "admin renames",
		sender: a,
		update: func() domain.GroupUpdate {
			u := leaveOf(d)
			u.Name = "crew"
			return u
		},
		ok: true,
	}, {
		name:   "member leaves",
		sender: b,
		update: func() domain.GroupUpdate { return leaveOf(b) },
		ok:     true,
	}, {
		name:   "member leaves without name",
		sender: b,
		update: func() domain.GroupUpdate {
			u := leaveOf(b)
			u.Name = ""
			return u
		},
		ok: true,
	}, {
		name:   "member removes another",
		sender: b,
		update: func() domain.GroupUpdate { return leaveOf(c) },
	}, {
		name:   "member renames while leaving",
		sender: b,
		update: func() domain.GroupUpdate {
			u := leaveOf(b)
			u.Name = "mine"
			return u
		},
	}, {
		name:   "member promotes while leaving",
		sender: b,
		update: func() domain.GroupUpdate {
			u := leaveOf(b)
			u.Admins = append(u.Admins, c)
			return u
		},
	}, {
		name:   "member adds keys while leaving",
		sender: b,
		update: func() domain.GroupUpdate {
			u := leaveOf(b)
			u.SenderKeys = []domain.SenderKey{{ChainKey: make([]byte, 32)}}
			return u
		},
	}, {
		name:   "outsider",
		sender: d,
		update: func() domain.GroupUpdate { return leaveOf(d) },
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := lifecycle.AuthorizeInfo(snapshot, tc.sender, tc.update())
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, lifecycle.ErrUnauthorizedUpdate)
		})
	}
}
