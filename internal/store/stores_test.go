package store_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"closedgroups/internal/domain"
	"closedgroups/internal/store"
	"closedgroups/internal/testutils"
)

func pk(b byte) domain.X25519Public {
	var k domain.X25519Public
	k[0], k[31] = b, b
	return k
}

func TestRatchetStore_ScopedByGroup(t *testing.T) {
	rs := store.NewRatchetStore(store.NewMemoryKV())
	r := domain.Ratchet{ChainKey: bytes.Repeat([]byte{1}, 32), KeyIndex: 3}

	require.NoError(t, rs.SaveRatchet(pk(1), pk(10), r))
	require.NoError(t, rs.SaveRatchet(pk(1), pk(11), r))
	require.NoError(t, rs.SaveRatchet(pk(2), pk(10), r))

	senders, err := rs.ListRatchetSenders(pk(1))
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.X25519Public{pk(10), pk(11)}, senders)

	require.NoError(t, rs.DeleteRatchet(pk(1), pk(11)))
	senders, err = rs.ListRatchetSenders(pk(1))
	require.NoError(t, err)
	require.Equal(t, []domain.X25519Public{pk(10)}, senders)

	require.NoError(t, rs.DeleteRatchets(pk(1)))
	_, ok, err := rs.LoadRatchet(pk(1), pk(10))
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := rs.LoadRatchet(pk(2), pk(10))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(3), got.KeyIndex)
}

func TestRatchetStore_UpdateSkipsWrite(t *testing.T) {
	rs := store.NewRatchetStore(store.NewMemoryKV())
	err := rs.UpdateRatchet(pk(1), pk(2), func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error) {
		require.False(t, ok)
		return domain.Ratchet{ChainKey: bytes.Repeat([]byte{1}, 32)}, false, nil
	})
	require.NoError(t, err)

	_, ok, err := rs.LoadRatchet(pk(1), pk(2))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGroupStore_MetadataKeysPollSet(t *testing.T) {
	gs := store.NewGroupStore(store.NewMemoryKV())
	g := domain.GroupMetadata{
		PublicKey: pk(1),
		Name:      "team",
		Members:   []domain.X25519Public{pk(2), pk(3)},
		Admins:    []domain.X25519Public{pk(2)},
		Updated:   time.Unix(1700000000, 0),
	}
	require.NoError(t, gs.SaveGroup(g))
	got, ok, err := gs.LoadGroup(pk(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, g.Members, got.Members)
	require.True(t, g.Updated.Equal(got.Updated))

	require.NoError(t, gs.SaveGroupPrivateKey(pk(1), domain.X25519Private{7}))
	priv, ok, err := gs.LoadGroupPrivateKey(pk(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.X25519Private{7}, priv)
	require.NoError(t, gs.DeleteGroupPrivateKey(pk(1)))
	_, ok, err = gs.LoadGroupPrivateKey(pk(1))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, gs.AddToPollSet(pk(1)))
	require.NoError(t, gs.AddToPollSet(pk(4)))
	require.NoError(t, gs.RemoveFromPollSet(pk(4)))
	set, err := gs.PollSet()
	require.NoError(t, err)
	require.Equal(t, []domain.X25519Public{pk(1)}, set)
}

func TestGroupStore_CursorSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ldb, err := store.OpenLevelDB(path, testutils.TestLoggerSys(t, "STOR"))
	require.NoError(t, err)

	gs := store.NewGroupStore(ldb)
	_, ok, err := gs.LoadCursor(pk(1))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, gs.SaveCursor(pk(1), "first"))
	require.NoError(t, gs.SaveCursor(pk(1), "second"))
	require.NoError(t, ldb.Close())

	ldb, err = store.OpenLevelDB(path, testutils.TestLoggerSys(t, "STOR"))
	require.NoError(t, err)
	defer ldb.Close()
	cursor, ok, err := store.NewGroupStore(ldb).LoadCursor(pk(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", cursor)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ss := store.NewSessionStore(store.NewMemoryKV())
	require.NoError(t, ss.SaveSession(pk(5), domain.Session{Peer: pk(5), CreatedUTC: 42}))
	got, ok, err := ss.LoadSession(pk(5))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pk(5), got.Peer)
}
