package ratchet_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/store"
	"closedgroups/internal/testutils"
)

var (
	group  = domain.X25519Public{1}
	sender = domain.X25519Public{2}
)

func hmacSHA256(key []byte, data byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte{data})
	return m.Sum(nil)
}

func newEngine(t *testing.T) (*ratchet.Engine, domain.RatchetStore) {
	t.Helper()
	rs := store.NewRatchetStore(store.NewMemoryKV())
	return ratchet.NewEngine(rs, testutils.TestLoggerSys(t, "RTCH")), rs
}

func TestStep_MatchesKDF(t *testing.T) {
	ck := bytes.Repeat([]byte{0x42}, 32)
	r, err := ratchet.Step(domain.Ratchet{ChainKey: ck})
	require.NoError(t, err)

	require.Equal(t, uint32(1), r.KeyIndex)
	require.Equal(t, hmacSHA256(ck, 0x02), r.ChainKey)
	mk, ok := ratchet.MessageKey(r, 1)
	require.True(t, ok)
	require.Equal(t, hmacSHA256(ck, 0x01), mk)

	// The input is untouched.
	require.Equal(t, bytes.Repeat([]byte{0x42}, 32), ck)
}

func TestStep_Deterministic(t *testing.T) {
	seed, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), seed.KeyIndex)
	require.Len(t, seed.ChainKey, 32)

	a, b := seed, seed
	for i := 0; i < 5; i++ {
		a, err = ratchet.Step(a)
		require.NoError(t, err)
		b, err = ratchet.Step(b)
		require.NoError(t, err)
	}
	require.Equal(t, a, b)
	require.Len(t, a.MessageKeys, 5)
}

func TestEngine_StepOnceAndUntilAgree(t *testing.T) {
	sendEng, sendStore := newEngine(t)
	recvEng, recvStore := newEngine(t)

	seed, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.NoError(t, sendStore.SaveRatchet(group, sender, seed))
	require.NoError(t, recvStore.SaveRatchet(group, sender, seed))

	var sent [][]byte
	for i := 0; i < 3; i++ {
		r, err := sendEng.StepOnce(group, sender)
		require.NoError(t, err)
		mk, ok := ratchet.MessageKey(r, r.KeyIndex)
		require.True(t, ok)
		sent = append(sent, mk)
	}

	// Out of order: 3, 1, 2.
	for _, idx := range []uint32{3, 1, 2} {
		mk, err := recvEng.MessageKeyAt(group, sender, idx)
		require.NoError(t, err)
		require.Equal(t, sent[idx-1], mk)
	}
}

func TestEngine_NeverRederives(t *testing.T) {
	eng, rs := newEngine(t)

	// A snapshot at index 5 knows no earlier keys.
	require.NoError(t, rs.SaveRatchet(group, sender, ratchet.FromSenderKey(domain.SenderKey{
		ChainKey: bytes.Repeat([]byte{9}, 32),
		KeyIndex: 5,
	})))

	_, err := eng.StepUntil(group, sender, 3)
	require.ErrorIs(t, err, ratchet.ErrMessageKeyMissing)
	_, err = eng.MessageKeyAt(group, sender, 5)
	require.ErrorIs(t, err, ratchet.ErrMessageKeyMissing)

	_, err = eng.MessageKeyAt(group, sender, 7)
	require.NoError(t, err)

	// 6 was derived on the way to 7 and is now stored.
	r, ok, err := rs.LoadRatchet(group, sender)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(7), r.KeyIndex)
	_, ok = ratchet.MessageKey(r, 6)
	require.True(t, ok)
}

func TestEngine_StoredStateUnchangedForOldIndex(t *testing.T) {
	eng, rs := newEngine(t)
	seed, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.NoError(t, rs.SaveRatchet(group, sender, seed))

	_, err = eng.StepUntil(group, sender, 4)
	require.NoError(t, err)
	before, _, err := rs.LoadRatchet(group, sender)
	require.NoError(t, err)

	_, err = eng.StepUntil(group, sender, 2)
	require.NoError(t, err)
	after, _, err := rs.LoadRatchet(group, sender)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestEngine_Errors(t *testing.T) {
	eng, rs := newEngine(t)

	_, err := eng.StepOnce(group, sender)
	require.ErrorIs(t, err, ratchet.ErrRatchetNotFound)
	_, err = eng.StepUntil(group, sender, 1)
	require.ErrorIs(t, err, ratchet.ErrRatchetNotFound)

	seed, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.NoError(t, rs.SaveRatchet(group, sender, seed))
	_, err = eng.StepUntil(group, sender, ratchet.MaxStepsAhead+1)
	require.ErrorIs(t, err, ratchet.ErrTooFarAhead)

	_, err = eng.StepUntil(group, sender, ratchet.MaxStepsAhead)
	require.NoError(t, err)
}

func TestEngine_ConcurrentStepsSerialise(t *testing.T) {
	eng, rs := newEngine(t)
	seed, err := ratchet.Generate(nil)
	require.NoError(t, err)
	require.NoError(t, rs.SaveRatchet(group, sender, seed))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint32]bool)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := eng.StepOnce(group, sender)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[r.KeyIndex] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Every send got its own index.
	require.Len(t, seen, 20)
	r, _, err := rs.LoadRatchet(group, sender)
	require.NoError(t, err)
	require.Equal(t, uint32(20), r.KeyIndex)
}
