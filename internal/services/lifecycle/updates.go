package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
)

// AuthorizeInfo decides whether sender may apply info update u to a group
// whose current state is snapshot.
//
// Admins may make any change. Any other member may only announce its own
// departure: the update must drop exactly the sender, keep the name, add no
// admins and carry no sender keys.
func AuthorizeInfo(snapshot domain.GroupMetadata, sender domain.X25519Public, u domain.GroupUpdate) error {
	if snapshot.IsAdmin(sender) {
		return nil
	}
	selfLeave := snapshot.IsMember(sender) &&
		len(u.SenderKeys) == 0 &&
		sameSet(u.Members, minus(snapshot.Members, []domain.X25519Public{sender})) &&
		(u.Name == "" || u.Name == snapshot.Name) &&
		subset(u.Admins, snapshot.Admins)
	if selfLeave {
		return nil
	}
	return fmt.Errorf("%w: %s is not an admin of %s", ErrUnauthorizedUpdate, sender, snapshot.PublicKey)
}

// HandleUpdate applies an update received from sender.
func (m *Manager) HandleUpdate(ctx context.Context, sender domain.X25519Public, u domain.GroupUpdate) error {
	unlock := m.locks.Lock(u.GroupPublicKey)
	defer unlock()

	var err error
	switch u.Kind {
	case domain.UpdateNew:
		err = m.handleNew(ctx, sender, u)
	case domain.UpdateInfo:
		err = m.handleInfo(ctx, sender, u)
	case domain.UpdateChainKey:
		err = m.handleChainKey(sender, u)
	default:
		err = fmt.Errorf("%w: kind %d", ErrInvalidUpdate, u.Kind)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorizedUpdate):
		m.log.Warnf("Rejected %s update for group %s from %s: %v", u.Kind, u.GroupPublicKey, sender, err)
	default:
		m.log.Debugf("Ignored %s update for group %s from %s: %v", u.Kind, u.GroupPublicKey, sender, err)
	}
	return err
}

// handleNew joins a group from a new update.
//
// Steps:
//  1. Check that the update invites us, that the private key matches the
//     group key and that the sender is an admin.
//  2. For a known group, require the update to be newer than our last
//     change so that a replayed invitation cannot undo a leave or removal.
//  3. Store the private key and every ratchet we do not have yet.
//  4. Store the metadata and start polling the group.
func (m *Manager) handleNew(ctx context.Context, sender domain.X25519Public, u domain.GroupUpdate) error {
	group := u.GroupPublicKey
	members := dedupe(u.Members)
	if !slices.Contains(members, m.cfg.Local) {
		return fmt.Errorf("new group %s: %w", group, ErrNotMember)
	}
	pub, err := crypto.PublicKey(u.GroupPrivateKey)
	if err != nil || pub != group {
		return fmt.Errorf("new group %s: %w: private key does not match", group, ErrInvalidUpdate)
	}

	existing, known, err := m.cfg.Groups.LoadGroup(group)
	if err != nil {
		return err
	}
	switch {
	case known && !existing.IsAdmin(sender):
		return fmt.Errorf("new group %s: %w: %s is not an admin", group, ErrUnauthorizedUpdate, sender)
	case !known && !slices.Contains(u.Admins, sender):
		return fmt.Errorf("new group %s: %w: %s is not an admin", group, ErrUnauthorizedUpdate, sender)
	}
	if known && u.Sent <= existing.Updated.UnixMilli() {
		return fmt.Errorf("new group %s: %w: sent at %d, last change at %d",
			group, ErrStaleUpdate, u.Sent, existing.Updated.UnixMilli())
	}

	if err := m.cfg.Groups.SaveGroupPrivateKey(group, u.GroupPrivateKey); err != nil {
		return err
	}
	for i, sk := range u.SenderKeys {
		owner := sk.PublicKey
		if owner.IsZero() && len(u.SenderKeys) == len(u.Members) {
			owner = u.Members[i]
		}
		if owner.IsZero() {
			continue
		}
		if err := m.storeIfMissing(group, owner, sk); err != nil {
			return err
		}
	}

	meta := domain.GroupMetadata{
		PublicKey: group,
		Name:      u.Name,
		Members:   members,
		Admins:    intersect(dedupe(u.Admins), members),
		Updated:   m.cfg.Now(),
		RemovedAt: existing.RemovedAt,
	}
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return err
	}
	if err := m.cfg.Groups.AddToPollSet(group); err != nil {
		return err
	}
	m.ensureSessions(ctx, m.others(members))
	m.record(domain.InfoEvent{
		Kind:    domain.EventJoined,
		Group:   group,
		Actor:   sender,
		Members: slices.Clone(members),
		Name:    u.Name,
	})
	return nil
}

// storeIfMissing stores a ratchet built from sk unless one already exists
// for (group, owner). An existing ratchet holds message keys a snapshot
// cannot restore.
func (m *Manager) storeIfMissing(group, owner domain.X25519Public, sk domain.SenderKey) error {
	return m.cfg.Ratchets.UpdateRatchet(group, owner, func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error) {
		if ok {
			m.log.Debugf("Keeping existing ratchet for %s in group %s", owner, group)
			return r, false, nil
		}
		return ratchet.FromSenderKey(sk), true, nil
	})
}

// handleInfo applies a membership or name change.
//
// Steps:
//  1. Authorize the sender against the current metadata.
//  2. If members were removed, delete the ratchets of the group. A remaining
//     member's ratchet rotated since the removal was sent is kept, since its
//     chain key may arrive first. If the local user was removed, drop every
//     ratchet and the private key and stop polling; otherwise send a fresh
//     local ratchet to the remaining members.
//  3. Store the ratchets of added members.
//  4. Persist the new metadata, then send the rotated ratchet if any.
func (m *Manager) handleInfo(ctx context.Context, sender domain.X25519Public, u domain.GroupUpdate) error {
	group := u.GroupPublicKey
	meta, err := m.loadGroup(group)
	if err != nil {
		return err
	}
	if !meta.IsMember(m.cfg.Local) {
		return fmt.Errorf("info for %s: %w", group, ErrNotMember)
	}
	if err := AuthorizeInfo(meta, sender, u); err != nil {
		return err
	}

	members := dedupe(u.Members)
	added := minus(members, meta.Members)
	removed := minus(meta.Members, members)
	removedSelf := slices.Contains(removed, m.cfg.Local)

	var rotated []domain.SenderKey
	if len(removed) > 0 {
		meta.RemovedAt = max(meta.RemovedAt, u.Sent)
		if removedSelf {
			if err := m.cfg.Ratchets.DeleteRatchets(group); err != nil {
				return err
			}
			if err := m.cfg.Groups.DeleteGroupPrivateKey(group); err != nil {
				return err
			}
			if err := m.cfg.Groups.RemoveFromPollSet(group); err != nil {
				return err
			}
		} else {
			if err := m.dropRatchetsBefore(group, members, u.Sent); err != nil {
				return err
			}
			sk, err := m.newRatchet(group, m.cfg.Local)
			if err != nil {
				return err
			}
			rotated = []domain.SenderKey{sk}
		}
	}

	if len(added) > 0 && !removedSelf {
		m.ensureSessions(ctx, m.others(members))
		for i, sk := range u.SenderKeys {
			owner := sk.PublicKey
			if owner.IsZero() && len(u.SenderKeys) == len(added) {
				owner = added[i]
			}
			if !slices.Contains(added, owner) {
				m.log.Debugf("Ignoring sender key for %s in info for %s", owner, group)
				continue
			}
			if err := m.cfg.Ratchets.SaveRatchet(group, owner, ratchet.FromSenderKey(sk)); err != nil {
				return err
			}
		}
	}

	renamed := u.Name != "" && u.Name != meta.Name
	if renamed {
		meta.Name = u.Name
	}
	meta.Members = members
	meta.Admins = intersect(dedupe(u.Admins), members)
	meta.Updated = m.cfg.Now()
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return err
	}

	ev := domain.InfoEvent{Group: group, Actor: sender, Name: meta.Name}
	switch {
	case len(removed) == 1 && removed[0] == sender:
		ev.Kind, ev.Members = domain.EventUserLeft, removed
	case len(removed) > 0:
		ev.Kind, ev.Members = domain.EventMembersRemoved, removed
	case len(added) > 0:
		ev.Kind, ev.Members = domain.EventMembersAdded, added
	case renamed:
		ev.Kind = domain.EventRenamed
	default:
		ev.Kind, ev.Members = domain.EventUpdated, slices.Clone(members)
	}
	m.record(ev)

	if rotated == nil {
		return nil
	}
	return m.sendToPeers(ctx, m.others(members), domain.GroupUpdate{
		Kind:           domain.UpdateChainKey,
		GroupPublicKey: group,
		SenderKeys:     rotated,
	})
}

// handleChainKey replaces the sender's ratchet with the one it rotated to.
// A chain key sent before the latest removal, or not newer than the rotation
// already applied for the sender, is stale.
func (m *Manager) handleChainKey(sender domain.X25519Public, u domain.GroupUpdate) error {
	group := u.GroupPublicKey
	meta, err := m.loadGroup(group)
	if err != nil {
		return err
	}
	if !meta.IsMember(m.cfg.Local) {
		return fmt.Errorf("chain key for %s: %w", group, ErrNotMember)
	}
	if !meta.IsMember(sender) {
		return fmt.Errorf("chain key for %s: %w: %s is not a member", group, ErrUnauthorizedUpdate, sender)
	}
	if len(u.SenderKeys) != 1 {
		return fmt.Errorf("chain key for %s: %w: %d sender keys", group, ErrInvalidUpdate, len(u.SenderKeys))
	}
	sk := u.SenderKeys[0]
	if !sk.PublicKey.IsZero() && sk.PublicKey != sender {
		return fmt.Errorf("chain key for %s: %w: key of %s sent by %s",
			group, ErrUnauthorizedUpdate, sk.PublicKey, sender)
	}
	if u.Sent < meta.RemovedAt {
		return fmt.Errorf("chain key for %s: %w: sent at %d, before the removal at %d",
			group, ErrStaleUpdate, u.Sent, meta.RemovedAt)
	}
	err = m.cfg.Ratchets.UpdateRatchet(group, sender, func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error) {
		if ok && r.Rotated >= u.Sent {
			return r, false, fmt.Errorf("chain key for %s: %w: sent at %d, rotation at %d applied",
				group, ErrStaleUpdate, u.Sent, r.Rotated)
		}
		next := ratchet.FromSenderKey(sk)
		next.Rotated = u.Sent
		return next, true, nil
	})
	if err != nil {
		return err
	}
	m.log.Debugf("Stored rotated ratchet of %s in group %s at index %d", sender, group, sk.KeyIndex)
	return nil
}

// dropRatchetsBefore deletes the ratchets of group except those of
// remaining members rotated at or after sent.
func (m *Manager) dropRatchetsBefore(group domain.X25519Public, members []domain.X25519Public, sent int64) error {
	senders, err := m.cfg.Ratchets.ListRatchetSenders(group)
	if err != nil {
		return err
	}
	for _, s := range senders {
		if s != m.cfg.Local && slices.Contains(members, s) {
			r, ok, err := m.cfg.Ratchets.LoadRatchet(group, s)
			if err != nil {
				return err
			}
			if ok && r.Rotated != 0 && r.Rotated >= sent {
				m.log.Debugf("Keeping ratchet of %s in group %s rotated after the removal", s, group)
				continue
			}
		}
		if err := m.cfg.Ratchets.DeleteRatchet(group, s); err != nil {
			return err
		}
	}
	return nil
}
