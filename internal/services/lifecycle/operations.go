package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
)

// CreateGroup creates a group named name with members and the local user
// as its only admin.
//
// Steps:
//  1. Generate the group key pair and one ratchet per member.
//  2. Persist ratchets, private key and metadata; start polling the group.
//  3. Send a new update with the private key and every ratchet to each
//     other member over its 1:1 channel.
func (m *Manager) CreateGroup(
	ctx context.Context,
	name string,
	members []domain.X25519Public,
) (domain.GroupMetadata, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.GroupMetadata{}, ErrEmptyName
	}
	members = withMember(members, m.cfg.Local)

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.GroupMetadata{}, err
	}
	defer crypto.Wipe(priv[:])

	unlock := m.locks.Lock(pub)
	defer unlock()

	senderKeys := make([]domain.SenderKey, 0, len(members))
	for _, member := range members {
		sk, err := m.newRatchet(pub, member)
		if err != nil {
			return domain.GroupMetadata{}, err
		}
		senderKeys = append(senderKeys, sk)
	}

	meta := domain.GroupMetadata{
		PublicKey: pub,
		Name:      name,
		Members:   members,
		Admins:    []domain.X25519Public{m.cfg.Local},
		Updated:   m.cfg.Now(),
	}
	if err := m.cfg.Groups.SaveGroupPrivateKey(pub, priv); err != nil {
		return domain.GroupMetadata{}, err
	}
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return domain.GroupMetadata{}, err
	}
	if err := m.cfg.Groups.AddToPollSet(pub); err != nil {
		return domain.GroupMetadata{}, err
	}
	m.record(domain.InfoEvent{
		Kind:    domain.EventCreated,
		Group:   pub,
		Actor:   m.cfg.Local,
		Members: slices.Clone(members),
		Name:    name,
	})

	err = m.sendToPeers(ctx, m.others(members), domain.GroupUpdate{
		Kind:            domain.UpdateNew,
		GroupPublicKey:  pub,
		Name:            name,
		GroupPrivateKey: priv,
		SenderKeys:      senderKeys,
		Members:         members,
		Admins:          meta.Admins,
	})
	return meta, err
}

// AddMembers adds newMembers to group. Only admins may add.
//
// Steps:
//  1. Generate and persist a ratchet for every added member.
//  2. Persist the extended member list.
//  3. Broadcast an info update carrying the added members' ratchets to the
//     group.
//  4. Send each added member a new update with the private key and the
//     ratchet of every member.
func (m *Manager) AddMembers(ctx context.Context, group domain.X25519Public, newMembers []domain.X25519Public) error {
	unlock := m.locks.Lock(group)
	defer unlock()

	meta, err := m.loadGroup(group)
	if err != nil {
		m.log.Warnf("Cannot add members: %v", err)
		return err
	}
	if !meta.IsMember(m.cfg.Local) {
		return fmt.Errorf("add members to %s: %w", group, ErrNotMember)
	}
	if !meta.IsAdmin(m.cfg.Local) {
		return fmt.Errorf("add members to %s: %w", group, ErrUnauthorizedUpdate)
	}
	added := minus(dedupe(newMembers), meta.Members)
	if len(added) == 0 {
		return fmt.Errorf("add members to %s: %w", group, ErrNoChange)
	}
	priv, ok, err := m.cfg.Groups.LoadGroupPrivateKey(group)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("add members to %s: %w", group, ErrNoGroupPrivateKey)
	}
	defer crypto.Wipe(priv[:])

	members := append(slices.Clone(meta.Members), added...)
	m.ensureSessions(ctx, m.others(members))

	addedKeys := make([]domain.SenderKey, 0, len(added))
	for _, member := range added {
		sk, err := m.newRatchet(group, member)
		if err != nil {
			return err
		}
		addedKeys = append(addedKeys, sk)
	}

	meta.Members = members
	meta.Updated = m.cfg.Now()
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return err
	}
	m.record(domain.InfoEvent{
		Kind:    domain.EventMembersAdded,
		Group:   group,
		Actor:   m.cfg.Local,
		Members: slices.Clone(added),
		Name:    meta.Name,
	})

	var errs []error
	err = m.cfg.Dispatcher.SendToGroup(ctx, group, domain.GroupUpdate{
		Kind:           domain.UpdateInfo,
		GroupPublicKey: group,
		Name:           meta.Name,
		SenderKeys:     addedKeys,
		Members:        members,
		Admins:         meta.Admins,
	})
	if err != nil {
		m.log.Warnf("Unable to broadcast new members of %s: %v", group, err)
		errs = append(errs, err)
	}

	// Snapshot after the broadcast so the new members start past it.
	allKeys, err := m.senderKeys(group, members)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	errs = append(errs, m.sendToPeers(ctx, added, domain.GroupUpdate{
		Kind:            domain.UpdateNew,
		GroupPublicKey:  group,
		Name:            meta.Name,
		GroupPrivateKey: priv,
		SenderKeys:      allKeys,
		Members:         members,
		Admins:          meta.Admins,
	}))
	return errors.Join(errs...)
}

// RemoveMembers removes toRemove from group. Removing only the local user
// is a leave and needs no admin rights; removing others needs them. The
// local user cannot be removed together with others.
//
// Steps:
//  1. Broadcast an info update with the reduced member list while the
//     local ratchet still exists.
//  2. Delete every ratchet of the group.
//  3. When leaving, delete the private key and stop polling. Otherwise
//     generate a fresh local ratchet and send it as a chainKey update to
//     every remaining member.
//  4. Persist the reduced metadata.
func (m *Manager) RemoveMembers(ctx context.Context, group domain.X25519Public, toRemove []domain.X25519Public) error {
	unlock := m.locks.Lock(group)
	defer unlock()

	meta, err := m.loadGroup(group)
	if err != nil {
		m.log.Warnf("Cannot remove members: %v", err)
		return err
	}
	if !meta.IsMember(m.cfg.Local) {
		return fmt.Errorf("remove members from %s: %w", group, ErrNotMember)
	}
	toRemove = dedupe(toRemove)
	if len(toRemove) == 0 {
		return fmt.Errorf("remove members from %s: %w", group, ErrNoChange)
	}
	for _, k := range toRemove {
		if !meta.IsMember(k) {
			return fmt.Errorf("remove %s from %s: %w", k, group, ErrNotMember)
		}
	}
	leaving := slices.Contains(toRemove, m.cfg.Local)
	if leaving && len(toRemove) > 1 {
		return fmt.Errorf("remove members from %s: %w", group, ErrMixedRemoval)
	}
	if !leaving && !meta.IsAdmin(m.cfg.Local) {
		return fmt.Errorf("remove members from %s: %w", group, ErrUnauthorizedUpdate)
	}

	remaining := minus(meta.Members, toRemove)
	admins := intersect(meta.Admins, remaining)
	removedAt := m.cfg.Now().UnixMilli()

	var errs []error
	err = m.cfg.Dispatcher.SendToGroup(ctx, group, domain.GroupUpdate{
		Kind:           domain.UpdateInfo,
		GroupPublicKey: group,
		Name:           meta.Name,
		Members:        remaining,
		Admins:         admins,
	})
	if err != nil {
		m.log.Warnf("Unable to broadcast removal in %s: %v", group, err)
		errs = append(errs, err)
	}

	if err := m.cfg.Ratchets.DeleteRatchets(group); err != nil {
		return errors.Join(append(errs, err)...)
	}

	if leaving {
		if err := m.cfg.Groups.DeleteGroupPrivateKey(group); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := m.cfg.Groups.RemoveFromPollSet(group); err != nil {
			return errors.Join(append(errs, err)...)
		}
	} else {
		sk, err := m.newRatchet(group, m.cfg.Local)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		errs = append(errs, m.sendToPeers(ctx, m.others(remaining), domain.GroupUpdate{
			Kind:           domain.UpdateChainKey,
			GroupPublicKey: group,
			SenderKeys:     []domain.SenderKey{sk},
		}))
	}

	meta.Members = remaining
	meta.Admins = admins
	meta.RemovedAt = max(meta.RemovedAt, removedAt)
	meta.Updated = m.cfg.Now()
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return errors.Join(append(errs, err)...)
	}

	kind := domain.EventMembersRemoved
	if leaving {
		kind = domain.EventUserLeft
	}
	m.record(domain.InfoEvent{
		Kind:    kind,
		Group:   group,
		Actor:   m.cfg.Local,
		Members: toRemove,
		Name:    meta.Name,
	})
	return errors.Join(errs...)
}

// Leave removes the local user from group.
func (m *Manager) Leave(ctx context.Context, group domain.X25519Public) error {
	return m.RemoveMembers(ctx, group, []domain.X25519Public{m.cfg.Local})
}

// Rename changes the name of group and broadcasts it. Only admins may
// rename.
func (m *Manager) Rename(ctx context.Context, group domain.X25519Public, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	unlock := m.locks.Lock(group)
	defer unlock()

	meta, err := m.loadGroup(group)
	if err != nil {
		return err
	}
	if !meta.IsMember(m.cfg.Local) {
		return fmt.Errorf("rename %s: %w", group, ErrNotMember)
	}
	if !meta.IsAdmin(m.cfg.Local) {
		return fmt.Errorf("rename %s: %w", group, ErrUnauthorizedUpdate)
	}
	if meta.Name == name {
		return fmt.Errorf("rename %s: %w", group, ErrNoChange)
	}

	meta.Name = name
	meta.Updated = m.cfg.Now()
	if err := m.cfg.Groups.SaveGroup(meta); err != nil {
		return err
	}
	m.record(domain.InfoEvent{
		Kind:  domain.EventRenamed,
		Group: group,
		Actor: m.cfg.Local,
		Name:  name,
	})
	return m.cfg.Dispatcher.SendToGroup(ctx, group, domain.GroupUpdate{
		Kind:           domain.UpdateInfo,
		GroupPublicKey: group,
		Name:           name,
		Members:        meta.Members,
		Admins:         meta.Admins,
	})
}
