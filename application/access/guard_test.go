package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmesh/protocol"
)

func TestGuardTargetedRevocation(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())

	var blocked []Block
	guard.OnBlocked(func(b Block) { blocked = append(blocked, b) })

	guard.ApplyRevoked(&protocol.AccessRevokedPayload{TargetUserID: "someone-else", Reason: "revoked"})
	assert.False(t, guard.Blocked())

	guard.ApplyRevoked(&protocol.AccessRevokedPayload{TargetUserID: "u-1", Reason: "revoked", Message: "gone"})
	assert.True(t, guard.Blocked())
	require.Len(t, blocked, 1)
	assert.Equal(t, "gone", blocked[0].Message)
}

func TestGuardRoomWideRevocation(t *testing.T) {
	t.Run("blocks non-owners", func(t *testing.T) {
		guard := NewGuard("u-1", false, zap.NewNop())
		guard.ApplyRevoked(&protocol.AccessRevokedPayload{Reason: "public_disabled"})
		assert.True(t, guard.Blocked())

		block, ok := guard.Block()
		require.True(t, ok)
		assert.Equal(t, "public_disabled", block.Reason)
		assert.NotEmpty(t, block.Message, "a default message fills in when none was pushed")
	})

	t.Run("the owner is exempt", func(t *testing.T) {
		guard := NewGuard("u-owner", true, zap.NewNop())
		guard.ApplyRevoked(&protocol.AccessRevokedPayload{Reason: "public_disabled"})
		assert.False(t, guard.Blocked())
	})
}

func TestGuardIgnoresOwnActions(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())

	guard.ApplyRevoked(&protocol.AccessRevokedPayload{TargetUserID: "u-1", ActorUserID: "u-1", Reason: "revoked"})
	guard.ApplyCollaboratorRemoved(&protocol.CollaboratorRemovedPayload{TargetUserID: "u-1", ActorUserID: "u-1"})
	guard.ApplyDocumentDeleted(&protocol.DocumentDeletedPayload{ActorUserID: "u-1"})
	assert.False(t, guard.Blocked())
}

func TestGuardBlockedIsTerminal(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())

	var notices int
	guard.OnNotice(func(RoleNotice) { notices++ })

	guard.ApplyDocumentDeleted(&protocol.DocumentDeletedPayload{})
	require.True(t, guard.Blocked())

	first, ok := guard.Block()
	require.True(t, ok)
	assert.Equal(t, ReasonDocumentDeleted, first.Reason)

	// Later pushes cannot change the block or raise notices
	guard.ApplyRevoked(&protocol.AccessRevokedPayload{TargetUserID: "u-1", Reason: "revoked"})
	guard.ApplyRoleChanged(&protocol.RoleChangedPayload{TargetUserID: "u-1", NewRole: "viewer"})
	current, _ := guard.Block()
	assert.Equal(t, first, current)
	assert.Equal(t, 0, notices)
}

func TestGuardRoleChangeNotice(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())

	var notices []RoleNotice
	guard.OnNotice(func(n RoleNotice) { notices = append(notices, n) })

	guard.ApplyRoleChanged(&protocol.RoleChangedPayload{TargetUserID: "u-1", OldRole: "editor", NewRole: "viewer"})
	assert.False(t, guard.Blocked(), "a role change never blocks")
	require.Len(t, notices, 1)
	assert.Equal(t, "viewer", notices[0].NewRole)

	notice, ok := guard.Notice()
	require.True(t, ok)
	assert.Equal(t, "editor", notice.OldRole)

	guard.DismissNotice()
	_, ok = guard.Notice()
	assert.False(t, ok)
}

func TestGuardCollaboratorRemoved(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())

	guard.ApplyCollaboratorRemoved(&protocol.CollaboratorRemovedPayload{TargetUserID: "other"})
	assert.False(t, guard.Blocked())

	guard.ApplyCollaboratorRemoved(&protocol.CollaboratorRemovedPayload{TargetUserID: "u-1"})
	require.True(t, guard.Blocked())
	block, _ := guard.Block()
	assert.Equal(t, ReasonCollaboratorRemoved, block.Reason)
}

func TestGuardPublicLevel(t *testing.T) {
	guard := NewGuard("u-1", false, zap.NewNop())
	assert.Empty(t, guard.PublicLevel())

	guard.ApplyPublicChanged(&protocol.PublicChangedPayload{Level: "view"})
	assert.Equal(t, "view", guard.PublicLevel())

	// Own changes are already reflected locally
	guard.ApplyPublicChanged(&protocol.PublicChangedPayload{Level: "edit", ActorUserID: "u-1"})
	assert.Equal(t, "view", guard.PublicLevel())
}
