package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetadataPicksVariantByReason(t *testing.T) {
	raw, err := EncodeMetadata(ReferralRewardMetadata{InviteeID: 10000000042, InviterID: 7, Role: RoleInviter, OrderNo: "ORD-1"})
	require.NoError(t, err)

	m, err := DecodeMetadata(ReasonReferralReward, raw)
	require.NoError(t, err)
	ref, ok := m.(ReferralRewardMetadata)
	require.True(t, ok)
	assert.Equal(t, int64(10000000042), ref.InviteeID)
	assert.Equal(t, RoleInviter, ref.Role)

	_, err = DecodeMetadata(Reason("lottery_win"), raw)
	assert.Error(t, err)
}

func TestMetadataFieldMatchesPostgresText(t *testing.T) {
	m := ReferralRewardMetadata{InviteeID: 10000000042, InviterID: 7, Role: RoleInvitee}

	v, ok := MetadataField(m, "invitee_id")
	require.True(t, ok)
	assert.Equal(t, "10000000042", v)

	v, ok = MetadataField(m, "role")
	require.True(t, ok)
	assert.Equal(t, "invitee", v)

	_, ok = MetadataField(m, "order_no")
	assert.False(t, ok)
}

func TestCodeEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	c := &RedemptionCode{Status: CodeActive, ExpiresAt: &past}
	assert.Equal(t, CodeExpired, c.EffectiveStatus(now))

	c.ExpiresAt = nil
	assert.Equal(t, CodeActive, c.EffectiveStatus(now))

	c.Status = CodeUsed
	assert.Equal(t, CodeUsed, c.EffectiveStatus(now))
}

func TestCodeFormat(t *testing.T) {
	assert.True(t, ValidCodeFormat(NormalizeCode("  gift-ab12-cd34-ef56 ")))
	assert.False(t, ValidCodeFormat("GIFT"))
	assert.False(t, ValidCodeFormat("GIFT-AB1"))
	assert.False(t, ValidCodeFormat("GIFT-AB12-CD3!"))
	assert.True(t, ValidCodeFormat("PARTNERSPRING2026X-AB12-CD34"))
}
