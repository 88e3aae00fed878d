package qr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-key-api/internal/models"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

func requestToken() *models.HandoffToken {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.HandoffToken{
		Kind:      models.HandoffRequest,
		TokenID:   "tok-1",
		UserID:    "user-1",
		KeyID:     "key-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(3 * time.Minute),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec("secret")
	raw, err := codec.Encode(requestToken())
	require.NoError(t, err)
	require.Contains(t, raw, ".")

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffRequest, decoded.Kind)
	assert.Equal(t, "tok-1", decoded.TokenID)
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Equal(t, "key-1", decoded.KeyID)
}

func TestCodecBatchRoundTrip(t *testing.T) {
	codec := NewCodec("secret")
	now := time.Now().UTC()
	raw, err := codec.Encode(&models.HandoffToken{
		Kind:      models.HandoffBatchReturn,
		TokenID:   "tok-2",
		UserID:    "user-1",
		KeyIDs:    []string{"key-1", "key-2"},
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	})
	require.NoError(t, err)

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffBatchReturn, decoded.Kind)
	assert.Equal(t, []string{"key-1", "key-2"}, decoded.KeyIDs)
	assert.Empty(t, decoded.KeyID)
}

func TestCodecRejectsTamperedPayload(t *testing.T) {
	codec := NewCodec("secret")
	raw, err := codec.Encode(requestToken())
	require.NoError(t, err)

	parts := strings.SplitN(raw, ".", 2)
	tampered := parts[0] + "x." + parts[1]

	_, err = codec.Decode(tampered)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMalformedToken))
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	raw, err := NewCodec("secret-a").Encode(requestToken())
	require.NoError(t, err)

	_, err = NewCodec("secret-b").Decode(raw)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMalformedToken))
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec := NewCodec("secret")
	for _, raw := range []string{"", "nodot", "a.b.c", "!!!.???"} {
		_, err := codec.Decode(raw)
		require.Error(t, err, "input %q", raw)
		assert.True(t, appErrors.Is(err, appErrors.ErrMalformedToken), "input %q", raw)
	}
}

func TestValidateUnknownKind(t *testing.T) {
	token := requestToken()
	token.Kind = "loan"

	v := Validate(token)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Errors)
}

func TestValidateKindShapeMismatch(t *testing.T) {
	single := requestToken()
	single.KeyIDs = []string{"key-2"}
	v := Validate(single)
	assert.False(t, v.Valid)

	batch := requestToken()
	batch.Kind = models.HandoffBatchReturn
	batch.KeyIDs = nil
	v = Validate(batch)
	assert.False(t, v.Valid)
}

func TestValidateBatchToken(t *testing.T) {
	now := time.Now().UTC()
	v := Validate(&models.HandoffToken{
		Kind:      models.HandoffBatchReturn,
		TokenID:   "tok-3",
		UserID:    "user-1",
		KeyIDs:    []string{"key-1"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	})
	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}
