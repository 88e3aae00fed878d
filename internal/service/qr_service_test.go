package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/qr"
	"github.com/noah-isme/campus-key-api/pkg/config"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

type memoryLedger struct {
	issued  map[string]time.Duration
	revoked []string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{issued: make(map[string]time.Duration)}
}

func (l *memoryLedger) Issue(_ context.Context, tokenID string, ttl time.Duration) error {
	l.issued[tokenID] = ttl
	return nil
}

func (l *memoryLedger) Consume(_ context.Context, tokenID string) error {
	if _, ok := l.issued[tokenID]; !ok {
		return appErrors.Clone(appErrors.ErrTokenConsumed, "")
	}
	delete(l.issued, tokenID)
	return nil
}

func (l *memoryLedger) Revoke(_ context.Context, tokenID string) {
	delete(l.issued, tokenID)
	l.revoked = append(l.revoked, tokenID)
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func qrTestConfig() config.QRConfig {
	return config.QRConfig{
		SigningSecret:  "test-secret",
		RequestTTL:     3 * time.Minute,
		ReturnTTL:      3 * time.Minute,
		BatchReturnTTL: 5 * time.Minute,
	}
}

func newQRFixture(t *testing.T, keys ...*models.Key) (*QRService, *mockKeyRepo, *memoryLedger, *capturingPublisher) {
	t.Helper()
	repo := newMockKeyRepo(keys...)
	publisher := &capturingPublisher{}
	keySvc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())
	ledger := newMemoryLedger()
	users := &mockUserReader{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "dewi@campus.edu", FullName: "Dewi", Role: models.RoleFaculty},
	}}
	cfg := qrTestConfig()
	svc := NewQRService(qr.NewCodec(cfg.SigningSecret), ledger, keySvc, repo, users, nil, cfg, zap.NewNop())
	return svc, repo, ledger, publisher
}

func TestGenerateRequestTokenForAvailableKey(t *testing.T) {
	svc, _, ledger, _ := newQRFixture(t, availableKey("key-1"))

	issued, err := svc.GenerateRequestToken(context.Background(), "key-1", facultyActor)
	require.NoError(t, err)

	assert.Equal(t, models.HandoffRequest, issued.Kind)
	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, int64(180), issued.TTL)
	assert.Contains(t, ledger.issued, issued.TokenID)
}

func TestGenerateRequestTokenRejectsTakenKey(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, takenKey("key-1", "other", "Other"))

	_, err := svc.GenerateRequestToken(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotAvailable))
}

func TestGenerateReturnTokenRequiresHolder(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, takenKey("key-1", "other", "Other"))

	_, err := svc.GenerateReturnToken(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestGenerateReturnTokenRejectsAvailableKey(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, availableKey("key-1"))

	_, err := svc.GenerateReturnToken(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotTaken))
}

func TestScanRequestTakesOnBehalfOfOwner(t *testing.T) {
	svc, _, _, publisher := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	view, err := svc.ScanRequest(ctx, issued.Token, securityActor)
	require.NoError(t, err)

	// The key goes to the faculty member who generated the token, not the
	// security scanner.
	require.NotNil(t, view.HolderRef)
	assert.Equal(t, "user-1", view.HolderRef.ID)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventQRRequest, publisher.events[0].Action)
	assert.Equal(t, "user-1", publisher.events[0].UserID)
}

func TestScanRequestSingleUse(t *testing.T) {
	svc, repo, _, _ := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	_, err = svc.ScanRequest(ctx, issued.Token, securityActor)
	require.NoError(t, err)

	// Reset the key so only the ledger can reject the replay.
	repo.keys["key-1"] = availableKey("key-1")

	_, err = svc.ScanRequest(ctx, issued.Token, securityActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenConsumed))
}

func TestScanRequestStaleTokenConflicts(t *testing.T) {
	svc, repo, _, _ := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	// Someone takes the key directly between issue and scan.
	repo.keys["key-1"] = takenKey("key-1", "other", "Other")

	_, err = svc.ScanRequest(ctx, issued.Token, securityActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotAvailable))
}

func TestScanKindMismatchRejected(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	_, err = svc.ScanReturn(ctx, issued.Token, securityActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMalformedToken))
}

func TestScanMalformedTokenRejected(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, availableKey("key-1"))

	_, err := svc.ScanRequest(context.Background(), "not-a-token", securityActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMalformedToken))
}

func TestScanBatchReturnPartialOutcome(t *testing.T) {
	svc, repo, _, _ := newQRFixture(t,
		takenKey("key-1", "user-1", "Dewi"),
		takenKey("key-2", "user-1", "Dewi"),
	)
	ctx := context.Background()

	issued, err := svc.GenerateBatchReturnToken(ctx, []string{"key-1", "key-2"}, facultyActor)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffBatchReturn, issued.Kind)

	// key-2 gets returned directly before the scan.
	repo.keys["key-2"] = availableKey("key-2")

	result, err := svc.ScanBatchReturn(ctx, issued.Token, securityActor)
	require.NoError(t, err)

	require.Len(t, result.Returned, 1)
	assert.Equal(t, "key-1", result.Returned[0].KeyID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "key-2", result.Failed[0].KeyID)
	assert.Equal(t, appErrors.ErrKeyNotTaken.Code, result.Failed[0].Error)
}

func TestGenerateBatchReturnTokenValidatesEveryKey(t *testing.T) {
	svc, _, _, _ := newQRFixture(t,
		takenKey("key-1", "user-1", "Dewi"),
		availableKey("key-2"),
	)

	_, err := svc.GenerateBatchReturnToken(context.Background(), []string{"key-1", "key-2"}, facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotTaken))
}

func TestCancelTokenRevokesLedgerEntry(t *testing.T) {
	svc, _, ledger, _ := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	svc.CancelToken(ctx, issued.TokenID)
	assert.NotContains(t, ledger.issued, issued.TokenID)

	_, err = svc.ScanRequest(ctx, issued.Token, securityActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenConsumed))
}

func TestValidateReportsStructuralResult(t *testing.T) {
	svc, _, _, _ := newQRFixture(t, availableKey("key-1"))
	ctx := context.Background()

	issued, err := svc.GenerateRequestToken(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	v := svc.Validate(issued.Token)
	assert.True(t, v.Valid)
	assert.Equal(t, models.HandoffRequest, v.Kind)

	invalid := svc.Validate("garbage")
	assert.False(t, invalid.Valid)
	assert.NotEmpty(t, invalid.Errors)
}
