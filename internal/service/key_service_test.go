package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/repository"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

type mockKeyRepo struct {
	keys       map[string]*models.Key
	takeErr    error
	releaseErr error
	takeCalls  int
}

func newMockKeyRepo(keys ...*models.Key) *mockKeyRepo {
	m := &mockKeyRepo{keys: make(map[string]*models.Key)}
	for _, k := range keys {
		m.keys[k.ID] = k
	}
	return m
}

func (m *mockKeyRepo) FindByID(_ context.Context, id string) (*models.Key, error) {
	key, ok := m.keys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *key
	return &copied, nil
}

func (m *mockKeyRepo) List(_ context.Context, _ models.KeyFilter) ([]models.Key, int, error) {
	var result []models.Key
	for _, k := range m.keys {
		result = append(result, *k)
	}
	return result, len(result), nil
}

func (m *mockKeyRepo) ListByHolder(_ context.Context, userID string) ([]models.Key, error) {
	var result []models.Key
	for _, k := range m.keys {
		if k.HolderID != nil && *k.HolderID == userID {
			result = append(result, *k)
		}
	}
	return result, nil
}

func (m *mockKeyRepo) Take(_ context.Context, id string, holder models.KeyHolder, now time.Time) (*models.Key, error) {
	m.takeCalls++
	if m.takeErr != nil {
		return nil, m.takeErr
	}
	key, ok := m.keys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if key.Status != models.KeyStatusAvailable {
		return nil, repository.ErrPreconditionNotMet
	}
	key.Status = models.KeyStatusUnavailable
	key.HolderID = &holder.ID
	key.HolderName = &holder.Name
	key.HolderEmail = &holder.Email
	key.TakenAt = &now
	key.ReturnedAt = nil
	copied := *key
	return &copied, nil
}

func (m *mockKeyRepo) Release(_ context.Context, id string, now time.Time) (*models.ReleasedKey, error) {
	if m.releaseErr != nil {
		return nil, m.releaseErr
	}
	key, ok := m.keys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if key.Status != models.KeyStatusUnavailable {
		return nil, repository.ErrPreconditionNotMet
	}
	released := &models.ReleasedKey{
		PrevHolderID:    key.HolderID,
		PrevHolderName:  key.HolderName,
		PrevHolderEmail: key.HolderEmail,
	}
	key.Status = models.KeyStatusAvailable
	key.HolderID = nil
	key.HolderName = nil
	key.HolderEmail = nil
	key.TakenAt = nil
	key.ReturnedAt = &now
	released.Key = *key
	return released, nil
}

func (m *mockKeyRepo) ToggleFrequent(_ context.Context, id string, _ time.Time) (*models.Key, error) {
	key, ok := m.keys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	key.FrequentlyUsed = !key.FrequentlyUsed
	copied := *key
	return &copied, nil
}

func (m *mockKeyRepo) Create(_ context.Context, key *models.Key) error {
	if key.ID == "" {
		key.ID = "generated-id"
	}
	m.keys[key.ID] = key
	return nil
}

func (m *mockKeyRepo) Update(_ context.Context, key *models.Key) (*models.Key, error) {
	existing, ok := m.keys[key.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	existing.KeyNumber = key.KeyNumber
	existing.Name = key.Name
	existing.Location = key.Location
	copied := *existing
	return &copied, nil
}

func (m *mockKeyRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.keys[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.keys, id)
	return nil
}

type capturingPublisher struct {
	events []models.KeyEvent
}

func (p *capturingPublisher) Publish(event models.KeyEvent) {
	p.events = append(p.events, event)
}

type countingObserver struct {
	successes map[models.EventAction]int
	failures  map[models.EventAction]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		successes: make(map[models.EventAction]int),
		failures:  make(map[models.EventAction]int),
	}
}

func (o *countingObserver) ObserveKeyTransition(action models.EventAction, success bool) {
	if success {
		o.successes[action]++
		return
	}
	o.failures[action]++
}

func availableKey(id string) *models.Key {
	return &models.Key{
		ID:        id,
		KeyNumber: "K-" + id,
		Name:      "Lab " + id,
		Location:  "Block A",
		Status:    models.KeyStatusAvailable,
	}
}

func takenKey(id, holderID, holderName string) *models.Key {
	key := availableKey(id)
	key.Status = models.KeyStatusUnavailable
	key.HolderID = &holderID
	key.HolderName = &holderName
	email := holderID + "@campus.edu"
	key.HolderEmail = &email
	now := time.Now().UTC()
	key.TakenAt = &now
	return key
}

var facultyActor = models.Actor{ID: "user-1", Name: "Dewi", Email: "dewi@campus.edu", Role: models.RoleFaculty}
var securityActor = models.Actor{ID: "sec-1", Name: "Budi", Email: "budi@campus.edu", Role: models.RoleSecurity}

func TestTakeAssignsHolder(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	publisher := &capturingPublisher{}
	svc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())

	view, err := svc.Take(context.Background(), "key-1", facultyActor)
	require.NoError(t, err)

	assert.Equal(t, models.KeyStatusUnavailable, view.Status)
	require.NotNil(t, view.HolderRef)
	assert.Equal(t, "user-1", view.HolderRef.ID)
	assert.NotNil(t, view.TakenAt)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventTake, publisher.events[0].Action)
	assert.Equal(t, "user-1", publisher.events[0].UserID)
}

func TestTakeUnavailableKeyConflicts(t *testing.T) {
	repo := newMockKeyRepo(takenKey("key-1", "other", "Other"))
	publisher := &capturingPublisher{}
	observer := newCountingObserver()
	svc := NewKeyService(repo, publisher, observer, nil, zap.NewNop())

	_, err := svc.Take(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotAvailable))
	assert.Empty(t, publisher.events)
	assert.Equal(t, 1, observer.failures[models.EventTake])
}

func TestTakeMissingKeyNotFound(t *testing.T) {
	svc := NewKeyService(newMockKeyRepo(), nil, nil, nil, zap.NewNop())

	_, err := svc.Take(context.Background(), "ghost", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTakeReturnRoundTrip(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	publisher := &capturingPublisher{}
	svc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Take(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	view, err := svc.Return(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	assert.Equal(t, models.KeyStatusAvailable, view.Status)
	assert.Nil(t, view.HolderRef)
	assert.Nil(t, view.TakenAt)
	assert.NotNil(t, view.ReturnedAt)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, models.EventReturn, publisher.events[1].Action)
}

func TestReturnAvailableKeyConflicts(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	svc := NewKeyService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Return(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrKeyNotTaken))
}

func TestCollectiveReturnRequiresElevatedRole(t *testing.T) {
	repo := newMockKeyRepo(takenKey("key-1", "user-1", "Dewi"))
	svc := NewKeyService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.CollectiveReturn(context.Background(), "key-1", facultyActor, "left early")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestCollectiveReturnPreservesOriginalHolder(t *testing.T) {
	repo := newMockKeyRepo(takenKey("key-1", "user-1", "Dewi"))
	publisher := &capturingPublisher{}
	svc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())

	view, err := svc.CollectiveReturn(context.Background(), "key-1", securityActor, "holder went home")
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusAvailable, view.Status)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, models.EventCollectiveReturn, event.Action)
	assert.Equal(t, securityActor.ID, event.UserID)
	require.NotNil(t, event.OriginalHolder)
	assert.Equal(t, "user-1", event.OriginalHolder.ID)
	assert.Equal(t, "Dewi", event.OriginalHolder.Name)
	assert.Equal(t, "holder went home", event.Reason)
}

func TestBatchReturnPartialFailure(t *testing.T) {
	repo := newMockKeyRepo(
		takenKey("key-1", "user-1", "Dewi"),
		availableKey("key-2"),
		takenKey("key-3", "user-1", "Dewi"),
	)
	publisher := &capturingPublisher{}
	svc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())

	result, err := svc.BatchReturn(context.Background(), []string{"key-1", "key-2", "key-3", "ghost"}, facultyActor)
	require.NoError(t, err)

	require.Len(t, result.Returned, 2)
	assert.Equal(t, "key-1", result.Returned[0].KeyID)
	assert.Equal(t, "key-3", result.Returned[1].KeyID)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, "key-2", result.Failed[0].KeyID)
	assert.Equal(t, appErrors.ErrKeyNotTaken.Code, result.Failed[0].Error)
	assert.Equal(t, "ghost", result.Failed[1].KeyID)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Failed[1].Error)

	// One event per successful release, none for the failures.
	assert.Len(t, publisher.events, 2)
	for _, event := range publisher.events {
		assert.Equal(t, models.EventQRReturn, event.Action)
	}
}

func TestBatchReturnEmptyRejected(t *testing.T) {
	svc := NewKeyService(newMockKeyRepo(), nil, nil, nil, zap.NewNop())
	_, err := svc.BatchReturn(context.Background(), nil, facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestToggleFrequentTwiceRestores(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	svc := NewKeyService(repo, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	first, err := svc.ToggleFrequent(ctx, "key-1", facultyActor)
	require.NoError(t, err)
	assert.True(t, first.FrequentlyUsed)

	second, err := svc.ToggleFrequent(ctx, "key-1", facultyActor)
	require.NoError(t, err)
	assert.False(t, second.FrequentlyUsed)
}

func TestScannedTransitionsUseQRActions(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	publisher := &capturingPublisher{}
	svc := NewKeyService(repo, publisher, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.TakeScanned(ctx, "key-1", facultyActor)
	require.NoError(t, err)
	_, err = svc.ReturnScanned(ctx, "key-1", facultyActor)
	require.NoError(t, err)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, models.EventQRRequest, publisher.events[0].Action)
	assert.Equal(t, models.EventQRReturn, publisher.events[1].Action)
}

func TestCreateValidatesPayload(t *testing.T) {
	svc := NewKeyService(newMockKeyRepo(), nil, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateKeyRequest{Name: "no number"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCreatePublishesEvent(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := NewKeyService(newMockKeyRepo(), publisher, nil, nil, zap.NewNop())

	view, err := svc.Create(context.Background(), CreateKeyRequest{
		KeyNumber: "K-9",
		Name:      "Server Room",
		Location:  "Block C",
	})
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusAvailable, view.Status)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventCreate, publisher.events[0].Action)
}

func TestTakeInternalErrorWrapped(t *testing.T) {
	repo := newMockKeyRepo(availableKey("key-1"))
	repo.takeErr = errors.New("connection reset")
	svc := NewKeyService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Take(context.Background(), "key-1", facultyActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
