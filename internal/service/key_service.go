package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/repository"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

type keyRepository interface {
	FindByID(ctx context.Context, id string) (*models.Key, error)
	List(ctx context.Context, filter models.KeyFilter) ([]models.Key, int, error)
	ListByHolder(ctx context.Context, userID string) ([]models.Key, error)
	Take(ctx context.Context, id string, holder models.KeyHolder, now time.Time) (*models.Key, error)
	Release(ctx context.Context, id string, now time.Time) (*models.ReleasedKey, error)
	ToggleFrequent(ctx context.Context, id string, now time.Time) (*models.Key, error)
	Create(ctx context.Context, key *models.Key) error
	Update(ctx context.Context, key *models.Key) (*models.Key, error)
	Delete(ctx context.Context, id string) error
}

type eventPublisher interface {
	Publish(event models.KeyEvent)
}

type transitionObserver interface {
	ObserveKeyTransition(action models.EventAction, success bool)
}

// CreateKeyRequest describes admin key provisioning.
type CreateKeyRequest struct {
	KeyNumber   string `json:"key_number" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category"`
	Block       string `json:"block"`
	Description string `json:"description"`
}

// UpdateKeyRequest describes descriptive attribute updates.
type UpdateKeyRequest struct {
	KeyNumber   string `json:"key_number" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category"`
	Block       string `json:"block"`
	Description string `json:"description"`
}

// KeyService is the state transition engine for physical keys. It is the
// single place deciding whether a failure is a precondition violation, an
// authorization failure, or not-found; handlers pass its errors through
// verbatim.
type KeyService struct {
	repo      keyRepository
	publisher eventPublisher
	observer  transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewKeyService constructs KeyService.
func NewKeyService(repo keyRepository, publisher eventPublisher, observer transitionObserver, validate *validator.Validate, logger *zap.Logger) *KeyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyService{repo: repo, publisher: publisher, observer: observer, validator: validate, logger: logger}
}

// List returns keys with pagination metadata.
func (s *KeyService) List(ctx context.Context, filter models.KeyFilter) ([]models.KeyView, *models.Pagination, error) {
	keys, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list keys")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return views(keys), pagination, nil
}

// Get returns a single key.
func (s *KeyService) Get(ctx context.Context, id string) (*models.KeyView, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load key")
	}
	view := key.View()
	return &view, nil
}

// MyTaken returns the keys currently held by the user.
func (s *KeyService) MyTaken(ctx context.Context, userID string) ([]models.KeyView, error) {
	keys, err := s.repo.ListByHolder(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list taken keys")
	}
	return views(keys), nil
}

// Take assigns an available key to the actor.
func (s *KeyService) Take(ctx context.Context, keyID string, actor models.Actor) (*models.KeyView, error) {
	return s.take(ctx, keyID, actor, models.EventTake)
}

// TakeScanned applies the same take transition on behalf of the token's
// faculty member after a security scan.
func (s *KeyService) TakeScanned(ctx context.Context, keyID string, onBehalfOf models.Actor) (*models.KeyView, error) {
	return s.take(ctx, keyID, onBehalfOf, models.EventQRRequest)
}

func (s *KeyService) take(ctx context.Context, keyID string, actor models.Actor, action models.EventAction) (*models.KeyView, error) {
	now := time.Now().UTC()
	holder := models.KeyHolder{ID: actor.ID, Name: actor.Name, Email: actor.Email}

	key, err := s.repo.Take(ctx, keyID, holder, now)
	if err != nil {
		s.observeTransition(action, false)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		if errors.Is(err, repository.ErrPreconditionNotMet) {
			return nil, appErrors.Clone(appErrors.ErrKeyNotAvailable, "key is already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to take key")
	}
	s.observeTransition(action, true)

	view := key.View()
	s.publish(models.KeyEvent{
		Action:     action,
		Key:        view,
		UserID:     actor.ID,
		OccurredAt: now,
	})
	return &view, nil
}

// Return releases a key currently held.
func (s *KeyService) Return(ctx context.Context, keyID string, actor models.Actor) (*models.KeyView, error) {
	return s.release(ctx, keyID, actor, models.EventReturn, "")
}

// ReturnScanned applies the return transition on behalf of the token's
// faculty member after a security scan.
func (s *KeyService) ReturnScanned(ctx context.Context, keyID string, onBehalfOf models.Actor) (*models.KeyView, error) {
	return s.release(ctx, keyID, onBehalfOf, models.EventQRReturn, "")
}

// CollectiveReturn releases a key on behalf of an absent holder. Requires
// an elevated role; the emitted event preserves the original holder and the
// free-text reason for the audit collaborator.
func (s *KeyService) CollectiveReturn(ctx context.Context, keyID string, actor models.Actor, reason string) (*models.KeyView, error) {
	if actor.Role != models.RoleSecurity && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "collective return requires security or admin role")
	}
	return s.release(ctx, keyID, actor, models.EventCollectiveReturn, reason)
}

func (s *KeyService) release(ctx context.Context, keyID string, actor models.Actor, action models.EventAction, reason string) (*models.KeyView, error) {
	now := time.Now().UTC()

	released, err := s.repo.Release(ctx, keyID, now)
	if err != nil {
		s.observeTransition(action, false)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		if errors.Is(err, repository.ErrPreconditionNotMet) {
			return nil, appErrors.Clone(appErrors.ErrKeyNotTaken, "key is not currently taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return key")
	}
	s.observeTransition(action, true)

	view := released.Key.View()
	event := models.KeyEvent{
		Action:     action,
		Key:        view,
		UserID:     actor.ID,
		OccurredAt: now,
	}
	if action == models.EventCollectiveReturn {
		event.OriginalHolder = released.OriginalHolder()
		event.Reason = reason
	}
	s.publish(event)
	return &view, nil
}

// BatchReturn applies the return transition to every key in the batch on
// behalf of the token's user. Each key is independent: per-key failures are
// reported individually and never roll back the others.
func (s *KeyService) BatchReturn(ctx context.Context, keyIDs []string, onBehalfOf models.Actor) (*models.BatchReturnResult, error) {
	if len(keyIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch contains no keys")
	}

	result := &models.BatchReturnResult{}
	for _, keyID := range keyIDs {
		view, err := s.release(ctx, keyID, onBehalfOf, models.EventQRReturn, "")
		if err != nil {
			result.Failed = append(result.Failed, models.BatchReturnItem{
				KeyID: keyID,
				Error: appErrors.FromError(err).Code,
			})
			continue
		}
		result.Returned = append(result.Returned, models.BatchReturnItem{KeyID: keyID, Key: view})
	}
	return result, nil
}

// ToggleFrequent flips the frequently-used flag. Idempotent in pairs: two
// toggles restore the original value.
func (s *KeyService) ToggleFrequent(ctx context.Context, keyID string, actor models.Actor) (*models.KeyView, error) {
	now := time.Now().UTC()
	key, err := s.repo.ToggleFrequent(ctx, keyID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle key flag")
	}

	view := key.View()
	s.publish(models.KeyEvent{
		Action:     models.EventToggleFrequent,
		Key:        view,
		UserID:     actor.ID,
		OccurredAt: now,
	})
	return &view, nil
}

// Create provisions a new key (admin only, enforced at the route).
func (s *KeyService) Create(ctx context.Context, req CreateKeyRequest) (*models.KeyView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid key payload")
	}
	key := &models.Key{
		KeyNumber:   req.KeyNumber,
		Name:        req.Name,
		Location:    req.Location,
		Category:    req.Category,
		Block:       req.Block,
		Description: req.Description,
		Status:      models.KeyStatusAvailable,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create key")
	}

	view := key.View()
	s.publish(models.KeyEvent{Action: models.EventCreate, Key: view, OccurredAt: time.Now().UTC()})
	return &view, nil
}

// Update changes descriptive attributes of a key.
func (s *KeyService) Update(ctx context.Context, id string, req UpdateKeyRequest) (*models.KeyView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid key payload")
	}
	key := &models.Key{
		ID:          id,
		KeyNumber:   req.KeyNumber,
		Name:        req.Name,
		Location:    req.Location,
		Category:    req.Category,
		Block:       req.Block,
		Description: req.Description,
	}
	updated, err := s.repo.Update(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update key")
	}

	view := updated.View()
	s.publish(models.KeyEvent{Action: models.EventUpdate, Key: view, OccurredAt: time.Now().UTC()})
	return &view, nil
}

// Delete removes a key record.
func (s *KeyService) Delete(ctx context.Context, id string) error {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load key")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete key")
	}

	s.publish(models.KeyEvent{Action: models.EventDelete, Key: key.View(), OccurredAt: time.Now().UTC()})
	return nil
}

// publish hands the event to the fan-out channel. Best-effort: the store
// mutation already committed, so broadcast failure never fails the caller.
func (s *KeyService) publish(event models.KeyEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func (s *KeyService) observeTransition(action models.EventAction, success bool) {
	if s.observer != nil {
		s.observer.ObserveKeyTransition(action, success)
	}
}

func views(keys []models.Key) []models.KeyView {
	result := make([]models.KeyView, 0, len(keys))
	for _, key := range keys {
		result = append(result, key.View())
	}
	return result
}
