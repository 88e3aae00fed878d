package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/qr"
	"github.com/noah-isme/campus-key-api/pkg/config"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

type tokenLedger interface {
	Issue(ctx context.Context, tokenID string, ttl time.Duration) error
	Consume(ctx context.Context, tokenID string) error
	Revoke(ctx context.Context, tokenID string)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type keyReader interface {
	FindByID(ctx context.Context, id string) (*models.Key, error)
}

type tokenObserver interface {
	ObserveTokenIssued(kind models.HandoffKind)
}

// QRService issues handoff tokens at the boundary of take/return flows and
// consumes them when security scans a code. A scanned token resolves to the
// same transition as a direct call; the token only authenticates the
// physical handoff. The ledger gives server-side expiry and single-use; the
// authoritative guard against stale tokens remains the key-status
// precondition inside the transition itself.
type QRService struct {
	codec    *qr.Codec
	ledger   tokenLedger
	keys     *KeyService
	keyRepo  keyReader
	users    userReader
	observer tokenObserver
	cfg      config.QRConfig
	logger   *zap.Logger
}

// NewQRService constructs QRService.
func NewQRService(codec *qr.Codec, ledger tokenLedger, keys *KeyService, keyRepo keyReader, users userReader, observer tokenObserver, cfg config.QRConfig, logger *zap.Logger) *QRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRService{codec: codec, ledger: ledger, keys: keys, keyRepo: keyRepo, users: users, observer: observer, cfg: cfg, logger: logger}
}

// GenerateRequestToken opens a take handoff for an available key.
func (s *QRService) GenerateRequestToken(ctx context.Context, keyID string, actor models.Actor) (*models.IssuedToken, error) {
	key, err := s.loadKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.Status != models.KeyStatusAvailable {
		return nil, appErrors.Clone(appErrors.ErrKeyNotAvailable, "key is already taken")
	}
	return s.issue(ctx, &models.HandoffToken{
		Kind:   models.HandoffRequest,
		UserID: actor.ID,
		KeyID:  keyID,
	}, s.cfg.RequestTTL)
}

// GenerateReturnToken opens a return handoff for a key the actor holds.
func (s *QRService) GenerateReturnToken(ctx context.Context, keyID string, actor models.Actor) (*models.IssuedToken, error) {
	key, err := s.loadKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.Status != models.KeyStatusUnavailable {
		return nil, appErrors.Clone(appErrors.ErrKeyNotTaken, "key is not currently taken")
	}
	if key.HolderID == nil || *key.HolderID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "key is held by someone else")
	}
	return s.issue(ctx, &models.HandoffToken{
		Kind:   models.HandoffReturn,
		UserID: actor.ID,
		KeyID:  keyID,
	}, s.cfg.ReturnTTL)
}

// GenerateBatchReturnToken opens a single handoff covering several held
// keys. One token, one expiry; scan-time results are reported per key.
func (s *QRService) GenerateBatchReturnToken(ctx context.Context, keyIDs []string, actor models.Actor) (*models.IssuedToken, error) {
	if len(keyIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch contains no keys")
	}
	for _, keyID := range keyIDs {
		key, err := s.loadKey(ctx, keyID)
		if err != nil {
			return nil, err
		}
		if key.Status != models.KeyStatusUnavailable {
			return nil, appErrors.Clone(appErrors.ErrKeyNotTaken, "key "+key.KeyNumber+" is not currently taken")
		}
		if key.HolderID == nil || *key.HolderID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "key "+key.KeyNumber+" is held by someone else")
		}
	}
	return s.issue(ctx, &models.HandoffToken{
		Kind:   models.HandoffBatchReturn,
		UserID: actor.ID,
		KeyIDs: keyIDs,
	}, s.cfg.BatchReturnTTL)
}

// CancelToken drops a token its owner regenerated or closed before scan.
func (s *QRService) CancelToken(ctx context.Context, tokenID string) {
	s.ledger.Revoke(ctx, tokenID)
}

// Validate reports the structural check for a raw token without consuming
// it. Undecodable input yields an invalid result rather than an error.
func (s *QRService) Validate(raw string) models.HandoffValidation {
	token, err := s.codec.Decode(raw)
	if err != nil {
		return models.HandoffValidation{Valid: false, Errors: []string{appErrors.FromError(err).Message}}
	}
	return qr.Validate(token)
}

// ScanRequest consumes a request token and takes the key on behalf of the
// faculty member who generated it.
func (s *QRService) ScanRequest(ctx context.Context, raw string, scanner models.Actor) (*models.KeyView, error) {
	token, onBehalfOf, err := s.consume(ctx, raw, models.HandoffRequest)
	if err != nil {
		return nil, err
	}
	s.logger.Info("request token scanned",
		zap.String("token_id", token.TokenID),
		zap.String("key_id", token.KeyID),
		zap.String("scanner_id", scanner.ID))
	return s.keys.TakeScanned(ctx, token.KeyID, *onBehalfOf)
}

// ScanReturn consumes a return token and releases the key on behalf of the
// faculty member who generated it.
func (s *QRService) ScanReturn(ctx context.Context, raw string, scanner models.Actor) (*models.KeyView, error) {
	token, onBehalfOf, err := s.consume(ctx, raw, models.HandoffReturn)
	if err != nil {
		return nil, err
	}
	s.logger.Info("return token scanned",
		zap.String("token_id", token.TokenID),
		zap.String("key_id", token.KeyID),
		zap.String("scanner_id", scanner.ID))
	return s.keys.ReturnScanned(ctx, token.KeyID, *onBehalfOf)
}

// ScanBatchReturn consumes a batch token and releases each key
// independently; partial success is reported per key.
func (s *QRService) ScanBatchReturn(ctx context.Context, raw string, scanner models.Actor) (*models.BatchReturnResult, error) {
	token, onBehalfOf, err := s.consume(ctx, raw, models.HandoffBatchReturn)
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch return token scanned",
		zap.String("token_id", token.TokenID),
		zap.Int("keys", len(token.KeyIDs)),
		zap.String("scanner_id", scanner.ID))
	return s.keys.BatchReturn(ctx, token.KeyIDs, *onBehalfOf)
}

func (s *QRService) issue(ctx context.Context, token *models.HandoffToken, ttl time.Duration) (*models.IssuedToken, error) {
	now := time.Now().UTC()
	token.TokenID = uuid.NewString()
	token.IssuedAt = now
	token.ExpiresAt = now.Add(ttl)

	raw, err := s.codec.Encode(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode handoff token")
	}
	if err := s.ledger.Issue(ctx, token.TokenID, ttl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register handoff token")
	}
	if s.observer != nil {
		s.observer.ObserveTokenIssued(token.Kind)
	}

	return &models.IssuedToken{
		Token:     raw,
		Kind:      token.Kind,
		TokenID:   token.TokenID,
		ExpiresAt: token.ExpiresAt,
		TTL:       int64(ttl.Seconds()),
	}, nil
}

// consume decodes, checks the declared kind against the scan endpoint, and
// burns the token in the ledger before resolving the handoff party.
func (s *QRService) consume(ctx context.Context, raw string, want models.HandoffKind) (*models.HandoffToken, *models.Actor, error) {
	token, err := s.codec.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	if token.Kind != want {
		return nil, nil, appErrors.Clone(appErrors.ErrMalformedToken, "token kind does not match scan endpoint")
	}
	if err := s.ledger.Consume(ctx, token.TokenID); err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "token user no longer exists")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve token user")
	}

	actor := models.Actor{ID: user.ID, Name: user.FullName, Email: user.Email, Role: user.Role}
	return token, &actor, nil
}

func (s *QRService) loadKey(ctx context.Context, keyID string) (*models.Key, error) {
	key, err := s.keyRepo.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "key not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load key")
	}
	return key, nil
}
