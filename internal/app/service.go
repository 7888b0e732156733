package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"drinkwise/api/internal/analysis"
	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/auth"
	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/config"
	"drinkwise/api/internal/feed"
	"drinkwise/api/internal/friendship"
	"drinkwise/api/internal/media"
	"drinkwise/api/internal/notify"
	"drinkwise/api/internal/profile"
	"drinkwise/api/internal/rbac"
	"drinkwise/api/internal/store"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	AppID     string
	JTI       string
	ExpiresAt time.Time
}

type mediaStore interface {
	Put(ctx context.Context, ownerID, contentType string, body io.Reader, size int64) (media.Object, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

type searchIndex interface {
	Reindex(ctx context.Context, appID string) (int, error)
}

// Deps are the components the service delegates to. Media and SearchIndex
// are optional.
type Deps struct {
	Store         store.Store
	Friends       *friendship.Manager
	Feed          *feed.Gateway
	Notifications *notify.Service
	Profiles      *profile.Service
	Analysis      *analysis.Service
	Media         mediaStore
	SearchIndex   searchIndex
	Revoked       *cache.Cache
	Logger        *zap.Logger
}

type Service struct {
	cfg           config.Config
	store         store.Store
	friends       *friendship.Manager
	feed          *feed.Gateway
	notifications *notify.Service
	profiles      *profile.Service
	analysis      *analysis.Service
	media         mediaStore
	searchIndex   searchIndex
	revoked       *cache.Cache
	log           *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	revoked := deps.Revoked
	if revoked == nil {
		revoked = cache.New(cache.Nop{}, "revoked", cfg.AccessTTL)
	}
	return &Service{
		cfg:           cfg,
		store:         deps.Store,
		friends:       deps.Friends,
		feed:          deps.Feed,
		notifications: deps.Notifications,
		profiles:      deps.Profiles,
		analysis:      deps.Analysis,
		media:         deps.Media,
		searchIndex:   deps.SearchIndex,
		revoked:       revoked,
		log:           log,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// AppID resolves the app a request addresses; blank means the configured
// default.
func (s *Service) AppID(requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return s.cfg.AppID
}

// Login is the development sign-in: it makes sure the user's documents exist
// and issues an access token.
func (s *Service) Login(ctx context.Context, appID, userID, username string) (Session, error) {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" {
		return Session{}, apperr.New(apperr.InvalidArgument, "userId is required")
	}
	record, err := s.profiles.Ensure(ctx, appID, userID, username)
	if err != nil {
		return Session{}, err
	}

	role := rbac.RoleUser
	if slices.Contains(s.cfg.AdminUsers, userID) {
		role = rbac.RoleAdmin
	}
	name := record.Username
	if name == "" {
		name = username
	}
	jti := uuid.NewString()
	claims := auth.NewClaims(userID, name, string(role), appID, jti, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    userID,
		UserName:  name,
		Role:      string(role),
		AppID:     appID,
		JTI:       jti,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	var revoked bool
	found, err := s.revoked.Get(ctx, claims.ID, &revoked)
	if err != nil {
		s.log.Warn("revocation lookup failed", zap.String("jti", claims.ID), zap.Error(err))
	}
	if found && revoked {
		return Session{}, auth.ErrInvalidToken
	}
	appID := claims.AppID
	if appID == "" {
		appID = s.cfg.AppID
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Role:      string(rbac.Normalize(claims.Role)),
		AppID:     appID,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the access token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	if err := s.revoked.Set(ctx, session.JTI, true); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) UploadMedia(ctx context.Context, ownerID, contentType string, body io.Reader, size int64) (media.Object, error) {
	if s.media == nil {
		return media.Object{}, apperr.New(apperr.DependencyUnavailable, "media storage is not configured")
	}
	return s.media.Put(ctx, ownerID, contentType, body, size)
}

// ClassifyStoredDrink classifies a photo uploaded earlier. Only the owner's
// own uploads can be read.
func (s *Service) ClassifyStoredDrink(ctx context.Context, ownerID, key string) (analysis.Classification, error) {
	if s.media == nil {
		return analysis.Classification{}, apperr.New(apperr.DependencyUnavailable, "media storage is not configured")
	}
	if !strings.HasPrefix(key, "parties/"+ownerID+"/") {
		return analysis.Classification{}, apperr.WithDetails(apperr.NotFound, "media not found", map[string]string{"key": key})
	}
	image, contentType, err := s.media.Get(ctx, key)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return analysis.Classification{}, err
		}
		return analysis.Classification{}, apperr.Wrap(apperr.DependencyUnavailable, "read media", err)
	}
	return s.analysis.ClassifyDrink(ctx, image, contentType)
}

func (s *Service) ReindexUsers(ctx context.Context, appID string) (int, error) {
	if s.searchIndex == nil {
		return 0, apperr.New(apperr.DependencyUnavailable, "search index is not configured")
	}
	return s.searchIndex.Reindex(ctx, appID)
}
