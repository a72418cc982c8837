package devserver

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

// tokenTTL — срок жизни медиа-токена; клиент всё равно запрашивает новый на
// каждый (re)join.
const tokenTTL = 5 * time.Minute

// Store is the in-memory exhibition state behind the dev harness. It stands in
// for the marketplace backend: exhibition records, stream status, uploaded
// recordings and media-token minting. Nothing survives a restart.
type Store struct {
	mu          sync.RWMutex
	exhibitions map[string]*model.Exhibition
	recordings  map[string][]byte
	secret      []byte
}

// NewStore seeds a couple of demo exhibitions so watch/broadcast work out of
// the box.
func NewStore() *Store {
	s := &Store{
		exhibitions: make(map[string]*model.Exhibition),
		recordings:  make(map[string][]byte),
		secret:      []byte(uuid.New().String()),
	}
	s.exhibitions["demo"] = &model.Exhibition{
		ID:          "demo",
		Title:       "Demo Atelier Session",
		Status:      model.ExhibitionLive,
		Type:        model.TypeLive,
		IsPublished: true,
		LiveDetails: &model.LiveDetails{StreamStatus: model.StreamIdle},
	}
	s.exhibitions["archived"] = &model.Exhibition{
		ID:          "archived",
		Title:       "Closed Retrospective",
		Status:      model.ExhibitionArchived,
		Type:        model.TypeLive,
		IsPublished: true,
		LiveDetails: &model.LiveDetails{StreamStatus: model.StreamIdle},
	}
	return s
}

// Get returns a copy of the exhibition record.
func (s *Store) Get(id string) (*model.Exhibition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.exhibitions[id]
	if !ok {
		return nil, errs.ErrExhibitionNotFound
	}
	cp := *ex
	if ex.LiveDetails != nil {
		ld := *ex.LiveDetails
		cp.LiveDetails = &ld
	}
	return &cp, nil
}

// SetStreamStatus updates the server-authoritative stream status.
func (s *Store) SetStreamStatus(id string, st model.StreamStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exhibitions[id]
	if !ok {
		return
	}
	if ex.LiveDetails == nil {
		ex.LiveDetails = &model.LiveDetails{}
	}
	ex.LiveDetails.StreamStatus = st
}

// SetViewers records the current viewer count pushed by the hub.
func (s *Store) SetViewers(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.exhibitions[id]; ok && ex.LiveDetails != nil {
		ex.LiveDetails.CurrentViewers = n
	}
}

// AddView bumps the lifetime view counter.
func (s *Store) AddView(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.exhibitions[id]; ok && ex.LiveDetails != nil {
		ex.LiveDetails.TotalViews++
	}
}

// EndLive marks the stream idle. Idempotent.
func (s *Store) EndLive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exhibitions[id]
	if !ok {
		return errs.ErrExhibitionNotFound
	}
	if ex.LiveDetails != nil {
		ex.LiveDetails.StreamStatus = model.StreamIdle
	}
	return nil
}

// SaveRecording stores the uploaded blob and records its path post-hoc.
func (s *Store) SaveRecording(id, filename string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exhibitions[id]
	if !ok {
		return errs.ErrExhibitionNotFound
	}
	s.recordings[id] = blob
	if ex.LiveDetails == nil {
		ex.LiveDetails = &model.LiveDetails{}
	}
	ex.LiveDetails.RecordingPath = "/recordings/" + filename
	return nil
}

// Recording returns an uploaded blob (tests).
func (s *Store) Recording(id string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordings[id]
}

// MintToken issues a short-lived HS256 media credential bound to
// (exhibition, role). Archived exhibitions never get a token.
func (s *Store) MintToken(exhibitionID string, role model.Role) (string, error) {
	ex, err := s.Get(exhibitionID)
	if err != nil {
		return "", err
	}
	if !ex.Streamable() {
		return "", errs.ErrExhibitionArchived
	}
	claims := jwt.MapClaims{
		"exhibition_id": exhibitionID,
		"role":          string(role),
		"exp":           time.Now().Add(tokenTTL).Unix(),
		"iat":           time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken validates a media credential and returns its binding.
func (s *Store) VerifyToken(token string) (exhibitionID string, role model.Role, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", errs.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errs.ErrInvalidToken
	}
	id, _ := claims["exhibition_id"].(string)
	r, _ := claims["role"].(string)
	if id == "" || r == "" {
		return "", "", errs.ErrInvalidToken
	}
	return id, model.Role(r), nil
}
