package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"brgycert/internal/audit"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/sentinel"
)

// AuditPublisher records signature changes. Fire-and-forget.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Service manages signature images under dir, one <username>.png each, and
// resolves which image (if any) a generated document carries.
type Service struct {
	store       Store
	dir         string
	defaultPath string
	maxBytes    int64
	publisher   AuditPublisher
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the registry. defaultPath is the office-wide fallback
// signature image; empty or missing disables the fallback.
func New(store Store, dir, defaultPath string, maxBytes int64, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		dir:         dir,
		defaultPath: defaultPath,
		maxBytes:    maxBytes,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores a PNG signature for username and records the bypass flag.
func (s *Service) Upload(ctx context.Context, username string, filename string, r io.Reader, bypass bool) (*Record, error) {
	if username == "" {
		return nil, cerrors.New(cerrors.CodeValidation, "username is required")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".png") {
		return nil, cerrors.New(cerrors.CodeValidation, "signature must be a .png image")
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeBadRequest, "failed to read upload")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, cerrors.Newf(cerrors.CodeValidation, "signature exceeds the %d byte limit", s.maxBytes)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, cerrors.New(cerrors.CodeValidation, "signature is not a PNG image")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to prepare signature directory")
	}
	target := filepath.Join(s.dir, username+".png")
	if err := writeAtomic(s.dir, target, data); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to store signature")
	}

	rec := &Record{Username: username, ImagePath: target, Bypass: bypass, UpdatedAt: s.now()}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to record signature")
	}

	if s.publisher != nil {
		s.publisher.Emit(ctx, audit.Event{
			Actor:  username,
			Action: audit.ActionSignatureUploaded,
			Detail: fmt.Sprintf("Uploaded signature (%d bytes, bypass=%t)", len(data), bypass),
		})
	}
	return rec, nil
}

// SetBypass flips the bypass flag without replacing the image.
func (s *Service) SetBypass(ctx context.Context, username string, bypass bool) (*Record, error) {
	rec, err := s.store.Find(ctx, username)
	if errors.Is(err, sentinel.ErrNotFound) {
		rec = &Record{Username: username}
	} else if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to load signature")
	}
	rec.Bypass = bypass
	rec.UpdatedAt = s.now()
	if err := s.store.Upsert(ctx, rec); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to record signature")
	}
	return rec, nil
}

// Get returns the registration for a username.
func (s *Service) Get(ctx context.Context, username string) (*Record, error) {
	rec, err := s.store.Find(ctx, username)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, cerrors.New(cerrors.CodeNotFound, "no signature registered")
	}
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to load signature")
	}
	return rec, nil
}

// Resolve picks the signature image for a document generated by username.
// The actor's own image wins unless they bypass (by flag or request); the
// office default is the fallback; no signature at all is a valid outcome.
func (s *Service) Resolve(ctx context.Context, username string, bypassRequested bool) string {
	if !bypassRequested {
		rec, err := s.store.Find(ctx, username)
		if err == nil && !rec.Bypass && fileExists(rec.ImagePath) {
			return rec.ImagePath
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "signature lookup failed", "username", username, "error", err)
		}
	}
	if s.defaultPath != "" && fileExists(s.defaultPath) {
		return s.defaultPath
	}
	return ""
}

func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
