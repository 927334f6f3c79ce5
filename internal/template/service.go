package template

import (
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
	"brgycert/internal/certificate/models"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/sentinel"
)

// AuditPublisher records template uploads. Fire-and-forget.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service resolves and manages docx templates. Overrides live under
// overrideDir as <kind>.docx; bundled defaults under defaultDir.
type Service struct {
	store       Store
	overrideDir string
	defaultDir  string
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

func New(store Store, overrideDir, defaultDir string, maxBytes int64, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		overrideDir: overrideDir,
		defaultDir:  defaultDir,
		maxBytes:    maxBytes,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the template path for a kind: the uploaded override when
// present, else the bundled default. Missing both is a TemplateMissing error.
func (s *Service) Resolve(ctx context.Context, kind models.DocumentKind) (string, error) {
	if rec, err := s.store.Find(ctx, kind); err == nil {
		if fileExists(rec.FilePath) {
			return rec.FilePath, nil
		}
		s.logger.WarnContext(ctx, "template record points at missing file",
			"kind", kind, "path", rec.FilePath)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return "", cerrors.Wrap(err, cerrors.CodeInternal, "template lookup failed")
	}

	if p := s.overridePath(kind); fileExists(p) {
		return p, nil
	}
	if p := s.defaultPath(kind); fileExists(p) {
		return p, nil
	}
	return "", cerrors.Newf(cerrors.CodeTemplateMissing, "no template available for %s", kind)
}

// Info reports which template is in effect for a kind.
func (s *Service) Info(ctx context.Context, kind models.DocumentKind) (*Info, error) {
	if rec, err := s.store.Find(ctx, kind); err == nil && fileExists(rec.FilePath) {
		uploaded := rec.UploadedAt
		return &Info{Kind: kind, Source: "override", FilePath: rec.FilePath, UploadedAt: &uploaded}, nil
	}
	if p := s.overridePath(kind); fileExists(p) {
		return &Info{Kind: kind, Source: "override", FilePath: p}, nil
	}
	if p := s.defaultPath(kind); fileExists(p) {
		return &Info{Kind: kind, Source: "default", FilePath: p}, nil
	}
	return nil, cerrors.Newf(cerrors.CodeTemplateMissing, "no template available for %s", kind)
}

// Upload replaces the override for a kind. Only .docx uploads are accepted,
// up to the configured size ceiling. The file is written to a temp name and
// renamed into place so a reader never sees a half-written template.
func (s *Service) Upload(ctx context.Context, actor string, kind models.DocumentKind, filename string, r io.Reader) (*Record, error) {
	if _, ok := models.ParseKind(string(kind)); !ok {
		return nil, cerrors.Newf(cerrors.CodeValidation, "unknown document kind %q", kind)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".docx") {
		return nil, cerrors.New(cerrors.CodeValidation, "template must be a .docx file")
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeBadRequest, "failed to read upload")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, cerrors.Newf(cerrors.CodeValidation, "template exceeds the %d byte limit", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, cerrors.New(cerrors.CodeValidation, "template upload is empty")
	}

	if err := os.MkdirAll(s.overrideDir, 0o755); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to prepare template directory")
	}
	target := s.overridePath(kind)
	if err := writeAtomic(s.overrideDir, target, data); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to store template")
	}

	rec := &Record{Kind: kind, FilePath: target, UploadedAt: s.now()}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeInternal, "failed to record template")
	}

	if s.publisher != nil {
		s.publisher.Emit(ctx, audit.Event{
			Actor:  actor,
			Action: audit.ActionTemplateUploaded,
			Detail: fmt.Sprintf("Uploaded %s template (%d bytes)", kind, len(data)),
		})
	}
	s.logger.InfoContext(ctx, "template uploaded", "kind", kind, "bytes", len(data), "actor", actor)
	return rec, nil
}

// Reconcile seeds the override directory from the bundled defaults. Existing
// files are never touched, so running it on every startup is safe.
func (s *Service) Reconcile(ctx context.Context) error {
	if err := os.MkdirAll(s.overrideDir, 0o755); err != nil {
		return fmt.Errorf("prepare template directory: %w", err)
	}
	for _, kind := range []models.DocumentKind{models.KindClearance, models.KindResidency, models.KindIndigency} {
		target := s.overridePath(kind)
		if fileExists(target) {
			continue
		}
		src := s.defaultPath(kind)
		data, err := os.ReadFile(src)
		if err != nil {
			s.logger.WarnContext(ctx, "no bundled default for template", "kind", kind, "path", src)
			continue
		}
		if err := writeAtomic(s.overrideDir, target, data); err != nil {
			return fmt.Errorf("seed %s template: %w", kind, err)
		}
		s.logger.InfoContext(ctx, "seeded template from default", "kind", kind)
	}
	return nil
}

func (s *Service) overridePath(kind models.DocumentKind) string {
	return filepath.Join(s.overrideDir, string(kind)+".docx")
}

func (s *Service) defaultPath(kind models.DocumentKind) string {
	return filepath.Join(s.defaultDir, string(kind)+".docx")
}

func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*.docx")
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
