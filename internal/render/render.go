// Package render turns a certificate record into its output document:
// template resolution, QR code, signature stamping, field merge, and the
// atomic document-reference + status update.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"brgycert/internal/audit"
	"brgycert/internal/certificate/models"
	"brgycert/internal/identity"
	"brgycert/internal/platform/config"
	"brgycert/internal/platform/metrics"
	"brgycert/pkg/cerrors"
)

const qrSizePx = 256

// TemplateResolver yields the template path for a document kind.
type TemplateResolver interface {
	Resolve(ctx context.Context, kind models.DocumentKind) (string, error)
}

// SignatureResolver picks the signature image for the generating actor.
// Empty means the document carries no signature.
type SignatureResolver interface {
	Resolve(ctx context.Context, username string, bypassRequested bool) string
}

// Store is the slice of the certificate store the pipeline writes through.
type Store interface {
	UpdateGenerated(ctx context.Context, id uuid.UUID, docxPath string, status models.Status) error
}

// AuditPublisher records generation events. Fire-and-forget.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Pipeline renders certificates. Safe for concurrent use.
type Pipeline struct {
	templates  TemplateResolver
	signatures SignatureResolver
	store      Store
	merger     Merger
	publisher  AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	dataDir       string
	verifyBaseURL string
	office        config.Office
	now           func() time.Time
}

type Option func(*Pipeline)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

func WithMerger(m Merger) Option {
	return func(pl *Pipeline) { pl.merger = m }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

func New(templates TemplateResolver, signatures SignatureResolver, store Store, logger *slog.Logger, dataDir, verifyBaseURL string, office config.Office, opts ...Option) *Pipeline {
	p := &Pipeline{
		templates:     templates,
		signatures:    signatures,
		store:         store,
		merger:        NewDocxMerger(),
		logger:        logger,
		dataDir:       dataDir,
		verifyBaseURL: verifyBaseURL,
		office:        office,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate renders the document for cert and persists the document reference
// together with the COMPLETED status. On success the passed cert is updated
// in place. skipAudit suppresses the generation audit event when the caller
// already logged the triggering operation.
func (p *Pipeline) Generate(ctx context.Context, cert *models.Certificate, actor identity.Identity, skipAudit bool) error {
	start := p.now()
	err := p.generate(ctx, cert, actor)
	if err != nil {
		if p.metrics != nil {
			p.metrics.GenerationFailures.Inc()
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.Generations.Inc()
		p.metrics.GenerationSeconds.Observe(p.now().Sub(start).Seconds())
	}
	if !skipAudit && p.publisher != nil {
		p.publisher.Emit(ctx, audit.Event{
			Actor:         actor.Username,
			Action:        audit.ActionCertificateGenerated,
			CertificateID: cert.UniqueID,
			Detail:        fmt.Sprintf("Generated %s", filepath.Base(cert.DocxPath)),
		})
	}
	return nil
}

func (p *Pipeline) generate(ctx context.Context, cert *models.Certificate, actor identity.Identity) error {
	templatePath, err := p.templates.Resolve(ctx, cert.Kind)
	if err != nil {
		return err
	}

	verifyURL := VerificationURL(p.verifyBaseURL, cert.VerificationToken)
	qrPath := QRPath(p.dataDir, cert.UniqueID)
	if err := os.MkdirAll(filepath.Dir(qrPath), 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.CodeGeneration, "failed to prepare qr directory")
	}
	if err := qrcode.WriteFile(verifyURL, qrcode.Medium, qrSizePx, qrPath); err != nil {
		return cerrors.Wrap(err, cerrors.CodeGeneration, "failed to render qr code")
	}

	bypass := actor.HasCapability(identity.CapBypassSignature)
	sigPath := p.signatures.Resolve(ctx, actor.Username, bypass)

	outPath := p.outputPath(cert)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.CodeGeneration, "failed to prepare output directory")
	}

	job := MergeJob{
		TemplatePath:       templatePath,
		OutputPath:         outPath,
		Fields:             p.fieldMap(cert, verifyURL),
		QRImagePath:        qrPath,
		SignatureImagePath: sigPath,
	}
	if err := p.merger.Merge(job); err != nil {
		return cerrors.Wrap(err, cerrors.CodeGeneration, "document merge failed")
	}

	if err := p.store.UpdateGenerated(ctx, cert.ID, outPath, models.StatusCompleted); err != nil {
		return cerrors.Wrap(err, cerrors.CodeInternal, "failed to record generated document")
	}
	cert.DocxPath = outPath
	cert.Status = models.StatusCompleted

	p.logger.InfoContext(ctx, "certificate generated",
		"unique_id", cert.UniqueID,
		"kind", cert.Kind,
		"output", outPath,
		"signed", sigPath != "",
	)
	return nil
}

// fieldMap builds the placeholder values merged into the template.
func (p *Pipeline) fieldMap(cert *models.Certificate, verifyURL string) map[string]string {
	const dateLayout = "January 2, 2006"
	reissueDate := ""
	if cert.ReissuedAt != nil {
		reissueDate = cert.ReissuedAt.Format(dateLayout)
	}
	return map[string]string{
		"{{FULL_NAME}}":      cert.FullName,
		"{{ADDRESS}}":        cert.Address,
		"{{AGE}}":            strconv.Itoa(cert.Age),
		"{{OCCUPATION}}":     cert.Occupation,
		"{{PURPOSE}}":        cert.Purpose,
		"{{RESIDENT_SINCE}}": cert.ResidentSince,
		"{{UNIQUE_ID}}":      cert.UniqueID,
		"{{ISSUE_DATE}}":     cert.IssueDate().Format(dateLayout),
		"{{EXPIRY_DATE}}":    cert.ExpiresAt.Format(dateLayout),
		"{{REISSUE_DATE}}":   reissueDate,
		"{{VERIFY_URL}}":     verifyURL,
		"{{BARANGAY}}":       p.office.Barangay,
		"{{CITY}}":           p.office.City,
		"{{CAPTAIN}}":        p.office.Captain,
		"{{POSTAL}}":         p.office.Postal,
	}
}

func (p *Pipeline) outputPath(cert *models.Certificate) string {
	name := strings.Join(strings.Fields(cert.FullName), "_")
	filename := fmt.Sprintf("%s_%s.docx", cert.Kind, name)
	return filepath.Join(p.dataDir, "generated", "docx", filename)
}

// VerificationURL builds the public URL encoded into the QR code.
func VerificationURL(baseURL string, token uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + token.String()
}

// QRPath is where the QR artifact for a certificate lives on disk.
func QRPath(dataDir, uniqueID string) string {
	return filepath.Join(dataDir, "qrcodes", "qr_"+uniqueID+".png")
}
