package audit

import "time"

// Action names are stable; reporting consumers key on them.
const (
	ActionCertificateCreated   = "certificate.created"
	ActionCertificateReissued  = "certificate.reissued"
	ActionCertificateGenerated = "certificate.generated"
	ActionTemplateUploaded     = "template.uploaded"
	ActionSignatureUploaded    = "signature.uploaded"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor,omitempty"` // empty when system-initiated
	Action        string    `json:"action"`
	CertificateID string    `json:"certificate_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}
