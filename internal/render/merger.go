package render

import (
	"fmt"

	"github.com/nguyenthenguyen/docx"
)

// Placeholder media entries inside the bundled templates. The QR and the
// signature are swapped in by path, the way the docx package addresses
// embedded images.
const (
	qrMediaEntry        = "word/media/image1.png"
	signatureMediaEntry = "word/media/image2.png"
)

// MergeJob is one template-to-document merge.
type MergeJob struct {
	TemplatePath string
	OutputPath   string
	Fields       map[string]string

	// Image paths; empty means leave the placeholder as-is.
	QRImagePath        string
	SignatureImagePath string
}

// Merger turns a template plus field values into a finished document.
type Merger interface {
	Merge(job MergeJob) error
}

// DocxMerger merges via placeholder replacement in the docx XML.
type DocxMerger struct{}

func NewDocxMerger() *DocxMerger {
	return &DocxMerger{}
}

func (m *DocxMerger) Merge(job MergeJob) error {
	r, err := docx.ReadDocxFile(job.TemplatePath)
	if err != nil {
		return fmt.Errorf("open template %s: %w", job.TemplatePath, err)
	}
	defer r.Close()

	doc := r.Editable()
	for placeholder, value := range job.Fields {
		if err := doc.Replace(placeholder, value, -1); err != nil {
			return fmt.Errorf("replace %s: %w", placeholder, err)
		}
	}
	if job.QRImagePath != "" {
		if err := doc.ReplaceImage(qrMediaEntry, job.QRImagePath); err != nil {
			return fmt.Errorf("replace qr image: %w", err)
		}
	}
	if job.SignatureImagePath != "" {
		if err := doc.ReplaceImage(signatureMediaEntry, job.SignatureImagePath); err != nil {
			return fmt.Errorf("replace signature image: %w", err)
		}
	}
	if err := doc.WriteToFile(job.OutputPath); err != nil {
		return fmt.Errorf("write document %s: %w", job.OutputPath, err)
	}
	return nil
}
