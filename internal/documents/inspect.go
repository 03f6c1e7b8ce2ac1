package documents

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const pdfMIME = "application/pdf"

// Inspect resolves path and detects its content type. For local PDFs the page
// count is read as well; a PDF that pdfcpu cannot parse is still accepted since
// the provider may be more lenient.
func (r *Resolver) Inspect(ctx context.Context, path string) (*Info, error) {
	info, err := r.Stat(ctx, path)
	if err != nil {
		return nil, err
	}

	if IsObjectPath(path) {
		if info.MIMEType == "" || info.MIMEType == "application/octet-stream" {
			reader, _, err := r.Open(path)(ctx)
			if err != nil {
				return nil, err
			}
			defer reader.Close()
			if mime, err := mimetype.DetectReader(reader); err == nil {
				info.MIMEType = mime.String()
			}
		}
		return info, nil
	}

	mime, err := mimetype.DetectFile(info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect document type: %w", err)
	}
	info.MIMEType = mime.String()

	if mime.Is(pdfMIME) {
		pages, err := api.PageCountFile(info.Path)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", info.Path).Msg("Failed to read PDF page count")
		} else {
			info.Pages = pages
		}
	}

	return info, nil
}
