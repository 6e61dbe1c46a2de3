package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// renderPage renders a single PDF page to PNG using pdftoppm
// (poppler-utils). pdftoppm renders the page as displayed, unlike image
// extraction which pulls embedded objects whose order may not match page
// order.
func renderPage(ctx context.Context, pdfPath, outDir string, pageInPDF, outputPageNum int) error {
	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -r 300: resolution in DPI, enough detail for OCR
	// -singlefile: no page number suffix, naming is handled here
	pageStr := fmt.Sprintf("%d", pageInPDF)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", "300",
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered image: %w", err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", outputPageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}
	return nil
}
