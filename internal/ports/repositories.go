package ports

import (
	"context"

	"scanbridge/internal/domain"
)

// ScanDirectory reads the scanner's own scan listing.
type ScanDirectory interface {
	LatestScan(ctx context.Context, baseURL string) (domain.ScanRef, error)
	Download(ctx context.Context, baseURL, artifactName string) ([]byte, error)
}

// Converter talks to the conversion service on the Windows host.
type Converter interface {
	ConvertLatest(ctx context.Context, preferredName string) (domain.Conversion, error)
	Download(ctx context.Context, run, name string) ([]byte, error)
}

// ArtifactStore keeps downloaded scan artifacts.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (path string, err error)
}
