package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/crypto"
)

const sealedPrefix = "sealed:v1:"

// SealedSources encrypts file contents before they reach the wrapped store.
type SealedSources struct {
	next   SourceRepository
	sealer *crypto.Sealer
}

var _ SourceRepository = (*SealedSources)(nil)

// NewSealedSources wraps next with AES-GCM sealing keyed by secret.
func NewSealedSources(next SourceRepository, secret string) (*SealedSources, error) {
	sealer, err := crypto.NewSealer(secret)
	if err != nil {
		return nil, err
	}
	return &SealedSources{next: next, sealer: sealer}, nil
}

func (s *SealedSources) SaveSources(ctx context.Context, deploymentID string, files []domain.SourceFile) error {
	sealed := make([]domain.SourceFile, len(files))
	for i, f := range files {
		payload, err := s.sealer.Seal([]byte(f.Content))
		if err != nil {
			return fmt.Errorf("seal %s: %w", f.Path, err)
		}
		sealed[i] = domain.SourceFile{Path: f.Path, Content: sealedPrefix + base64.StdEncoding.EncodeToString(payload)}
	}
	return s.next.SaveSources(ctx, deploymentID, sealed)
}

// GetSources opens sealed contents. Files stored before sealing was enabled pass through.
func (s *SealedSources) GetSources(ctx context.Context, deploymentID string) ([]domain.SourceFile, error) {
	files, err := s.next.GetSources(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	for i, f := range files {
		encoded, ok := strings.CutPrefix(f.Content, sealedPrefix)
		if !ok {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Path, err)
		}
		plain, err := s.sealer.Open(payload)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Path, err)
		}
		files[i].Content = string(plain)
	}
	return files, nil
}

func (s *SealedSources) DeleteSources(ctx context.Context, deploymentID string) error {
	return s.next.DeleteSources(ctx, deploymentID)
}
