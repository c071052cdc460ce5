package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studio/internal/domain"
)

// Describe writes a product description from a single reference image.
// Plain request/response; concurrent calls are allowed and the caller is
// responsible for suppressing duplicate triggers.
func (s *Service) Describe(ctx context.Context, product domain.Media) (string, error) {
	if product.IsZero() {
		return "", domain.WrapValidation("a product image is required")
	}
	text, err := s.gw.SynthesizeDescription(ctx, product)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialMissing) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: model returned an empty description", domain.ErrGeneration)
	}
	return text, nil
}
