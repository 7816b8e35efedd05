package qc

import (
	"context"

	"dataset-platform/core/models"
)

// Scorer produces a model-quality score for one asset. The production scorer
// calls an inference service; tests and local runs use ConstantScorer.
type Scorer interface {
	Score(ctx context.Context, asset *models.Asset) (float64, error)
}

// ConstantScorer returns the same score for every asset.
type ConstantScorer struct {
	Value float64
}

func (s ConstantScorer) Score(ctx context.Context, asset *models.Asset) (float64, error) {
	return s.Value, nil
}
