package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrImageRejected is returned when SafeSearch flags an image as unsafe.
var ErrImageRejected = errors.New("image rejected: violates community guidelines")

// SafeSearchDetector rates an image for unsafe content.
type SafeSearchDetector interface {
	Detect(ctx context.Context, image []byte) (*SafeSearchResult, error)
}

// ScreeningClassifier runs SafeSearch on the photo before delegating to the
// wrapped Classifier. Unsafe photos fail classification, so nothing is
// stored for them.
type ScreeningClassifier struct {
	next     Classifier
	detector SafeSearchDetector
	logger   *slog.Logger
}

func NewScreeningClassifier(next Classifier, detector SafeSearchDetector, logger *slog.Logger) *ScreeningClassifier {
	return &ScreeningClassifier{next: next, detector: detector, logger: logger}
}

func (c *ScreeningClassifier) Classify(ctx context.Context, photo []byte, mimeType string, tags []string) (Classification, error) {
	ss, err := c.detector.Detect(ctx, photo)
	if err != nil {
		return Classification{}, fmt.Errorf("safesearch: %w", err)
	}

	c.logger.Debug("safesearch result",
		slog.String("adult", ss.Adult),
		slog.String("violence", ss.Violence),
		slog.String("racy", ss.Racy),
		slog.Bool("unsafe", ss.IsUnsafe()))

	if ss.IsUnsafe() {
		return Classification{}, ErrImageRejected
	}
	return c.next.Classify(ctx, photo, mimeType, tags)
}
