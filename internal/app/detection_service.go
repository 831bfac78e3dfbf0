package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dermascan-gateway/internal/inference"
	"dermascan-gateway/internal/model"
	"dermascan-gateway/internal/vision"
)

const publishTimeout = 2 * time.Second

// InferenceError is any failure between the decoded image and the translated result.
// The HTTP layer decides how it is surfaced.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("Error during inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

type DetectionPublisher interface {
	Publish(ctx context.Context, detection model.Detection) error
}

// PredictionCache holds the provider's class codes per image.
type PredictionCache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, codes []string) error
}

type DetectionOptions struct {
	ModelID      string
	Confidence   float64
	MaxImageSide int
}

type DetectInput struct {
	RequestID string
	Filename  string
	Image     image.Image
}

type DetectionService struct {
	provider  inference.Provider
	cache     PredictionCache
	publisher DetectionPublisher
	opts      DetectionOptions
}

// NewDetectionService wires the provider with the optional cache and publisher; either may be nil.
func NewDetectionService(
	provider inference.Provider,
	cache PredictionCache,
	publisher DetectionPublisher,
	opts DetectionOptions,
) *DetectionService {
	if opts.Confidence <= 0 {
		opts.Confidence = 0.5
	}
	return &DetectionService{
		provider:  provider,
		cache:     cache,
		publisher: publisher,
		opts:      opts,
	}
}

// Detect classifies img remotely and returns display names in provider order.
// Every failure is returned as *InferenceError.
func (s *DetectionService) Detect(ctx context.Context, input DetectInput) ([]string, error) {
	img := vision.Downscale(input.Image, s.opts.MaxImageSide)
	encoded, err := vision.EncodePNG(img)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}

	digest := sha256.Sum256(encoded)
	imageSHA := hex.EncodeToString(digest[:])
	cacheKey := s.cacheKey(imageSHA)

	codes, cached := s.cachedCodes(ctx, input.RequestID, cacheKey)
	if !cached {
		predictions, err := s.provider.Infer(ctx, inference.Request{
			Image:      encoded,
			ModelID:    s.opts.ModelID,
			Confidence: s.opts.Confidence,
		})
		if err != nil {
			log.Printf("detect %s: provider failed: %v", input.RequestID, err)
			return nil, &InferenceError{Err: err}
		}
		codes = inference.Codes(predictions)

		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey, codes); err != nil {
				log.Printf("detect %s: cache set failed: %v", input.RequestID, err)
			}
		}
	}

	classes := inference.TranslateCodes(codes)

	if s.publisher != nil {
		detection := model.Detection{
			DetectionID: uuid.NewString(),
			RequestID:   input.RequestID,
			ModelID:     s.opts.ModelID,
			Filename:    input.Filename,
			ImageSHA256: imageSHA,
			Cached:      cached,
			CreatedAt:   time.Now(),
		}
		detection.SetCodes(codes)
		detection.SetClasses(classes)
		s.publish(ctx, detection)
	}

	return classes, nil
}

func (s *DetectionService) cachedCodes(ctx context.Context, requestID, key string) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}
	codes, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("detect %s: cache get failed: %v", requestID, err)
		return nil, false
	}
	return codes, ok
}

func (s *DetectionService) publish(ctx context.Context, detection model.Detection) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, detection); err != nil {
		log.Printf("detect %s: publish detection %s failed: %v", detection.RequestID, detection.DetectionID, err)
	}
}

func (s *DetectionService) cacheKey(imageSHA string) string {
	return s.opts.ModelID + ":" + strconv.FormatFloat(s.opts.Confidence, 'f', -1, 64) + ":" + imageSHA
}
