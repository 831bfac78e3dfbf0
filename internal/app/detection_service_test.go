package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"dermascan-gateway/internal/inference"
	"dermascan-gateway/internal/model"
)

type fakeProvider struct {
	predictions []inference.Prediction
	err         error
	calls       int
	last        inference.Request
}

func (p *fakeProvider) Infer(_ context.Context, req inference.Request) ([]inference.Prediction, error) {
	p.calls++
	p.last = req
	return p.predictions, p.err
}

type memoryCache struct {
	entries map[string][]string
	getErr  error
}

func (c *memoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, codes []string) error {
	c.entries[key] = codes
	return nil
}

type recordingPublisher struct {
	published []model.Detection
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, d model.Detection) error {
	p.published = append(p.published, d)
	return p.err
}

func testImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func opts() DetectionOptions {
	return DetectionOptions{ModelID: "kuchbhe/7", Confidence: 0.5}
}

func TestDetect_TranslatesInOrder(t *testing.T) {
	provider := &fakeProvider{predictions: []inference.Prediction{{Class: "MEL"}, {Class: "NV"}, {Class: "XYZ"}}}
	svc := NewDetectionService(provider, nil, nil, opts())

	got, err := svc.Detect(context.Background(), DetectInput{RequestID: "r1", Image: testImage(4, 4)})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if expected := []string{"Melanoma", "Nevus", "XYZ"}; !reflect.DeepEqual(got, expected) {
		t.Errorf("Detect() = %v, expected %v", got, expected)
	}
	if provider.last.ModelID != "kuchbhe/7" || provider.last.Confidence != 0.5 {
		t.Errorf("request = %+v", provider.last)
	}
	if _, err := png.Decode(bytes.NewReader(provider.last.Image)); err != nil {
		t.Errorf("provider did not receive png bytes: %v", err)
	}
}

func TestDetect_DefaultConfidence(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewDetectionService(provider, nil, nil, DetectionOptions{ModelID: "m/1"})
	if _, err := svc.Detect(context.Background(), DetectInput{Image: testImage(2, 2)}); err != nil {
		t.Fatal(err)
	}
	if provider.last.Confidence != 0.5 {
		t.Errorf("Confidence = %v, expected 0.5", provider.last.Confidence)
	}
}

func TestDetect_ProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	pub := &recordingPublisher{}
	svc := NewDetectionService(provider, nil, pub, opts())

	_, err := svc.Detect(context.Background(), DetectInput{RequestID: "r1", Image: testImage(4, 4)})
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("Detect() = %v, expected *InferenceError", err)
	}
	if err.Error() != "Error during inference: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(errors.Unwrap(err).Error(), "refused") {
		t.Errorf("Unwrap() lost cause")
	}
	if len(pub.published) != 0 {
		t.Errorf("failed detection was published")
	}
}

func TestDetect_CacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{predictions: []inference.Prediction{{Class: "BCC"}}}
	cache := &memoryCache{entries: map[string][]string{}}
	svc := NewDetectionService(provider, cache, nil, opts())
	in := DetectInput{Image: testImage(3, 3)}

	first, err := svc.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Detect(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, expected 1", provider.calls)
	}
	if !reflect.DeepEqual(first, second) || first[0] != "Basal Cell Carcinoma" {
		t.Errorf("first = %v, second = %v", first, second)
	}
}

func TestDetect_CacheErrorFallsThrough(t *testing.T) {
	provider := &fakeProvider{predictions: []inference.Prediction{{Class: "DF"}}}
	cache := &memoryCache{entries: map[string][]string{}, getErr: errors.New("redis down")}
	svc := NewDetectionService(provider, cache, nil, opts())

	got, err := svc.Detect(context.Background(), DetectInput{Image: testImage(3, 3)})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if provider.calls != 1 || got[0] != "Dermatofibroma" {
		t.Errorf("calls = %d, got = %v", provider.calls, got)
	}
}

func TestDetect_PublishesDetection(t *testing.T) {
	provider := &fakeProvider{predictions: []inference.Prediction{{Class: "VASC"}, {Class: "QQ"}}}
	pub := &recordingPublisher{err: errors.New("broker gone")}
	svc := NewDetectionService(provider, nil, pub, opts())

	got, err := svc.Detect(context.Background(), DetectInput{RequestID: "r9", Filename: "arm.png", Image: testImage(3, 3)})
	if err != nil {
		t.Fatalf("Detect() error = %v, publish failures must not fail detection", err)
	}
	if len(got) != 2 {
		t.Fatalf("Detect() = %v", got)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d", len(pub.published))
	}
	d := pub.published[0]
	if d.RequestID != "r9" || d.Filename != "arm.png" || d.ModelID != "kuchbhe/7" || len(d.ImageSHA256) != 64 || d.Cached {
		t.Errorf("detection = %+v", d)
	}
	if _, err := uuid.Parse(d.DetectionID); err != nil {
		t.Errorf("DetectionID = %q is not a uuid", d.DetectionID)
	}
	if !reflect.DeepEqual(d.CodeList(), []string{"VASC", "QQ"}) || !reflect.DeepEqual(d.ClassList(), []string{"Vascular Lesion", "QQ"}) {
		t.Errorf("codes = %v, classes = %v", d.CodeList(), d.ClassList())
	}
}

func TestDetect_Downscales(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewDetectionService(provider, nil, nil, DetectionOptions{ModelID: "m/1", Confidence: 0.5, MaxImageSide: 10})

	if _, err := svc.Detect(context.Background(), DetectInput{Image: testImage(40, 20)}); err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(provider.last.Image))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("sent %dx%d, expected 10x5", cfg.Width, cfg.Height)
	}
}

func TestDetect_CacheHitIsPublished(t *testing.T) {
	provider := &fakeProvider{predictions: []inference.Prediction{{Class: "MEL"}, {Class: "ZZ"}}}
	cache := &memoryCache{entries: map[string][]string{}}
	pub := &recordingPublisher{}
	svc := NewDetectionService(provider, cache, pub, opts())
	in := DetectInput{RequestID: "same-client-id", Filename: "back.png", Image: testImage(5, 5)}

	for i := 0; i < 2; i++ {
		got, err := svc.Detect(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"Melanoma", "ZZ"}) {
			t.Errorf("call %d: Detect() = %v", i, got)
		}
	}

	if provider.calls != 1 {
		t.Errorf("provider calls = %d, expected 1", provider.calls)
	}
	if len(pub.published) != 2 {
		t.Fatalf("published = %d, expected one per detection", len(pub.published))
	}
	first, second := pub.published[0], pub.published[1]
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if first.DetectionID == second.DetectionID {
		t.Errorf("detections share id %q", first.DetectionID)
	}
	if !reflect.DeepEqual(second.CodeList(), []string{"MEL", "ZZ"}) || !reflect.DeepEqual(second.ClassList(), []string{"Melanoma", "ZZ"}) {
		t.Errorf("cached detection codes = %v, classes = %v", second.CodeList(), second.ClassList())
	}
}
