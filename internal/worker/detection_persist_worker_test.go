package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"gorm.io/gorm"

	"dermascan-gateway/internal/model"
)

type memoryStore struct {
	saved []model.Detection
	err   error
}

func (s *memoryStore) Create(_ context.Context, d *model.Detection) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *d)
	return nil
}

func payload(t *testing.T) []byte {
	t.Helper()
	d := model.Detection{ID: 99, DetectionID: "det-1", RequestID: "req-1", ModelID: "kuchbhe/7", Filename: "mole.jpg"}
	d.SetClasses([]string{"Melanoma"})
	d.SetCodes([]string{"MEL"})
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandle_Persists(t *testing.T) {
	store := &memoryStore{}
	w := NewDetectionPersistWorker(nil, store, "q")

	if err := w.handle(context.Background(), payload(t)); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved = %d detections", len(store.saved))
	}
	got := store.saved[0]
	if got.ID != 0 {
		t.Errorf("ID = %d, expected store to assign it", got.ID)
	}
	if got.DetectionID != "det-1" || got.RequestID != "req-1" || !reflect.DeepEqual(got.ClassList(), []string{"Melanoma"}) {
		t.Errorf("saved = %+v", got)
	}
}

func TestHandle_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		store *memoryStore
	}{
		{"garbage", []byte("{"), &memoryStore{}},
		{"missing detection id", []byte(`{"request_id":"req-1","model_id":"m"}`), &memoryStore{}},
		{"store failure", nil, &memoryStore{err: errors.New("db down")}},
	}
	for _, tt := range tests {
		body := tt.body
		if body == nil {
			body = payload(t)
		}
		w := NewDetectionPersistWorker(nil, tt.store, "q")
		if err := w.handle(context.Background(), body); err == nil {
			t.Errorf("%s: handle() expected error", tt.name)
		}
	}
}

func TestHandle_DuplicateIsAcked(t *testing.T) {
	store := &memoryStore{err: fmt.Errorf("create detection failed: %w", gorm.ErrDuplicatedKey)}
	w := NewDetectionPersistWorker(nil, store, "q")

	if err := w.handle(context.Background(), payload(t)); err != nil {
		t.Fatalf("handle() = %v, expected redelivered detection to be acknowledged", err)
	}
}

func TestHandle_RepeatedRequestID(t *testing.T) {
	store := &memoryStore{}
	w := NewDetectionPersistWorker(nil, store, "q")

	for _, id := range []string{"det-1", "det-2"} {
		d := model.Detection{DetectionID: id, RequestID: "client-retry", ModelID: "kuchbhe/7"}
		body, err := json.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.handle(context.Background(), body); err != nil {
			t.Fatalf("handle(%s) error = %v", id, err)
		}
	}
	if len(store.saved) != 2 {
		t.Errorf("saved = %d detections, expected both retries kept", len(store.saved))
	}
}

func TestClose_NotStarted(t *testing.T) {
	w := NewDetectionPersistWorker(nil, &memoryStore{}, "q")
	w.Close()
}
