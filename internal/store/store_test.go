package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/emiwiz/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "emiwiz.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestTransactionIDDefaultsAndPersists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.TransactionID(ctx)
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if id != model.DefaultTransactionID {
		t.Fatalf("expected default id, got %q", id)
	}

	if err := s.SetTransactionID(ctx, "tx-1"); err != nil {
		t.Fatalf("SetTransactionID: %v", err)
	}
	if err := s.SetTransactionID(ctx, "tx-2"); err != nil {
		t.Fatalf("SetTransactionID: %v", err)
	}
	id, err = s.TransactionID(ctx)
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if id != "tx-2" {
		t.Fatalf("expected tx-2, got %q", id)
	}

	if err := s.ResetTransactionID(ctx); err != nil {
		t.Fatalf("ResetTransactionID: %v", err)
	}
	id, err = s.TransactionID(ctx)
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if id != model.DefaultTransactionID {
		t.Fatalf("expected default after reset, got %q", id)
	}
}

func TestTransactionIDSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "emiwiz.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.SetTransactionID(ctx, "abc"); err != nil {
		t.Fatalf("SetTransactionID: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()
	id, err := s.TransactionID(ctx)
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if id != "abc" {
		t.Fatalf("expected abc after reopen, got %q", id)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		n := model.Notification{
			ID:    text,
			Text:  text,
			Level: model.LevelInfo,
			At:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordNotification(n); err != nil {
			t.Fatalf("RecordNotification: %v", err)
		}
	}

	list, err := s.ListNotifications(ctx, 2)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
	if list[0].Text != "third" || list[1].Text != "second" {
		t.Fatalf("unexpected order: %q, %q", list[0].Text, list[1].Text)
	}
	if !list[0].At.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected timestamp: %v", list[0].At)
	}
}

func TestUploadAuditLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	if _, err := s.RecordUpload(ctx, model.UploadRecord{
		Endpoint: "/upload/vehicle_classification", TransactionID: "tx-1", Status: 200, CreatedAt: base,
	}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	id, err := s.RecordUpload(ctx, model.UploadRecord{
		Endpoint: "/upload/traffic_volume", TransactionID: "tx-1", Status: 400, Error: "bad file", CreatedAt: base.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}

	list, err := s.ListUploads(ctx, 10)
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(list))
	}
	if list[0].Endpoint != "/upload/traffic_volume" || list[0].Status != 400 || list[0].Error != "bad file" {
		t.Fatalf("unexpected newest record: %+v", list[0])
	}

	none, err := s.ListUploads(ctx, 0)
	if err != nil || none != nil {
		t.Fatalf("expected nil for zero limit, got %v, %v", none, err)
	}
}
