package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Expected v1, got %s", got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("Expected key before expiry, got %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	type payload struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	if err := SetJSON(ctx, c, "p", payload{ID: "a", Count: 2}, 0); err != nil {
		t.Fatalf("Failed to set JSON: %v", err)
	}
	var out payload
	if err := GetJSON(ctx, c, "p", &out); err != nil {
		t.Fatalf("Failed to get JSON: %v", err)
	}
	if out.ID != "a" || out.Count != 2 {
		t.Errorf("Unexpected payload %+v", out)
	}
}
