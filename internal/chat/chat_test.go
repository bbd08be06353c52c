package chat

import (
	"fmt"
	"sync"
	"testing"

	"veranda/internal/models"
)

func TestNew(t *testing.T) {
	c := New(Config{ID: "main", MaxRecords: 10})
	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.MaxRecords != 10 {
		t.Errorf("expected MaxRecords 10, got %d", c.MaxRecords)
	}
	if c.Loaded() {
		t.Error("new room must not be loaded")
	}
	if recs := c.GetLastRecords(5); len(recs) != 0 {
		t.Errorf("expected empty history, got %d", len(recs))
	}
}

func TestRoom_AddRecord_NoWrap(t *testing.T) {
	c := New(Config{MaxRecords: 10})

	for i := 0; i < 5; i++ {
		c.AddRecord(models.Message{UserID: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	if len(c.Records) != 5 {
		t.Errorf("expected 5 records, got %d", len(c.Records))
	}

	recs := c.GetLastRecords(2)
	if len(recs) != 2 {
		t.Errorf("expected 2 records, got %d", len(recs))
	}
	if recs[1].Content != "msg 4" {
		t.Errorf("expected last msg 'msg 4', got '%s'", recs[1].Content)
	}
}

func TestRoom_AddRecord_Wrap(t *testing.T) {
	c := New(Config{MaxRecords: 3})

	for i := 0; i < 3; i++ {
		c.AddRecord(models.Message{UserID: "user", Content: fmt.Sprintf("msg %d", i)})
	}
	c.AddRecord(models.Message{UserID: "user", Content: "msg 3"})

	recs := c.GetLastRecords(10)

	// msg 0 is evicted, order stays chronological
	expected := []string{"msg 1", "msg 2", "msg 3"}
	if len(recs) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(recs))
	}
	for i, exp := range expected {
		if recs[i].Content != exp {
			t.Errorf("index %d: expected '%s', got '%s'", i, exp, recs[i].Content)
		}
	}
}

func TestRoom_Load(t *testing.T) {
	c := New(Config{MaxRecords: 2})
	c.AddRecord(models.Message{Content: "stale"})

	c.Load([]models.Message{{Content: "a"}, {Content: "b"}, {Content: "c"}})
	if !c.Loaded() {
		t.Error("expected room to be loaded")
	}

	recs := c.GetLastRecords(10)
	if len(recs) != 2 || recs[0].Content != "b" || recs[1].Content != "c" {
		t.Errorf("expected [b c], got %+v", recs)
	}
}

func TestRoom_Serialize(t *testing.T) {
	c := New(Config{})

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Go(func() {
			_ = c.Serialize(func() error {
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				inside--
				return nil
			})
		})
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
}
