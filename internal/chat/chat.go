package chat

import (
	"sync"

	"veranda/internal/models"
)

// Room is the in-process unit of serialization for one chat room.
// Everything that touches the room's presence or broadcast order runs
// inside Serialize. The ring buffer keeps the most recent persisted
// messages so joins are answered without a storage scan.
type Room struct {
	ID         string
	Name       string
	Records    []models.Message
	FirstSeq   int
	LastSeq    int
	LastIndex  int
	MaxRecords int

	loaded bool

	writer sync.Mutex
	mux    sync.RWMutex
}

type Config struct {
	ID         string
	Name       string
	MaxRecords int
}

func New(config Config) *Room {
	if config.MaxRecords <= 0 {
		config.MaxRecords = 100
	}
	return &Room{
		ID:         config.ID,
		Name:       config.Name,
		MaxRecords: config.MaxRecords,
		LastIndex:  -1,
		FirstSeq:   -1,
		LastSeq:    -1,
	}
}

// Serialize runs fn with exclusive access to the room.
func (c *Room) Serialize(fn func() error) error {
	c.writer.Lock()
	defer c.writer.Unlock()
	return fn()
}

// Loaded reports whether the history buffer was filled from storage.
func (c *Room) Loaded() bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.loaded
}

// Load replaces the buffer content with history, oldest first.
func (c *Room) Load(history []models.Message) {
	c.mux.Lock()
	c.Records = nil
	c.LastIndex = -1
	c.FirstSeq = -1
	c.LastSeq = -1
	c.mux.Unlock()

	for _, m := range history {
		c.AddRecord(m)
	}

	c.mux.Lock()
	c.loaded = true
	c.mux.Unlock()
}

// AddRecord adds a persisted message to the ring buffer, evicting the
// oldest one when full.
func (c *Room) AddRecord(record models.Message) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.LastSeq++

	switch {
	case len(c.Records) < c.MaxRecords:
		if c.FirstSeq == -1 {
			c.FirstSeq = c.LastSeq
		}
		c.Records = append(c.Records, record)
		c.LastIndex++
	default:
		c.FirstSeq++
		i := (c.LastIndex + 1) % c.MaxRecords
		c.Records[i] = record
		c.LastIndex = i
	}
}

// GetLastRecords returns up to count most recent records, oldest first.
func (c *Room) GetLastRecords(count int) []models.Message {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if c.LastSeq == -1 || count <= 0 {
		return []models.Message{}
	}

	total := c.LastSeq - c.FirstSeq + 1
	if count > total {
		count = total
	}

	// We want [LastSeq - count + 1, LastSeq + 1)
	from := c.LastSeq - count + 1
	result := make([]models.Message, count)

	head := 0
	if len(c.Records) == c.MaxRecords {
		head = (c.LastIndex + 1) % c.MaxRecords
	}

	offset := from - c.FirstSeq
	startIdx := (head + offset) % len(c.Records)

	if startIdx+count <= len(c.Records) {
		copy(result, c.Records[startIdx:startIdx+count])
	} else {
		n1 := len(c.Records) - startIdx
		copy(result, c.Records[startIdx:])
		copy(result[n1:], c.Records[:count-n1])
	}

	return result
}
