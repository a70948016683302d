package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entities the outbox knows how to replay.
const (
	EntityEarnings = "earnings"
	EntityProfile  = "profile"

	OperationCredit = "credit"
	OperationUpdate = "update"
)

// Item is a deferred write kept until the primary store accepts it.
type Item struct {
	ID        string          `json:"id"`
	// Key identifies the write itself, e.g. the credit for one task. Empty
	// means the item is never deduplicated.
	Key       string          `json:"key,omitempty"`
	UserID    string          `json:"user_id"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	slot []byte
}

// Credit is the payload of an earnings item.
type Credit struct {
	TaskID string `json:"task_id"`
	Amount int64  `json:"amount"`
}

// NewItem marshals data into an item. Lower priority values drain first.
func NewItem(userID, entity, operation string, priority int, data any) (Item, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Item{}, err
	}
	return Item{
		UserID:    userID,
		Entity:    entity,
		Operation: operation,
		Data:      raw,
		Priority:  priority,
	}, nil
}

// CreditKey is the outbox key of the earnings credit for taskID.
func CreditKey(taskID string) string {
	return EntityEarnings + ":" + taskID
}

// Durable reports whether the item must survive retry caps and retention
// purges. A parked earnings credit is money owed to a worker.
func (i Item) Durable() bool {
	return i.Entity == EntityEarnings
}

// Decode unmarshals the item payload into v.
func (i Item) Decode(v any) error {
	return json.Unmarshal(i.Data, v)
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
