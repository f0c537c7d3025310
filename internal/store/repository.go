package store

import (
	"context"
	"errors"
	"time"
)

// Store errors. ErrItemNotFound is permanent (caller error, do not retry);
// ErrStoreUnavailable is transient and retryable with the same key.
var (
	ErrItemNotFound     = errors.New("item not found")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Item is one record in the keyed session table. Data is the JSON-encoded
// payload; GSI1PK/GSI1SK, when set, place the item in the secondary recency
// index. Index keys live on the item itself, so one PutItem updates the
// record and its index position in the same write.
type Item struct {
	PK     string
	SK     string
	Data   []byte
	GSI1PK string
	GSI1SK string
}

// Repository is the keyed storage contract behind the session service.
// Engines (MongoDB, SQLite) are substitutable without changing session
// semantics.
//
// QueryByPrefix returns items with the given PK whose SK starts with
// skPrefix, ascending by SK. QueryByIndex returns items in the gsi1pk
// partition sorted by GSI1SK descending; startAfter, when non-empty, is an
// exclusive cursor (items with GSI1SK < startAfter).
type Repository interface {
	GetItem(ctx context.Context, pk, sk string) (Item, error)
	PutItem(ctx context.Context, item Item) error
	QueryByPrefix(ctx context.Context, pk, skPrefix string) ([]Item, error)
	QueryByIndex(ctx context.Context, gsi1pk string, limit int, startAfter string) ([]Item, error)
	Name() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Key patterns of the single-table layout:
//
//	SESSION#{id} / META            session metadata
//	SESSION#{id} / MSG#{timestamp} message record
//	ARTIFACT#{path} / SESSION#{id} artifact ownership (reverse lookup)
//
// The listing index partitions all META items under a fixed key, sorted by
// updated#{timestamp}.
const (
	SKMeta        = "META"
	MsgSKPrefix   = "MSG#"
	ListPartition = "USER#default"
)

// tsLayout is fixed-width (nanoseconds always printed) so that the
// lexicographic order of encoded timestamps matches chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SessionPK builds the primary key for a session's item group
func SessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// MessageSK builds the sort key for a message at the given timestamp
func MessageSK(ts time.Time) string {
	return MsgSKPrefix + FormatTimestamp(ts)
}

// ArtifactPK builds the reverse-lookup key for an artifact path
func ArtifactPK(path string) string {
	return "ARTIFACT#" + path
}

// UpdatedSK builds the recency index sort key for a session's last update
func UpdatedSK(ts time.Time) string {
	return "updated#" + FormatTimestamp(ts)
}

// FormatTimestamp encodes a timestamp into its fixed-width key form
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(tsLayout)
}

// ParseTimestamp decodes a timestamp from its key form
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}
