package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nftbazaar/marketd/internal/domain"
)

// EventArchiveStore is the slice of the event journal the archiver reads.
type EventArchiveStore interface {
	ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.ChainEvent, error)
}

// ListingSnapshotStore is the slice of the listing index the archiver reads.
type ListingSnapshotStore interface {
	ListUnsold(ctx context.Context, opts domain.ListOpts) ([]domain.MarketItem, error)
}

// archivePageSize bounds each journal read while draining a window.
const archivePageSize = 500

// Archiver writes the event journal and periodic listing snapshots to blob
// storage. Archives are additive; nothing is deleted from the primary
// store here.
type Archiver struct {
	writer   domain.BlobWriter
	events   EventArchiveStore
	listings ListingSnapshotStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, events EventArchiveStore, listings ListingSnapshotStore) *Archiver {
	return &Archiver{
		writer:   writer,
		events:   events,
		listings: listings,
	}
}

// ArchiveEvents serializes every journal entry observed at or after since
// to JSONL and uploads it under archive/events/. Each run gets a unique
// object key, so overlapping windows never clobber each other. It returns
// the object key and the number of archived events.
func (a *Archiver) ArchiveEvents(ctx context.Context, since time.Time) (string, int, error) {
	var all []domain.ChainEvent
	for offset := 0; ; offset += archivePageSize {
		page, err := a.events.ListSince(ctx, since, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
		})
		if err != nil {
			return "", 0, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	if len(all) == 0 {
		return "", 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	key := fmt.Sprintf("archive/events/%s/%s.jsonl",
		since.UTC().Format("2006-01-02"), uuid.NewString())
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return key, len(all), nil
}

// SnapshotListings uploads the current unsold index as a JSON document
// under snapshots/listings/, returning the object key and item count.
func (a *Archiver) SnapshotListings(ctx context.Context) (string, int, error) {
	var all []domain.MarketItem
	for offset := 0; ; offset += archivePageSize {
		page, err := a.listings.ListUnsold(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
		})
		if err != nil {
			return "", 0, fmt.Errorf("s3blob: snapshot query: %w", err)
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}

	doc := struct {
		TakenAt time.Time           `json:"taken_at"`
		Items   []domain.MarketItem `json:"items"`
	}{
		TakenAt: time.Now().UTC(),
		Items:   all,
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: snapshot marshal: %w", err)
	}

	key := fmt.Sprintf("snapshots/listings/%s/%s.json",
		doc.TakenAt.Format("2006-01-02T15"), uuid.NewString())
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/json"); err != nil {
		return "", 0, fmt.Errorf("s3blob: snapshot upload: %w", err)
	}
	return key, len(all), nil
}

// marshalJSONL renders one JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
