package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryKey is the storage key of the recent photo history.
const HistoryKey = "recentCroppedPhotos"

// DefaultHistoryCap is the number of entries kept when no cap is configured.
const DefaultHistoryCap = 10

// ErrIncompletePhoto is returned when a history entry lacks its DNI, name,
// or image URL.
var ErrIncompletePhoto = errors.New("photo entry requires dni, nombre and imageUrl")

// RecentPhotoEntry is one cropped photo in the recent history.
type RecentPhotoEntry struct {
	ID           string    `json:"id,omitempty" dynamodbav:"id"`
	ImageURL     string    `json:"imageUrl" dynamodbav:"imageUrl"`
	AssociatedID string    `json:"dni" dynamodbav:"dni"`
	DisplayName  string    `json:"nombre" dynamodbav:"nombre"`
	Timestamp    time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

func (e RecentPhotoEntry) validate() error {
	if e.AssociatedID == "" || e.DisplayName == "" || e.ImageURL == "" {
		return ErrIncompletePhoto
	}
	return nil
}

// prepend inserts e at the front and evicts the oldest entries beyond limit.
func prepend(history []RecentPhotoEntry, e RecentPhotoEntry, limit int) []RecentPhotoEntry {
	out := make([]RecentPhotoEntry, 0, min(len(history)+1, limit))
	out = append(out, e)
	for _, h := range history {
		if len(out) == limit {
			break
		}
		out = append(out, h)
	}
	return out
}

func loadHistory(ctx context.Context, store Storage, limit int) ([]RecentPhotoEntry, error) {
	data, err := store.Load(ctx, HistoryKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var history []RecentPhotoEntry
	if err := json.Unmarshal(data, &history); err != nil {
		// A corrupt record starts a fresh history instead of blocking the client.
		log.Warn().Err(err).Str("key", HistoryKey).Msg("Discarding unreadable photo history")
		return nil, nil
	}
	if len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func saveHistory(ctx context.Context, store Storage, history []RecentPhotoEntry) error {
	if history == nil {
		history = []RecentPhotoEntry{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := store.Save(ctx, HistoryKey, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
