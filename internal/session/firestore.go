package session

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/metrics"
)

// FirestoreStore persists sessions in a Firestore collection so they survive
// restarts and are shared across instances. Token material lives server-side
// only; nothing here ever reaches a cookie.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

// NewFirestoreStore connects to Firestore and verifies the collection is
// reachable before returning.
func NewFirestoreStore(ctx context.Context, projectID, collection string, ttl time.Duration) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	// Probe with a bounded read so misconfiguration fails at startup.
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	iter := client.Collection(collection).Limit(1).Documents(probeCtx)
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		client.Close()
		return nil, fmt.Errorf("failed to access collection %s: %w", collection, err)
	}
	iter.Stop()

	log.LogInfoWithFields("session", "Firestore session store initialized", map[string]any{
		"project":    projectID,
		"collection": collection,
	})
	return &FirestoreStore{client: client, collection: collection, ttl: ttl}, nil
}

func (f *FirestoreStore) GetOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	if id != "" {
		s, err := f.Get(ctx, id)
		if err == nil {
			s.Touch()
			if err := f.Save(ctx, s); err != nil {
				log.LogWarn("Failed to persist session touch: %v", err)
			}
			return s, false, nil
		}
		if err != ErrNotFound {
			return nil, false, err
		}
	}

	s := newSession(uuid.NewString())
	if err := f.Save(ctx, s); err != nil {
		return nil, false, err
	}
	// Process-local count; each instance reports the sessions it created.
	metrics.ActiveSessions.Inc()
	return s, true, nil
}

func (f *FirestoreStore) Get(ctx context.Context, id string) (*Session, error) {
	doc, err := f.client.Collection(f.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := doc.DataTo(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if time.Since(s.LastSeen) > f.ttl {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (f *FirestoreStore) Save(ctx context.Context, s *Session) error {
	snap := s.Snapshot()
	if _, err := f.client.Collection(f.collection).Doc(snap.ID).Set(ctx, &snap); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (f *FirestoreStore) Destroy(ctx context.Context, id string) error {
	if _, err := f.client.Collection(f.collection).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	metrics.ActiveSessions.Dec()
	return nil
}

func (f *FirestoreStore) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-f.ttl)
	iter := f.client.Collection(f.collection).
		Where("last_seen", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("failed to scan expired sessions: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogWarn("Failed to delete expired session %s: %v", doc.Ref.ID, err)
			continue
		}
		removed++
	}
	metrics.ActiveSessions.Sub(float64(removed))
	return removed, nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}
