package db

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pagewatch/internal/types"
)

// watermarkChunkSize bounds the id-array length per UPDATE statement so a
// heavily watched document does not produce one enormous statement.
const watermarkChunkSize = 500

// WatchRepository provides data access for the watches table: one row per
// (user, document) pair, carrying the "last notified" watermark in the
// notified_at column. NULL notified_at means the user has visited the
// document since the last notification and is due for the next one.
type WatchRepository struct {
	db DBTX
}

// NewWatchRepository creates a new WatchRepository backed by the given
// database connection (pool or transaction).
func NewWatchRepository(db DBTX) *WatchRepository {
	return &WatchRepository{db: db}
}

// ListWatchers returns the ids of users watching the document, excluding
// excludeUser.
//
// With FilterDiffNoticeOrUnseen, a watcher qualifies when their watermark is
// clear (they have seen the document since the last notification) or they
// opted into a notice for every change. FilterAll returns every watcher.
func (r *WatchRepository) ListWatchers(ctx context.Context, doc types.DocumentID, excludeUser types.UserID, filter types.WatcherFilter) ([]types.UserID, error) {
	query := `SELECT w.user_id
		 FROM watches w
		 WHERE w.doc_namespace = $1 AND w.doc_key = $2
		   AND w.user_id <> $3
		 ORDER BY w.user_id`

	if filter == types.FilterDiffNoticeOrUnseen {
		query = `SELECT w.user_id
			 FROM watches w
			 LEFT JOIN user_preferences p
			   ON p.user_id = w.user_id AND p.pref_key = 'notify-every-change'
			 WHERE w.doc_namespace = $1 AND w.doc_key = $2
			   AND w.user_id <> $3
			   AND (w.notified_at IS NULL
			        OR LOWER(COALESCE(p.pref_value, '')) IN ('1', 'true', 'yes', 'on'))
			 ORDER BY w.user_id`
	}

	rows, err := r.db.Query(ctx, query, doc.Namespace, doc.Key, string(excludeUser))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list watchers", err)
	}
	defer rows.Close()

	var watchers []types.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan watcher row", err)
		}
		watchers = append(watchers, types.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating watcher rows", err)
	}

	return watchers, nil
}

// BulkAdvanceWatermark sets notified_at to ts for every given user's watch
// row on the document. Large sets are split into chunks updated
// concurrently. The update is idempotent: replaying it with the same
// timestamp leaves the rows unchanged.
func (r *WatchRepository) BulkAdvanceWatermark(ctx context.Context, userIDs []types.UserID, doc types.DocumentID, ts time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = string(id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(ids); start += watermarkChunkSize {
		end := start + watermarkChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		g.Go(func() error {
			_, err := r.db.Exec(gctx,
				`UPDATE watches SET notified_at = $1
				 WHERE doc_namespace = $2 AND doc_key = $3
				   AND user_id = ANY($4)`,
				ts, doc.Namespace, doc.Key, chunk,
			)
			if err != nil {
				return types.NewAppError(types.ErrCodeInternalDB, "failed to advance watermarks", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// ClearWatermark resets notified_at for one (user, document) pair. Called
// when the user visits the document, re-arming the next notification.
func (r *WatchRepository) ClearWatermark(ctx context.Context, userID types.UserID, doc types.DocumentID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE watches SET notified_at = NULL
		 WHERE doc_namespace = $1 AND doc_key = $2 AND user_id = $3`,
		doc.Namespace, doc.Key, string(userID),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear watermark", err)
	}
	return nil
}
