package listings

import (
	"context"

	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/pkg/queue"
	"github.com/greenway-eco/backend/pkg/storage"
)

// CleanupEnqueuer queues image removal jobs.
type CleanupEnqueuer interface {
	EnqueueImageCleanup(ctx context.Context, payload queue.ImageCleanupPayload) error
}

// QueueCleaner hands the stored images of deleted listings to the worker.
// Images hosted outside the bucket are left alone.
type QueueCleaner struct {
	queue  CleanupEnqueuer
	bucket string
	region string
	logger *zap.Logger
}

// NewQueueCleaner creates a cleaner for images in bucket.
func NewQueueCleaner(q CleanupEnqueuer, bucket, region string, logger *zap.Logger) *QueueCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueCleaner{queue: q, bucket: bucket, region: region, logger: logger}
}

// CleanupImages enqueues removal of the listing's bucket objects stored under
// its owner's folder. Failures are logged; the listing is already gone.
func (qc *QueueCleaner) CleanupImages(ctx context.Context, l models.Listing) {
	var keys []string
	for _, u := range l.Images {
		key, ok := storage.KeyFromURL(qc.bucket, qc.region, u)
		if !ok {
			continue
		}
		if !storage.OwnsListingImage(l.OwnerID, key) {
			qc.logger.Warn("skipping image owned by another account",
				zap.String("listing_id", l.ID),
				zap.String("owner_id", l.OwnerID),
				zap.String("key", key),
			)
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}
	if err := qc.queue.EnqueueImageCleanup(ctx, queue.ImageCleanupPayload{ListingID: l.ID, Keys: keys}); err != nil {
		qc.logger.Error("enqueue image cleanup failed", zap.String("listing_id", l.ID), zap.Error(err))
	}
}
