package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete deletes cache keys, logging instead of failing the caller's
// write when the cache is unreachable.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateQuizCache drops the cached quiz definition after a write.
func InvalidateQuizCache(ctx context.Context, cm *CacheManager, publicID string) {
	SafeDelete(ctx, cm.Quiz, fmt.Sprintf("public:%s", publicID))
}

// InvalidateBucketCache invalidates bank caches for a subcategory after an append
func InvalidateBucketCache(ctx context.Context, cm *CacheManager, bucketID uint, subcategory string) {
	SafeDelete(ctx, cm.Bank,
		fmt.Sprintf("id:%d", bucketID),
		fmt.Sprintf("subcategory:%s", subcategory))
}
