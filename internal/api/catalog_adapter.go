package api

import (
	"context"
	"log/slog"

	"github.com/rwfshr/markup/internal/cache"
	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/services"
)

// catalog serves batches and markup types through the cache. Both change
// rarely and are read on every assessment.
type catalog struct {
	upstream Upstream
	cache    cache.Cache
}

func (c *catalog) markupType(ctx context.Context, cred client.Credentials, id int64) (services.MarkupType, error) {
	return cache.Fetch(ctx, c.cache, cache.MarkupTypeKey(id), func(ctx context.Context) (services.MarkupType, error) {
		return c.upstream.MarkupType(ctx, cred, id)
	})
}

func (c *catalog) batch(ctx context.Context, cred client.Credentials, id int64) (client.Batch, error) {
	return cache.Fetch(ctx, c.cache, cache.BatchKey(id), func(ctx context.Context) (client.Batch, error) {
		return c.upstream.Batch(ctx, cred, id)
	})
}

// batchType resolves how a markup type's records are displayed. A schema
// without a batch renders as a single record.
func (c *catalog) batchType(ctx context.Context, cred client.Credentials, mt services.MarkupType) (services.BatchType, error) {
	if mt.BatchID == nil || *mt.BatchID == 0 {
		return services.BatchSingle, nil
	}
	b, err := c.batch(ctx, cred, *mt.BatchID)
	if err != nil {
		return 0, err
	}
	return b.TypeID, nil
}

func (c *catalog) forgetMarkupType(ctx context.Context, id int64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, cache.MarkupTypeKey(id)); err != nil {
		slog.Warn("cache invalidation failed", slog.String("op", "catalog.forget"), slog.Int64("markup_type_id", id), slog.String("error", err.Error()))
	}
}
