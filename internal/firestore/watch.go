package firestore

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/service"
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// decode reads doc into a T and stamps the document id with setID.
func decode[T any](doc *firestore.DocumentSnapshot, setID func(*T, string)) (T, error) {
	var v T
	if err := doc.DataTo(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", doc.Ref.Path, err)
	}
	setID(&v, doc.Ref.ID)
	return v, nil
}

// watchQuery delivers every snapshot of q to h, decoded with setID and
// ordered by sortFn when it is non-nil. A listener error is delivered once
// and ends the watch.
func watchQuery[T any](logger *slog.Logger, q firestore.Query, setID func(*T, string), sortFn func([]T), h service.Handler[[]T]) listener.Token {
	ctx, cancel := context.WithCancel(context.Background())
	it := q.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn("snapshot listener failed", "error", err)
				h(nil, fmt.Errorf("listen: %w", err))
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				h(nil, fmt.Errorf("read snapshot: %w", err))
				continue
			}
			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				v, err := decode(doc, setID)
				if err != nil {
					logger.Warn("skipping undecodable document", "path", doc.Ref.Path, "error", err)
					continue
				}
				items = append(items, v)
			}
			if sortFn != nil {
				sortFn(items)
			}
			h(items, nil)
		}
	}()

	return listener.Func(cancel)
}

// watchDoc delivers every snapshot of ref to h. A missing document is
// delivered as nil.
func watchDoc[T any](logger *slog.Logger, ref *firestore.DocumentRef, setID func(*T, string), h service.Handler[*T]) listener.Token {
	ctx, cancel := context.WithCancel(context.Background())
	it := ref.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn("document listener failed", "path", ref.Path, "error", err)
				h(nil, fmt.Errorf("listen %s: %w", ref.Path, err))
				return
			}
			if !snap.Exists() {
				h(nil, nil)
				continue
			}
			v, err := decode(snap, setID)
			if err != nil {
				h(nil, err)
				continue
			}
			h(&v, nil)
		}
	}()

	return listener.Func(cancel)
}
