package dataloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	RepliesByCommentID *dataloader.Loader
}

// New создает лоадеры поверх хранилища. Лоадеры живут в пределах одного запроса.
func New(store storage.CommentStore) *Loaders {
	// Создаем батч-функцию для лоадера
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// Преобразуем ключи в []string
		parentIDs := keys.Keys()

		// Вызываем метод хранилища, который делает ОДИН запрос к БД
		repliesMap, err := store.GetCommentsByParentIDs(ctx, parentIDs)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			// В случае ошибки, возвращаем ее для всех ключей
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Формируем результат в том же порядке, что и ключи
		for i, parentID := range parentIDs {
			results[i] = &dataloader.Result{Data: repliesMap[parentID]}
		}
		return results
	}

	return &Loaders{
		RepliesByCommentID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.CommentStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), key, New(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// For извлекает лоадеры из контекста.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(key).(*Loaders)
	return l
}

// Replies загружает ответы для набора комментариев одним батчем.
// Результат - в порядке parentIDs.
func (l *Loaders) Replies(ctx context.Context, parentIDs []string) ([][]*domain.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	data, errs := l.RepliesByCommentID.LoadMany(ctx, dataloader.NewKeysFromStrings(parentIDs))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([][]*domain.Comment, len(data))
	for i, d := range data {
		if d == nil {
			continue
		}
		replies, ok := d.([]*domain.Comment)
		if !ok {
			return nil, fmt.Errorf("unexpected loader value %T", d)
		}
		out[i] = replies
	}
	return out, nil
}
