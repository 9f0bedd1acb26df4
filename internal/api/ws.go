package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/wire"
)

const (
	keepAlivePingInterval = 10 * time.Second
	writeWait             = 5 * time.Second
)

// CommentObserver хранит каналы для подписчиков на комментарии.
type CommentObserver struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs map[string]map[string]chan *domain.Comment
}

// NewCommentObserver - конструктор для нашего наблюдателя.
func NewCommentObserver() *CommentObserver {
	return &CommentObserver{
		subs: make(map[string]map[string]chan *domain.Comment),
	}
}

// Subscribe регистрирует подписчика на новые комментарии поста.
// Возвращенная функция отписывает его.
func (o *CommentObserver) Subscribe(postID string) (<-chan *domain.Comment, func()) {
	ch := make(chan *domain.Comment, 16)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[postID] == nil {
		o.subs[postID] = make(map[string]chan *domain.Comment)
	}
	o.subs[postID][subID] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			if postSubs, ok := o.subs[postID]; ok {
				delete(postSubs, subID)
				if len(postSubs) == 0 {
					delete(o.subs, postID)
				}
			}
			o.mu.Unlock()
		})
	}
}

// Publish рассылает комментарий подписчикам его поста, не блокируясь
// на медленных клиентах.
func (o *CommentObserver) Publish(c *domain.Comment) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.subs[c.PostID] {
		select {
		case ch <- c:
		default:
			// Клиент не успевает читать, пропускаем
		}
	}
}

// Subscribers - число подписчиков поста.
func (o *CommentObserver) Subscribers(postID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs[postID])
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// commentStream отправляет новые комментарии поста по websocket.
func (s *Server) commentStream(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	// Проверяем, существует ли пост, прежде чем подписываться
	if _, err := s.svc.GetPost(r.Context(), postID); err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	comments, unsubscribe := s.observer.Subscribe(postID)
	defer unsubscribe()

	// Читаем, чтобы обрабатывать pong и заметить отключение клиента
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(2 * keepAlivePingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * keepAlivePingInterval))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(keepAlivePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case c := <-comments:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wire.FromComment(c)); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
