package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/UkralStul/blog-service/internal/blog"
	"github.com/UkralStul/blog-service/internal/dataloader"
	"github.com/UkralStul/blog-service/internal/identity"
)

// Options - настройки HTTP-слоя.
type Options struct {
	// RateLimit и RateBurst ограничивают запросы на запись с одного IP.
	RateLimit rate.Limit
	RateBurst int
}

// Server - зависимости обработчиков REST API.
type Server struct {
	svc      *blog.Service
	auth     identity.Authenticator
	observer *CommentObserver
	log      *zap.Logger
	validate *validator.Validate
	limiter  *RateLimiter
}

func NewRouter(svc *blog.Service, auth identity.Authenticator, observer *CommentObserver, log *zap.Logger, opts Options) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if observer == nil {
		observer = NewCommentObserver()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Inf
	}
	s := &Server{
		svc:      svc,
		auth:     auth,
		observer: observer,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  NewRateLimiter(opts.RateLimit, opts.RateBurst),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(s.authenticate)
	router.Use(dataloader.Middleware(svc.Store()))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/auth", func(r chi.Router) {
		r.With(s.limiter.Middleware).Post("/register", s.register)
		r.With(s.limiter.Middleware).Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Get("/me", s.me)
	})

	router.Route("/posts", func(r chi.Router) {
		r.Get("/", s.listPosts)
		r.With(s.limiter.Middleware).Post("/", s.createPost)
		r.Get("/slug/{slug}", s.getPostBySlug)
		r.Get("/{id}", s.getPost)
		r.Get("/{id}/thread", s.getThread)
		r.With(s.limiter.Middleware).Put("/{id}", s.updatePost)
		r.With(s.limiter.Middleware).Delete("/{id}", s.deletePost)
	})

	router.Route("/comments", func(r chi.Router) {
		r.With(s.limiter.Middleware).Post("/", s.createComment)
		r.Get("/post/{postId}", s.listComments)
		r.Get("/post/{postId}/count", s.countComments)
		r.Get("/{id}", s.getComment)
		r.Get("/{id}/replies", s.getReplies)
		r.With(s.limiter.Middleware).Put("/{id}", s.updateComment)
		r.With(s.limiter.Middleware).Delete("/{id}", s.deleteComment)
		r.With(s.limiter.Middleware).Post("/{id}/like", s.toggleLike)
		r.With(s.limiter.Middleware).Put("/{id}/approval", s.setApproval)
	})

	router.Get("/ws/posts/{postId}/comments", s.commentStream)

	return router
}
