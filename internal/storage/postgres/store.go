package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/slug"
	"github.com/UkralStul/blog-service/internal/storage"
)

// commentLike - отметка "нравится". Составной первичный ключ
// гарантирует, что пользователь лайкает комментарий не больше одного раза.
type commentLike struct {
	CommentID  string    `gorm:"type:varchar(36);primaryKey"`
	IdentityID string    `gorm:"type:varchar(64);primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (commentLike) TableName() string { return "comment_likes" }

// Store реализует storage.Storage и storage.UserStore с использованием PostgreSQL.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, log *zap.Logger) (*Store, error) {
	return Open(postgres.Open(dsn), log)
}

// Open подключается через произвольный диалект gorm и выполняет миграцию схемы.
func Open(dialector gorm.Dialector, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.Post{}, &domain.Comment{}, &commentLike{}, &domain.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("sql store ready", zap.String("dialect", dialector.Name()))
	return &Store{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB отдает соединение gorm (для тестов и обслуживания).
func (s *Store) DB() *gorm.DB { return s.db }

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePost(post); err != nil {
		return nil, err
	}

	p := *post
	p.ID = uuid.NewString()
	p.Title = strings.TrimSpace(p.Title)
	p.Tags = storage.NormalizeTags(p.Tags)
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sl, err := resolveSlug(tx, p.Title, p.ID)
		if err != nil {
			return err
		}
		p.Slug = sl
		return tx.Create(&p).Error
	})
	if err != nil {
		return nil, translate(err, "create post")
	}
	return &p, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, patch domain.PostPatch) (*domain.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return nil, err
	}

	var post domain.Post
	// Используем транзакцию для атомарности операции чтения-записи
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			return err
		}
		if patch.Title != nil {
			post.Title = strings.TrimSpace(*patch.Title)
			sl, err := resolveSlug(tx, post.Title, post.ID)
			if err != nil {
				return err
			}
			post.Slug = sl
		}
		if patch.Content != nil {
			post.Content = *patch.Content
		}
		if patch.Excerpt != nil {
			post.Excerpt = *patch.Excerpt
		}
		if patch.Tags != nil {
			post.Tags = storage.NormalizeTags(*patch.Tags)
		}
		if patch.Published != nil {
			post.Published = *patch.Published
		}
		post.UpdatedAt = s.now()
		return tx.Save(&post).Error
	})
	if err != nil {
		return nil, translate(err, "update post "+id)
	}
	return &post, nil
}

// DeletePost удаляет пост без каскада: комментарии остаются в таблице,
// но все методы чтения их пропускают.
func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&domain.Post{}, "id = ?", id)
	if res.Error != nil {
		return false, translate(res.Error, "delete post "+id)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get post "+id)
	}
	return &post, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, sl string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "slug = ?", sl).Error; err != nil {
		return nil, translate(err, "get post by slug "+sl)
	}
	return &post, nil
}

func (s *Store) GetPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	posts := make([]*domain.Post, 0)
	err := s.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err, "get posts by author")
	}
	return posts, nil
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) (*domain.Page[*domain.Post], error) {
	args := filter.PaginationArgs.Normalize()

	query := s.db.WithContext(ctx).Model(&domain.Post{})
	if filter.Published != nil {
		query = query.Where("published = ?", *filter.Published)
	}
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		// теги хранятся JSON-массивом строк
		query = query.Where("tags LIKE ?", `%"`+tag+`"%`)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(excerpt) LIKE ? OR LOWER(content) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, translate(err, "count posts")
	}

	posts := make([]*domain.Post, 0)
	err := query.Order("created_at DESC").Offset(args.Offset()).Limit(args.Limit).Find(&posts).Error
	if err != nil {
		return nil, translate(err, "list posts")
	}
	return &domain.Page[*domain.Post]{Page: args.Page, Limit: args.Limit, Total: int(total), Items: posts}, nil
}

// resolveSlug подбирает свободный слаг внутри транзакции.
func resolveSlug(tx *gorm.DB, title, postID string) (string, error) {
	base := slug.ForTitle(title, postID)
	taken, err := slugTaken(tx, base, postID)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	candidate := slug.WithSuffix(base, postID)
	if taken, err = slugTaken(tx, candidate, postID); err != nil {
		return "", err
	}
	if taken {
		return "", fmt.Errorf("slug %s is taken: %w", candidate, domain.ErrConflict)
	}
	return candidate, nil
}

func slugTaken(tx *gorm.DB, sl, postID string) (bool, error) {
	var n int64
	err := tx.Model(&domain.Post{}).Where("slug = ? AND id <> ?", sl, postID).Count(&n).Error
	return n > 0, err
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	// Валидация
	if err := storage.ValidateComment(comment); err != nil {
		return nil, err
	}

	c := *comment
	c.ID = uuid.NewString()
	c.Approved = true
	c.LikedBy = []string{}
	c.Likes = 0
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt

	// Проверяем существование поста и родителя в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var postCount int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", c.PostID).Count(&postCount).Error; err != nil {
			return err
		}
		if postCount == 0 {
			return fmt.Errorf("post %s: %w", c.PostID, domain.ErrPostNotFound)
		}

		// Если есть родитель, проверяем его существование и принадлежность посту
		if c.ParentID != nil {
			var parent domain.Comment
			if err := tx.First(&parent, "id = ?", *c.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("parent %s: %w", *c.ParentID, domain.ErrParentNotFound)
				}
				return err
			}
			if parent.PostID != c.PostID {
				return fmt.Errorf("parent %s: %w", parent.ID, domain.ErrParentBelongsToDifferentPost)
			}
		}

		return tx.Create(&c).Error
	})
	if err != nil {
		return nil, translate(err, "create comment")
	}
	return &c, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	db := s.db.WithContext(ctx)
	c, err := liveComment(db, id)
	if err != nil {
		return nil, translate(err, "get comment "+id)
	}
	if err := loadLikes(db, []*domain.Comment{c}); err != nil {
		return nil, translate(err, "load likes")
	}
	return c, nil
}

func (s *Store) UpdateComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	if err := storage.ValidateCommentContent(content); err != nil {
		return nil, err
	}
	return s.updateComment(ctx, id, map[string]any{"content": content})
}

func (s *Store) SetApproved(ctx context.Context, id string, approved bool) (*domain.Comment, error) {
	return s.updateComment(ctx, id, map[string]any{"approved": approved})
}

func (s *Store) updateComment(ctx context.Context, id string, fields map[string]any) (*domain.Comment, error) {
	var c *domain.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = liveComment(tx, id); err != nil {
			return err
		}
		fields["updated_at"] = s.now()
		if err := tx.Model(&domain.Comment{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}
		if err := tx.First(c, "id = ?", id).Error; err != nil {
			return err
		}
		return loadLikes(tx, []*domain.Comment{c})
	})
	if err != nil {
		return nil, translate(err, "update comment "+id)
	}
	return c, nil
}

// DeleteComment удаляет комментарий вместе с поддеревом ответов и их лайками.
func (s *Store) DeleteComment(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Comment{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		doomed := []string{id}
		frontier := []string{id}
		for len(frontier) > 0 {
			var next []string
			if err := tx.Model(&domain.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &next).Error; err != nil {
				return err
			}
			doomed = append(doomed, next...)
			frontier = next
		}

		if err := tx.Where("comment_id IN ?", doomed).Delete(&commentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", doomed).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, translate(err, "delete comment "+id)
	}
	return removed, nil
}

// ToggleLike: удаление или вставка строки comment_likes в одной транзакции.
// Лайки разных пользователей - разные строки, поэтому параллельные вызовы не теряют обновлений.
func (s *Store) ToggleLike(ctx context.Context, commentID, identityID string) (bool, error) {
	if identityID == "" {
		return false, fmt.Errorf("toggle like: %w", domain.ErrUnauthorized)
	}

	liked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := liveComment(tx, commentID); err != nil {
			return err
		}

		res := tx.Where("comment_id = ? AND identity_id = ?", commentID, identityID).Delete(&commentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			like := &commentLike{CommentID: commentID, IdentityID: identityID, CreatedAt: s.now()}
			// Идемпотентно: повторная вставка той же пары не ошибка
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&domain.Comment{}).Where("id = ?", commentID).Update("updated_at", s.now()).Error
	})
	if err != nil {
		return false, translate(err, "toggle like")
	}
	return liked, nil
}

// === Pagination Methods ===

func (s *Store) ListCommentsByPost(ctx context.Context, postID string, filter storage.CommentFilter) (*domain.Page[*domain.Comment], error) {
	args := filter.PaginationArgs.Normalize()
	db := s.db.WithContext(ctx)

	if err := requirePost(db, postID); err != nil {
		return nil, translate(err, "list comments")
	}

	query := commentQuery(db, postID, filter.Approved)
	if filter.RootsOnly {
		query = query.Where("parent_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, translate(err, "count comments")
	}

	comments := make([]*domain.Comment, 0)
	if err := query.Order("created_at ASC").Offset(args.Offset()).Limit(args.Limit).Find(&comments).Error; err != nil {
		return nil, translate(err, "list comments")
	}
	if err := loadLikes(db, comments); err != nil {
		return nil, translate(err, "load likes")
	}
	return &domain.Page[*domain.Comment]{Page: args.Page, Limit: args.Limit, Total: int(total), Items: comments}, nil
}

func (s *Store) CountComments(ctx context.Context, postID string, approved *bool) (int, error) {
	db := s.db.WithContext(ctx)
	if err := requirePost(db, postID); err != nil {
		return 0, translate(err, "count comments")
	}

	var total int64
	if err := commentQuery(db, postID, approved).Count(&total).Error; err != nil {
		return 0, translate(err, "count comments")
	}
	return int(total), nil
}

func commentQuery(db *gorm.DB, postID string, approved *bool) *gorm.DB {
	query := db.Model(&domain.Comment{}).Where("post_id = ?", postID)
	if approved != nil {
		query = query.Where("approved = ?", *approved)
	}
	return query
}

// === Dataloader Method ===

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error) {
	result := make(map[string][]*domain.Comment, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	db := s.db.WithContext(ctx)
	var comments []*domain.Comment
	// Загружаем все дочерние комментарии для всех переданных parentID одним запросом
	err := db.
		Where("parent_id IN ? AND post_id IN (?)", parentIDs, db.Model(&domain.Post{}).Select("id")).
		Order("parent_id, created_at ASC"). // Сортируем для правильной группировки и порядка
		Find(&comments).Error
	if err != nil {
		return nil, translate(err, "get comments by parents")
	}
	if err := loadLikes(db, comments); err != nil {
		return nil, translate(err, "load likes")
	}

	// Группируем результаты в карту map[parentID][]*Comment
	for _, c := range comments {
		if c.ParentID != nil {
			result[*c.ParentID] = append(result[*c.ParentID], c)
		}
	}
	return result, nil
}

// liveComment находит комментарий, пост которого существует.
func liveComment(db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	err := db.
		Where("id = ? AND post_id IN (?)", id, db.Model(&domain.Post{}).Select("id")).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func requirePost(db *gorm.DB, postID string) error {
	var n int64
	if err := db.Model(&domain.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %s: %w", postID, domain.ErrPostNotFound)
	}
	return nil
}

// loadLikes заполняет LikedBy и Likes одним запросом.
func loadLikes(db *gorm.DB, comments []*domain.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Comment, len(comments))
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		c.LikedBy = []string{}
		c.Likes = 0
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	var likes []commentLike
	if err := db.Where("comment_id IN ?", ids).Order("created_at ASC, identity_id ASC").Find(&likes).Error; err != nil {
		return err
	}
	for _, l := range likes {
		c := byID[l.CommentID]
		c.LikedBy = append(c.LikedBy, l.IdentityID)
		c.Likes = len(c.LikedBy)
	}
	return nil
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	u := *user
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("user %s: %w", u.Email, domain.ErrEmailTaken)
		}
		return tx.Create(&u).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("user %s: %w", u.Email, domain.ErrEmailTaken)
	}
	if err != nil {
		return nil, translate(err, "create user")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, translate(err, "get user by email")
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get user "+id)
	}
	return &u, nil
}

// translate приводит ошибки gorm к ошибкам предметной области.
func translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
