package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/kv"
	"github.com/UkralStul/blog-service/internal/slug"
	"github.com/UkralStul/blog-service/internal/storage"
)

// SnapshotKey - ключ снимка в kv-хранилище. Все коллекции пишутся одним значением,
// чтобы частично записанный снимок был невозможен.
const SnapshotKey = "blog_snapshot"

const persistTimeout = 5 * time.Second

// Store реализует storage.Storage и storage.UserStore в памяти.
// Если задан kv.Backend, после каждой записи снимок сохраняется в него целиком;
// если сохранить не удалось, изменение откатывается.
type Store struct {
	mu               sync.RWMutex
	posts            map[string]*domain.Post
	postOrder        []string          // id постов в порядке создания
	slugs            map[string]string // slug -> postID
	comments         map[string]*domain.Comment
	commentsByPost   map[string][]string // map[postID][]commentID (все комментарии поста)
	commentsByParent map[string][]string // map[parentID][]commentID
	users            map[string]*domain.User
	usersByEmail     map[string]string

	backend kv.Backend
	log     *zap.Logger
	now     func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithBackend включает сохранение коллекций в kv-хранилище.
func WithBackend(b kv.Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithLogger задает логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New создает новый экземпляр in-memory хранилища.
func New(opts ...Option) *Store {
	s := &Store{
		posts:            make(map[string]*domain.Post),
		slugs:            make(map[string]string),
		comments:         make(map[string]*domain.Comment),
		commentsByPost:   make(map[string][]string),
		commentsByParent: make(map[string][]string),
		users:            make(map[string]*domain.User),
		usersByEmail:     make(map[string]string),
		log:              zap.NewNop(),
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := storage.ValidatePost(post); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	p := clonePost(post)
	p.ID = uuid.NewString()
	p.Title = strings.TrimSpace(p.Title)
	p.Tags = storage.NormalizeTags(p.Tags)

	sl, err := s.resolveSlug(p.Title, p.ID)
	if err != nil {
		return nil, err
	}
	p.Slug = sl
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt

	s.posts[p.ID] = p
	s.slugs[p.Slug] = p.ID
	s.postOrder = append(s.postOrder, p.ID)

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	return clonePost(p), nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, patch domain.PostPatch) (*domain.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", id, domain.ErrNotFound)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		sl, err := s.resolveSlug(title, post.ID)
		if err != nil {
			return nil, err
		}
		delete(s.slugs, post.Slug)
		post.Title = title
		post.Slug = sl
		s.slugs[sl] = post.ID
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

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	return clonePost(post), nil
}

// DeletePost удаляет пост. Комментарии поста остаются в хранилище,
// но перестают быть видны через любые методы чтения.
func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	post, ok := s.posts[id]
	if !ok {
		return false, nil
	}
	delete(s.posts, id)
	delete(s.slugs, post.Slug)
	s.postOrder = removeID(s.postOrder, id)

	if err := s.commit(ctx, undo); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", id, domain.ErrNotFound)
	}
	return clonePost(post), nil
}

func (s *Store) GetPostBySlug(ctx context.Context, sl string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[sl]
	if !ok {
		return nil, fmt.Errorf("post with slug %s: %w", sl, domain.ErrNotFound)
	}
	return clonePost(s.posts[id]), nil
}

func (s *Store) GetPostsByAuthor(ctx context.Context, authorID string) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Post, 0)
	for _, p := range s.newestFirst() {
		if p.Author.ID == authorID {
			out = append(out, clonePost(p))
		}
	}
	return out, nil
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) (*domain.Page[*domain.Post], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := filter.PaginationArgs.Normalize()
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	tag := strings.ToLower(strings.TrimSpace(filter.Tag))

	matched := make([]*domain.Post, 0)
	for _, p := range s.newestFirst() {
		if filter.Published != nil && p.Published != *filter.Published {
			continue
		}
		if filter.AuthorID != "" && p.Author.ID != filter.AuthorID {
			continue
		}
		if tag != "" && !p.HasTag(tag) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		matched = append(matched, p)
	}

	start, end := args.Window(len(matched))
	items := make([]*domain.Post, 0, end-start)
	for _, p := range matched[start:end] {
		items = append(items, clonePost(p))
	}
	return &domain.Page[*domain.Post]{Page: args.Page, Limit: args.Limit, Total: len(matched), Items: items}, nil
}

// resolveSlug подбирает свободный слаг для поста. Вызывается под блокировкой.
func (s *Store) resolveSlug(title, postID string) (string, error) {
	base := slug.ForTitle(title, postID)
	if owner, ok := s.slugs[base]; !ok || owner == postID {
		return base, nil
	}
	candidate := slug.WithSuffix(base, postID)
	if owner, ok := s.slugs[candidate]; ok && owner != postID {
		return "", fmt.Errorf("slug %s is taken: %w", candidate, domain.ErrConflict)
	}
	return candidate, nil
}

// newestFirst возвращает посты от новых к старым. Вызывается под блокировкой.
func (s *Store) newestFirst() []*domain.Post {
	out := make([]*domain.Post, 0, len(s.postOrder))
	for i := len(s.postOrder) - 1; i >= 0; i-- {
		out = append(out, s.posts[s.postOrder[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matchesQuery(p *domain.Post, query string) bool {
	return strings.Contains(strings.ToLower(p.Title), query) ||
		strings.Contains(strings.ToLower(p.Excerpt), query) ||
		strings.Contains(strings.ToLower(p.Content), query)
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := storage.ValidateComment(comment); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	// Проверка поста
	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, fmt.Errorf("post %s: %w", comment.PostID, domain.ErrPostNotFound)
	}

	// Проверка родительского комментария
	if comment.ParentID != nil {
		parent, ok := s.comments[*comment.ParentID]
		if !ok {
			return nil, fmt.Errorf("parent %s: %w", *comment.ParentID, domain.ErrParentNotFound)
		}
		if parent.PostID != comment.PostID {
			return nil, fmt.Errorf("parent %s: %w", parent.ID, domain.ErrParentBelongsToDifferentPost)
		}
	}

	c := cloneComment(comment)
	c.ID = uuid.NewString()
	c.Approved = true
	c.LikedBy = []string{}
	c.Likes = 0
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.comments[c.ID] = c

	// Обновление индексов для иерархии
	s.commentsByPost[c.PostID] = append(s.commentsByPost[c.PostID], c.ID)
	if c.ParentID != nil {
		s.commentsByParent[*c.ParentID] = append(s.commentsByParent[*c.ParentID], c.ID)
	}

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	return cloneComment(c), nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.liveComment(id)
	if err != nil {
		return nil, err
	}
	return cloneComment(c), nil
}

func (s *Store) UpdateComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	if err := storage.ValidateCommentContent(content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	c, err := s.liveComment(id)
	if err != nil {
		return nil, err
	}
	c.Content = content
	c.UpdatedAt = s.now()

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	return cloneComment(c), nil
}

func (s *Store) SetApproved(ctx context.Context, id string, approved bool) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	c, err := s.liveComment(id)
	if err != nil {
		return nil, err
	}
	c.Approved = approved
	c.UpdatedAt = s.now()

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	return cloneComment(c), nil
}

// DeleteComment удаляет комментарий и всех его потомков.
func (s *Store) DeleteComment(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	root, ok := s.comments[id]
	if !ok {
		return false, nil
	}

	// Собираем поддерево обходом в ширину
	doomed := []string{root.ID}
	for i := 0; i < len(doomed); i++ {
		doomed = append(doomed, s.commentsByParent[doomed[i]]...)
	}

	for _, cid := range doomed {
		c := s.comments[cid]
		delete(s.comments, cid)
		delete(s.commentsByParent, cid)
		s.commentsByPost[c.PostID] = removeID(s.commentsByPost[c.PostID], cid)
		if len(s.commentsByPost[c.PostID]) == 0 {
			delete(s.commentsByPost, c.PostID)
		}
	}
	if root.ParentID != nil {
		siblings := removeID(s.commentsByParent[*root.ParentID], root.ID)
		if len(siblings) == 0 {
			delete(s.commentsByParent, *root.ParentID)
		} else {
			s.commentsByParent[*root.ParentID] = siblings
		}
	}

	if err := s.commit(ctx, undo); err != nil {
		return false, err
	}
	return true, nil
}

// ToggleLike выполняется целиком под блокировкой записи,
// поэтому параллельные лайки разных пользователей не теряются.
func (s *Store) ToggleLike(ctx context.Context, commentID, identityID string) (bool, error) {
	if identityID == "" {
		return false, fmt.Errorf("toggle like: %w", domain.ErrUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	c, err := s.liveComment(commentID)
	if err != nil {
		return false, err
	}

	liked := !c.LikedByIdentity(identityID)
	if liked {
		c.LikedBy = append(c.LikedBy, identityID)
	} else {
		c.LikedBy = removeID(c.LikedBy, identityID)
	}
	c.Likes = len(c.LikedBy)
	c.UpdatedAt = s.now()

	if err := s.commit(ctx, undo); err != nil {
		return false, err
	}
	return liked, nil
}

// liveComment ищет комментарий, пост которого ещё существует. Вызывается под блокировкой.
func (s *Store) liveComment(id string) (*domain.Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	if _, ok := s.posts[c.PostID]; !ok {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// === Pagination Methods ===

func (s *Store) ListCommentsByPost(ctx context.Context, postID string, filter storage.CommentFilter) (*domain.Page[*domain.Comment], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrPostNotFound)
	}

	args := filter.PaginationArgs.Normalize()
	matched := s.filterComments(postID, filter.Approved, filter.RootsOnly)

	start, end := args.Window(len(matched))
	items := make([]*domain.Comment, 0, end-start)
	for _, c := range matched[start:end] {
		items = append(items, cloneComment(c))
	}
	return &domain.Page[*domain.Comment]{Page: args.Page, Limit: args.Limit, Total: len(matched), Items: items}, nil
}

func (s *Store) CountComments(ctx context.Context, postID string, approved *bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return 0, fmt.Errorf("post %s: %w", postID, domain.ErrPostNotFound)
	}
	return len(s.filterComments(postID, approved, false)), nil
}

// filterComments - вспомогательная функция для выборки комментариев поста
func (s *Store) filterComments(postID string, approved *bool, rootsOnly bool) []*domain.Comment {
	ids := s.commentsByPost[postID]
	out := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		c, ok := s.comments[id]
		if !ok {
			continue
		}
		if approved != nil && c.Approved != *approved {
			continue
		}
		if rootsOnly && c.ParentID != nil {
			continue
		}
		out = append(out, c)
	}
	// Сортируем по времени создания, чтобы пагинация была консистентной
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// === Dataloader Methods ===

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Comment, len(parentIDs))

	for _, pID := range parentIDs {
		childIDs := s.commentsByParent[pID]
		children := make([]*domain.Comment, 0, len(childIDs))
		for _, cID := range childIDs {
			if c, err := s.liveComment(cID); err == nil {
				children = append(children, cloneComment(c))
			}
		}
		// Важно: Dataloader'у нужны отсортированные данные для консистентности
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		})
		results[pID] = children
	}

	return results, nil
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo := s.checkpoint()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, ok := s.usersByEmail[email]; ok {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrEmailTaken)
	}

	u := *user
	u.ID = uuid.NewString()
	u.Email = email
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = &u
	s.usersByEmail[email] = u.ID

	if err := s.commit(ctx, undo); err != nil {
		return nil, err
	}
	out := u
	return &out, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	out := *u
	return &out, nil
}

// === Persistence ===

// userRecord сохраняет хеш пароля, который domain.User не сериализует.
type userRecord struct {
	domain.User
	PasswordHash string `json:"passwordHash"`
}

// snapshot - содержимое хранилища в kv.
type snapshot struct {
	Posts    []*domain.Post    `json:"posts"`
	Comments []*domain.Comment `json:"comments"`
	Users    []userRecord      `json:"users"`
}

// Load читает снимок из kv-хранилища и перестраивает индексы.
// Без backend ничего не делает.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	var snap snapshot
	b, err := s.backend.Get(ctx, SnapshotKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("load %s: %w", SnapshotKey, err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", SnapshotKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range snap.Posts {
		s.posts[p.ID] = p
		s.slugs[p.Slug] = p.ID
		s.postOrder = append(s.postOrder, p.ID)
	}
	for _, c := range snap.Comments {
		if c.LikedBy == nil {
			c.LikedBy = []string{}
		}
		c.Likes = len(c.LikedBy)
		s.comments[c.ID] = c
		s.commentsByPost[c.PostID] = append(s.commentsByPost[c.PostID], c.ID)
		if c.ParentID != nil {
			s.commentsByParent[*c.ParentID] = append(s.commentsByParent[*c.ParentID], c.ID)
		}
	}
	for _, r := range snap.Users {
		u := r.User
		u.PasswordHash = r.PasswordHash
		s.users[u.ID] = &u
		s.usersByEmail[u.Email] = u.ID
	}

	s.log.Info("local store loaded",
		zap.Int("posts", len(snap.Posts)),
		zap.Int("comments", len(snap.Comments)),
		zap.Int("users", len(snap.Users)),
	)
	return nil
}

// checkpoint копирует состояние и возвращает функцию, которая его восстанавливает.
// Вызывается под блокировкой записи до любых изменений. Без backend откатывать нечего.
func (s *Store) checkpoint() func() {
	if s.backend == nil {
		return func() {}
	}

	posts := make(map[string]*domain.Post, len(s.posts))
	for id, p := range s.posts {
		posts[id] = clonePost(p)
	}
	comments := make(map[string]*domain.Comment, len(s.comments))
	for id, c := range s.comments {
		comments[id] = cloneComment(c)
	}
	users := make(map[string]*domain.User, len(s.users))
	for id, u := range s.users {
		cp := *u
		users[id] = &cp
	}
	postOrder := append([]string(nil), s.postOrder...)
	slugs := maps.Clone(s.slugs)
	usersByEmail := maps.Clone(s.usersByEmail)
	// removeID переиспользует массивы срезов, поэтому индексы копируются целиком
	commentsByPost := cloneIndex(s.commentsByPost)
	commentsByParent := cloneIndex(s.commentsByParent)

	return func() {
		s.posts = posts
		s.postOrder = postOrder
		s.slugs = slugs
		s.comments = comments
		s.commentsByPost = commentsByPost
		s.commentsByParent = commentsByParent
		s.users = users
		s.usersByEmail = usersByEmail
	}
}

// commit сохраняет снимок; при ошибке откатывает изменение через undo.
func (s *Store) commit(ctx context.Context, undo func()) error {
	if err := s.persist(ctx); err != nil {
		undo()
		return err
	}
	return nil
}

// persist сохраняет снимок одним значением. Вызывается под блокировкой записи.
// Отмена запроса не прерывает запись: изменение уже применено и должно либо
// сохраниться, либо откатиться целиком.
func (s *Store) persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	snap := snapshot{
		Posts:    make([]*domain.Post, 0, len(s.postOrder)),
		Comments: make([]*domain.Comment, 0, len(s.comments)),
		Users:    make([]userRecord, 0, len(s.users)),
	}
	for _, id := range s.postOrder {
		snap.Posts = append(snap.Posts, s.posts[id])
	}

	postIDs := make([]string, 0, len(s.commentsByPost))
	for id := range s.commentsByPost {
		postIDs = append(postIDs, id)
	}
	sort.Strings(postIDs)
	for _, pid := range postIDs {
		for _, cid := range s.commentsByPost[pid] {
			snap.Comments = append(snap.Comments, s.comments[cid])
		}
	}

	for _, u := range s.users {
		snap.Users = append(snap.Users, userRecord{User: *u, PasswordHash: u.PasswordHash})
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })

	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", SnapshotKey, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, SnapshotKey, b, 0); err != nil {
		s.log.Warn("failed to persist snapshot, change rolled back", zap.Error(err))
		return fmt.Errorf("persist %s: %w", SnapshotKey, err)
	}
	return nil
}

// === helpers ===

func clonePost(p *domain.Post) *domain.Post {
	out := *p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	return &out
}

func cloneComment(c *domain.Comment) *domain.Comment {
	out := *c
	if c.ParentID != nil {
		pid := *c.ParentID
		out.ParentID = &pid
	}
	out.LikedBy = append([]string{}, c.LikedBy...)
	out.Likes = len(out.LikedBy)
	return &out
}

func cloneIndex(idx map[string][]string) map[string][]string {
	out := make(map[string][]string, len(idx))
	for k, ids := range idx {
		out[k] = append([]string(nil), ids...)
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
