// Package wire описывает JSON-представления REST API блога.
// Ссылки на автора, пост и родительский комментарий приходят либо голым id,
// либо вложенным объектом; Ref приводит оба варианта к одному виду.
package wire

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/UkralStul/blog-service/internal/domain"
)

// Ref - ссылка на сущность: строка "id" или объект {"_id": ...}.
type Ref struct {
	ID    string
	Name  string
	Email string
	Title string
	Slug  string
}

type refObject struct {
	MongoID string `json:"_id,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Title   string `json:"title,omitempty"`
	Slug    string `json:"slug,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}

	var obj refObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	id := obj.MongoID
	if id == "" {
		id = obj.ID
	}
	*r = Ref{ID: id, Name: obj.Name, Email: obj.Email, Title: obj.Title, Slug: obj.Slug}
	return nil
}

// MarshalJSON пишет голый id, если кроме него ничего не известно.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Name == "" && r.Email == "" && r.Title == "" && r.Slug == "" {
		return json.Marshal(r.ID)
	}
	return json.Marshal(refObject{
		MongoID: r.ID,
		Name:    r.Name,
		Email:   r.Email,
		Title:   r.Title,
		Slug:    r.Slug,
	})
}

func (r Ref) Author() domain.AuthorRef {
	name := r.Name
	if name == "" {
		name = r.Email
	}
	return domain.AuthorRef{ID: r.ID, Name: name}
}

func RefFromAuthor(a domain.AuthorRef) Ref {
	return Ref{ID: a.ID, Name: a.Name}
}

// === Posts ===

type Post struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Tags        []string  `json:"tags"`
	Author      Ref       `json:"author"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func FromPost(p *domain.Post) Post {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Post{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Content:   p.Content,
		Excerpt:   p.Excerpt,
		Tags:      tags,
		Author:    RefFromAuthor(p.Author),
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func FromPosts(posts []*domain.Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, FromPost(p))
	}
	return out
}

func (p Post) Domain() *domain.Post {
	return &domain.Post{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Content:   p.Content,
		Excerpt:   p.Excerpt,
		Tags:      p.Tags,
		Author:    p.Author.Author(),
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type CreatePostRequest struct {
	Title     string   `json:"title" validate:"required,max=300"`
	Content   string   `json:"content"`
	Excerpt   string   `json:"excerpt" validate:"max=1000"`
	Tags      []string `json:"tags" validate:"max=20,dive,max=50"`
	Published bool     `json:"published"`
}

type UpdatePostRequest struct {
	Title     *string   `json:"title,omitempty" validate:"omitempty,max=300"`
	Content   *string   `json:"content,omitempty"`
	Excerpt   *string   `json:"excerpt,omitempty" validate:"omitempty,max=1000"`
	Tags      *[]string `json:"tags,omitempty"`
	Published *bool     `json:"published,omitempty"`
}

func (r UpdatePostRequest) Patch() domain.PostPatch {
	return domain.PostPatch{
		Title:     r.Title,
		Content:   r.Content,
		Excerpt:   r.Excerpt,
		Tags:      r.Tags,
		Published: r.Published,
	}
}

func PatchRequest(p domain.PostPatch) UpdatePostRequest {
	return UpdatePostRequest{
		Title:     p.Title,
		Content:   p.Content,
		Excerpt:   p.Excerpt,
		Tags:      p.Tags,
		Published: p.Published,
	}
}

// === Comments ===

type Comment struct {
	ID            string    `json:"_id"`
	Content       string    `json:"content"`
	Post          Ref       `json:"post"`
	Author        Ref       `json:"author"`
	ParentComment *Ref      `json:"parentComment,omitempty"`
	Approved      bool      `json:"approved"`
	Likes         int       `json:"likes"`
	LikedBy       []string  `json:"likedBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func FromComment(c *domain.Comment) Comment {
	out := Comment{
		ID:        c.ID,
		Content:   c.Content,
		Post:      Ref{ID: c.PostID},
		Author:    RefFromAuthor(c.Author),
		Approved:  c.Approved,
		Likes:     len(c.LikedBy),
		LikedBy:   c.LikedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if out.LikedBy == nil {
		out.LikedBy = []string{}
	}
	if c.ParentID != nil {
		out.ParentComment = &Ref{ID: *c.ParentID}
	}
	return out
}

func FromComments(comments []*domain.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, FromComment(c))
	}
	return out
}

func (c Comment) Domain() *domain.Comment {
	out := &domain.Comment{
		ID:        c.ID,
		PostID:    c.Post.ID,
		Author:    c.Author.Author(),
		Content:   c.Content,
		Approved:  c.Approved,
		LikedBy:   c.LikedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if out.LikedBy == nil {
		out.LikedBy = []string{}
	}
	out.Likes = len(out.LikedBy)
	if c.ParentComment != nil && c.ParentComment.ID != "" {
		parent := c.ParentComment.ID
		out.ParentID = &parent
	}
	return out
}

// ThreadComment - комментарий со всеми ответами.
type ThreadComment struct {
	Comment
	Replies []ThreadComment `json:"replies"`
}

type Thread struct {
	Post     Post            `json:"post"`
	Comments []ThreadComment `json:"comments"`
}

type CreateCommentRequest struct {
	Post          string  `json:"post" validate:"required"`
	Content       string  `json:"content" validate:"required,max=2000"`
	ParentComment *string `json:"parentComment,omitempty"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type ApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type LikeResponse struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// === Auth ===

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func FromIdentity(id domain.Identity) User {
	return User{ID: id.ID, Name: id.Name, Email: id.Email}
}

type LoginResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      domain.Identity `json:"user"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
