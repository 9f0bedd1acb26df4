package domain

import "time"

// AuthorRef - каноническая ссылка на автора поста или комментария.
// Внешние представления (голый id или вложенный объект) приводятся к ней на границе.
type AuthorRef struct {
	ID   string `json:"id" gorm:"type:varchar(64);not null;index"`
	Name string `json:"name" gorm:"type:varchar(255)"`
}

// Post представляет пост в блоге.
type Post struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	Slug      string    `json:"slug" gorm:"type:varchar(320);not null;uniqueIndex"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Excerpt   string    `json:"excerpt" gorm:"type:text"`
	Tags      []string  `json:"tags,omitempty" gorm:"type:text;serializer:json"`
	Author    AuthorRef `json:"author" gorm:"embedded;embeddedPrefix:author_"`
	Published bool      `json:"published" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// HasTag сообщает, помечен ли пост тегом tag.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PostPatch - частичное обновление поста. nil означает "не менять".
// Author и CreatedAt через обновление не меняются никогда.
type PostPatch struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Excerpt   *string   `json:"excerpt,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Published *bool     `json:"published,omitempty"`
}

// Comment представляет комментарий к посту.
type Comment struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	PostID    string    `json:"postId" gorm:"type:varchar(36);not null;index"`
	ParentID  *string   `json:"parentId,omitempty" gorm:"type:varchar(36);index"`
	Author    AuthorRef `json:"author" gorm:"embedded;embeddedPrefix:author_"`
	Content   string    `json:"content" gorm:"type:varchar(2000);not null"`
	Approved  bool      `json:"approved" gorm:"not null;default:true"`
	Likes     int       `json:"likes" gorm:"-"`
	LikedBy   []string  `json:"likedBy" gorm:"-"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// MaxCommentLength - максимальная длина текста комментария.
const MaxCommentLength = 2000

// LikedByIdentity сообщает, лайкнул ли комментарий данный пользователь.
func (c *Comment) LikedByIdentity(identityID string) bool {
	for _, id := range c.LikedBy {
		if id == identityID {
			return true
		}
	}
	return false
}

// Identity - пользователь, от имени которого выполняется операция.
// Нулевое значение означает анонима.
type Identity struct {
	ID    string `json:"userId"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Anonymous - неаутентифицированный вызывающий.
var Anonymous = Identity{}

// IsAnonymous возвращает true, если личность не определена.
func (i Identity) IsAnonymous() bool {
	return i.ID == ""
}

// Ref возвращает ссылку на автора для атрибуции постов и комментариев.
func (i Identity) Ref() AuthorRef {
	name := i.Name
	if name == "" {
		name = i.Email
	}
	return AuthorRef{ID: i.ID, Name: name}
}

// User - учётная запись для локального сервиса аутентификации.
type User struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name         string    `json:"name" gorm:"type:varchar(255);not null"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"not null"`
}

// Identity возвращает публичное представление пользователя.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Page - страница результатов. Page начинается с 1.
type Page[T any] struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Items []T `json:"items"`
}
