package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/UkralStul/blog-service/internal/domain"
)

// Общие проверки, которые выполняют все реализации хранилищ до любых изменений.

// ValidatePost проверяет обязательные поля нового поста.
func ValidatePost(p *domain.Post) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("post title cannot be empty: %w", domain.ErrInvalidInput)
	}
	if p.Author.ID == "" {
		return fmt.Errorf("post author is required: %w", domain.ErrUnauthorized)
	}
	return nil
}

// ValidatePatch проверяет частичное обновление поста.
func ValidatePatch(patch domain.PostPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("post title cannot be empty: %w", domain.ErrInvalidInput)
	}
	return nil
}

// ValidateCommentContent проверяет текст комментария.
func ValidateCommentContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("comment content cannot be empty: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > domain.MaxCommentLength {
		return fmt.Errorf("comment content is too long: %w", domain.ErrInvalidInput)
	}
	return nil
}

// ValidateComment проверяет новый комментарий без обращения к хранилищу.
func ValidateComment(c *domain.Comment) error {
	if c.Author.ID == "" {
		return fmt.Errorf("comment author is required: %w", domain.ErrUnauthorized)
	}
	if c.PostID == "" {
		return fmt.Errorf("comment post is required: %w", domain.ErrInvalidInput)
	}
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}
	return ValidateCommentContent(c.Content)
}

// NormalizeTags убирает пустые и повторяющиеся теги, сохраняя порядок.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
