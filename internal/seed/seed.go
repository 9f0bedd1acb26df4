package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/storage"
)

var (
	demoUser  = domain.AuthorRef{ID: "demo-user", Name: "Demo User"}
	demoAdmin = domain.AuthorRef{ID: "demo-admin", Name: "Admin"}
)

var demoPosts = []domain.Post{
	{
		Title: "Welcome to Our Blog",
		Content: `# Welcome to Our Blog

This is our first blog post! We're excited to share our thoughts and ideas with you.

## What to Expect

- Regular updates on web development
- Tips and tricks for developers
- Industry insights and trends

Stay tuned for more content!`,
		Excerpt:   "Welcome to our blog! This is our first post where we introduce what you can expect from our content.",
		Tags:      []string{"announcements"},
		Author:    demoUser,
		Published: true,
	},
	{
		Title: "Getting Started with Next.js",
		Content: `# Getting Started with Next.js

Next.js is a powerful React framework that makes building web applications a breeze.

## Key Features

- **Server-side rendering** for better performance
- **File-based routing** for easy navigation
- **Built-in optimization** for images and fonts
- **API routes** for backend functionality

Let's dive into how to get started!`,
		Excerpt:   "Learn the basics of Next.js and why it's become the go-to framework for React developers.",
		Tags:      []string{"nextjs", "react"},
		Author:    demoAdmin,
		Published: true,
	},
}

// Demo заполняет пустое хранилище демонстрационными постами и комментариями.
// Если хотя бы один пост уже есть, ничего не делает.
func Demo(ctx context.Context, store storage.Storage, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	existing, err := store.ListPosts(ctx, storage.PostFilter{PaginationArgs: storage.PaginationArgs{Page: 1, Limit: 1}})
	if err != nil {
		return fmt.Errorf("seed: check posts: %w", err)
	}
	if existing.Total > 0 {
		log.Debug("storage is not empty, skipping demo seed", zap.Int("posts", existing.Total))
		return nil
	}

	var welcome *domain.Post
	for i := range demoPosts {
		p := demoPosts[i]
		created, err := store.CreatePost(ctx, &p)
		if err != nil {
			return fmt.Errorf("seed: create post %q: %w", p.Title, err)
		}
		if welcome == nil {
			welcome = created
		}
	}

	root, err := store.CreateComment(ctx, &domain.Comment{
		PostID:  welcome.ID,
		Author:  demoAdmin,
		Content: "Great first post! Looking forward to the next ones.",
	})
	if err != nil {
		return fmt.Errorf("seed: create comment: %w", err)
	}
	if _, err := store.CreateComment(ctx, &domain.Comment{
		PostID:   welcome.ID,
		ParentID: &root.ID,
		Author:   demoUser,
		Content:  "Thanks! More is coming soon.",
	}); err != nil {
		return fmt.Errorf("seed: create reply: %w", err)
	}
	if _, err := store.ToggleLike(ctx, root.ID, demoUser.ID); err != nil {
		return fmt.Errorf("seed: like comment: %w", err)
	}

	log.Info("demo content seeded", zap.Int("posts", len(demoPosts)))
	return nil
}
