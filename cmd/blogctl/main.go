package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/UkralStul/blog-service/internal/cli/config"
	"github.com/UkralStul/blog-service/internal/cli/output"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/storage/remote"
	"github.com/UkralStul/blog-service/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "connect":
		return cmdConnect(args[1:])
	case "register":
		return cmdRegister(args[1:])
	case "login":
		return cmdLogin(args[1:])
	case "logout":
		return cmdLogout()
	case "whoami":
		return cmdWhoAmI(args[1:])
	case "posts":
		return cmdPosts(args[1:])
	case "post":
		return cmdPost(args[1:])
	case "create-post":
		return cmdCreatePost(args[1:])
	case "publish":
		return cmdPublish(args[1:])
	case "delete-post":
		return cmdDelete(args[1:], "delete-post")
	case "comments":
		return cmdComments(args[1:])
	case "comment":
		return cmdComment(args[1:])
	case "like":
		return cmdLike(args[1:])
	case "delete-comment":
		return cmdDelete(args[1:], "delete-comment")
	default:
		return usage()
	}
}

func usage() error {
	fmt.Fprintln(os.Stderr, `usage: blogctl <command> [flags]

commands (flags go before positional arguments):
  connect <url>                          set the blog server URL
  register --name n --email e --password p
  login --email e --password p
  logout
  whoami
  posts [--tag t] [--author id] [--q text] [--mine] [--drafts] [--page n] [--limit n]
  post [--format f] <slug|id>
  create-post --title t [--content c] [--excerpt e] [--tags a,b] [--publish]
  publish [--unpublish] <id>
  delete-post <id>
  comments [--page n] [--limit n] <postId>
  comment --content c [--parent id] <postId>
  like [--format f] <commentId>
  delete-comment <id>`)
	return errors.New("invalid command")
}

// === Session ===

type session struct {
	cfg    *config.Config
	client *transport.Client
	auth   *identity.Remote
	store  *remote.Store
}

func openSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	client := transport.New(cfg.URL, transport.WithToken(cfg.Token))
	return &session{
		cfg:    cfg,
		client: client,
		auth:   identity.NewRemote(client),
		store:  remote.New(client),
	}, nil
}

func (s *session) requireLogin() error {
	if s.cfg.Token == "" {
		return errors.New("not logged in (run: blogctl login)")
	}
	return nil
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func formatFlag(fs *flag.FlagSet) *string {
	return fs.String("format", "", "Output format: table, json or quiet")
}

// === Auth commands ===

func cmdConnect(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: blogctl connect <url>")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.URL = strings.TrimRight(strings.TrimSpace(args[0]), "/")
	cfg.ClearSession()
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("connected to %s\n", cfg.URL)
	return nil
}

func cmdRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email")
	password := fs.String("password", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	user, err := s.auth.Register(ctx, identity.RegisterInput{Name: *name, Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
	return nil
}

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Email")
	password := fs.String("password", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	sess, err := s.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	s.cfg.SetSession(sess.Token, sess.Identity.Email)
	if err := config.Save(s.cfg); err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", sess.Identity.Ref().Name)
	return nil
}

func cmdLogout() error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	// локальную сессию чистим, даже если токен уже истек на сервере
	if err := s.auth.Logout(ctx, ""); err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	s.cfg.ClearSession()
	if err := config.Save(s.cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func cmdWhoAmI(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	who, err := s.auth.Resolve(ctx, s.cfg.Token)
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, *format, who, &output.Table{
		Header: []string{"ID", "NAME", "EMAIL"},
		Rows:   [][]string{{who.ID, who.Name, who.Email}},
	})
}

// === Post commands ===

func cmdPosts(args []string) error {
	fs := flag.NewFlagSet("posts", flag.ContinueOnError)
	tag := fs.String("tag", "", "Filter by tag")
	author := fs.String("author", "", "Filter by author id")
	query := fs.String("q", "", "Full-text filter")
	mine := fs.Bool("mine", false, "Only my posts, drafts included")
	drafts := fs.Bool("drafts", false, "Only my drafts")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", storage.DefaultLimit, "Page size")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	filter := storage.PostFilter{
		AuthorID:       *author,
		Tag:            *tag,
		Query:          *query,
		PaginationArgs: storage.PaginationArgs{Page: *page, Limit: *limit},
	}
	var result *domain.Page[*domain.Post]
	switch {
	case *mine || *drafts:
		if err := s.requireLogin(); err != nil {
			return err
		}
		who := s.auth.Current(ctx)
		if who.IsAnonymous() {
			return domain.ErrUnauthorized
		}
		filter.AuthorID = who.ID
		if *drafts {
			published := false
			filter.Published = &published
		}
		result, err = s.store.ListPosts(ctx, filter)
	default:
		result, err = storage.FindPublished(ctx, s.store, filter)
	}
	if err != nil {
		return err
	}
	if err := output.Print(os.Stdout, *format, result, output.Posts(result.Items)); err != nil {
		return err
	}
	if *format == "" && output.DefaultFormat() == "table" {
		fmt.Printf("\npage %d, %d of %d posts\n", result.Page, len(result.Items), result.Total)
	}
	return nil
}

func cmdPost(args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: blogctl post <slug|id>")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	key := fs.Arg(0)
	post, err := s.store.GetPostBySlug(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		post, err = s.store.GetPostByID(ctx, key)
	}
	if err != nil {
		return err
	}
	if *format == "json" || (*format == "" && output.DefaultFormat() == "json") {
		return output.Print(os.Stdout, "json", post, nil)
	}
	fmt.Printf("%s\n%s\nby %s, %s\n\n%s\n", post.Title, strings.Repeat("=", len([]rune(post.Title))),
		post.Author.Name, post.CreatedAt.Local().Format("2006-01-02"), post.Content)
	return nil
}

func cmdCreatePost(args []string) error {
	fs := flag.NewFlagSet("create-post", flag.ContinueOnError)
	title := fs.String("title", "", "Post title")
	content := fs.String("content", "", "Markdown content ('-' reads stdin)")
	excerpt := fs.String("excerpt", "", "Short excerpt")
	tags := fs.String("tags", "", "Comma-separated tags")
	publish := fs.Bool("publish", false, "Publish immediately")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	body := *content
	if body == "-" {
		b, err := readStdin()
		if err != nil {
			return err
		}
		body = b
	}
	ctx, cancel := timeout()
	defer cancel()

	who := s.auth.Current(ctx)
	post, err := s.store.CreatePost(ctx, &domain.Post{
		Title:     *title,
		Content:   body,
		Excerpt:   *excerpt,
		Tags:      splitList(*tags),
		Author:    who.Ref(),
		Published: *publish,
	})
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, *format, post, output.Posts([]*domain.Post{post}))
}

func cmdPublish(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	unpublish := fs.Bool("unpublish", false, "Move back to drafts")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: blogctl publish [--unpublish] <id>")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	published := !*unpublish
	post, err := s.store.UpdatePost(ctx, fs.Arg(0), domain.PostPatch{Published: &published})
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, *format, post, output.Posts([]*domain.Post{post}))
}

// cmdDelete обслуживает delete-post и delete-comment.
func cmdDelete(args []string, name string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: blogctl %s <id>", name)
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	var removed bool
	if name == "delete-post" {
		removed, err = s.store.DeletePost(ctx, args[0])
	} else {
		removed, err = s.store.DeleteComment(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s: %w", args[0], domain.ErrNotFound)
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

// === Comment commands ===

func cmdComments(args []string) error {
	fs := flag.NewFlagSet("comments", flag.ContinueOnError)
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", storage.DefaultLimit, "Page size")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: blogctl comments [--page n] [--limit n] <postId>")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	result, err := s.store.ListCommentsByPost(ctx, fs.Arg(0), storage.CommentFilter{
		PaginationArgs: storage.PaginationArgs{Page: *page, Limit: *limit},
	})
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, *format, result, output.Comments(result.Items))
}

func cmdComment(args []string) error {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	content := fs.String("content", "", "Comment text")
	parent := fs.String("parent", "", "Reply to comment id")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: blogctl comment --content c [--parent id] <postId>")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	c := &domain.Comment{PostID: fs.Arg(0), Author: s.auth.Current(ctx).Ref(), Content: *content}
	if *parent != "" {
		c.ParentID = parent
	}
	created, err := s.store.CreateComment(ctx, c)
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, *format, created, output.Comments([]*domain.Comment{created}))
}

func cmdLike(args []string) error {
	fs := flag.NewFlagSet("like", flag.ContinueOnError)
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: blogctl like <commentId>")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := timeout()
	defer cancel()

	who := s.auth.Current(ctx)
	liked, err := s.store.ToggleLike(ctx, fs.Arg(0), who.ID)
	if err != nil {
		return err
	}
	c, err := s.store.GetCommentByID(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	payload := map[string]any{"liked": liked, "likes": c.Likes}
	return output.Print(os.Stdout, *format, payload, &output.Table{
		Header: []string{"COMMENT", "LIKED", "LIKES"},
		Rows:   [][]string{{c.ID, fmt.Sprint(liked), fmt.Sprint(c.Likes)}},
	})
}

// === Helpers ===

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readStdin() (string, error) {
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}
