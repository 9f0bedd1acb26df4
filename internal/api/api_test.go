package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/blog-service/internal/blog"
	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/kv"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"
	"github.com/UkralStul/blog-service/internal/wire"
)

type testServer struct {
	*httptest.Server
	observer *CommentObserver
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := inmemory.New()
	auth, err := identity.NewLocal(store, kv.NewMemory(), "0123456789abcdef0123456789abcdef", time.Hour, nil)
	require.NoError(t, err)

	observer := NewCommentObserver()
	svc := blog.New(store, identity.ContextProvider{}, nil)
	srv := httptest.NewServer(NewRouter(svc, auth, observer, nil, opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, observer: observer}
}

func doReq(t *testing.T, baseURL, token, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// expectError проверяет статус и код ошибки ответа.
func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	var body wire.ErrorResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, status, resp.StatusCode)
	assert.Equal(t, code, body.Code)
}

func signUp(t *testing.T, baseURL, name string) string {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	resp := doReq(t, baseURL, "", http.MethodPost, "/auth/register", map[string]string{
		"name": name, "email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doReq(t, baseURL, "", http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login wire.LoginResponse
	decodeJSON(t, resp, &login)
	require.True(t, login.Success)
	return login.Token
}

func createPost(t *testing.T, baseURL, token, title string, published bool) wire.Post {
	t.Helper()
	resp := doReq(t, baseURL, token, http.MethodPost, "/posts", map[string]any{
		"title": title, "content": "# " + title + "\n\nBody", "published": published, "tags": []string{"Go"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p wire.Post
	decodeJSON(t, resp, &p)
	return p
}

func createComment(t *testing.T, baseURL, token, postID string, parent *string, content string) wire.Comment {
	t.Helper()
	body := map[string]any{"post": postID, "content": content}
	if parent != nil {
		body["parentComment"] = *parent
	}
	resp := doReq(t, baseURL, token, http.MethodPost, "/comments", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var c wire.Comment
	decodeJSON(t, resp, &c)
	return c
}

func TestAuthFlow(t *testing.T) {
	srv := setupTestServer(t, Options{})

	resp := doReq(t, srv.URL, "", http.MethodPost, "/auth/register", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var user wire.User
	decodeJSON(t, resp, &user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ann@example.com", user.Email)

	resp = doReq(t, srv.URL, "", http.MethodPost, "/auth/register", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret1",
	})
	expectError(t, resp, http.StatusConflict, "EMAIL_TAKEN")

	resp = doReq(t, srv.URL, "", http.MethodPost, "/auth/register", map[string]string{
		"name": "Ann", "email": "nope", "password": "secret1",
	})
	expectError(t, resp, http.StatusBadRequest, "INVALID_INPUT")

	resp = doReq(t, srv.URL, "", http.MethodPost, "/auth/login", map[string]string{"email": "ann@example.com", "password": "bad"})
	expectError(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	resp = doReq(t, srv.URL, "", http.MethodPost, "/auth/login", map[string]string{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login wire.LoginResponse
	decodeJSON(t, resp, &login)

	resp = doReq(t, srv.URL, login.Token, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me domain.Identity
	decodeJSON(t, resp, &me)
	assert.Equal(t, user.ID, me.ID)

	resp = doReq(t, srv.URL, "", http.MethodGet, "/auth/me", nil)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	resp = doReq(t, srv.URL, login.Token, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doReq(t, srv.URL, login.Token, http.MethodGet, "/auth/me", nil)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestPostsLifecycle(t *testing.T) {
	srv := setupTestServer(t, Options{})
	ann := signUp(t, srv.URL, "Ann")
	bob := signUp(t, srv.URL, "Bob")

	resp := doReq(t, srv.URL, "", http.MethodPost, "/posts", map[string]any{"title": "Anon"})
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	resp = doReq(t, srv.URL, ann, http.MethodPost, "/posts", map[string]any{"content": "no title"})
	expectError(t, resp, http.StatusBadRequest, "INVALID_INPUT")

	post := createPost(t, srv.URL, ann, "Hello, World!!", true)
	assert.Equal(t, "hello-world", post.Slug)
	assert.Equal(t, "Ann", post.Author.Name)
	draft := createPost(t, srv.URL, ann, "Secret Draft", false)

	resp = doReq(t, srv.URL, "", http.MethodGet, "/posts/slug/hello-world", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got wire.Post
	decodeJSON(t, resp, &got)
	assert.Equal(t, post.ID, got.ID)
	assert.Contains(t, got.ContentHTML, "<h1")

	resp = doReq(t, srv.URL, bob, http.MethodGet, "/posts/"+draft.ID, nil)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = doReq(t, srv.URL, "", http.MethodGet, "/posts?tag=go", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page[wire.Post]
	decodeJSON(t, resp, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)

	resp = doReq(t, srv.URL, ann, http.MethodGet, "/posts?published=all", nil)
	decodeJSON(t, resp, &page)
	assert.Equal(t, 2, page.Total)
	resp = doReq(t, srv.URL, "", http.MethodGet, "/posts?published=all", nil)
	decodeJSON(t, resp, &page)
	assert.Equal(t, 1, page.Total)
	// без author видны только собственные посты, у bob их нет
	resp = doReq(t, srv.URL, bob, http.MethodGet, "/posts?published=all", nil)
	decodeJSON(t, resp, &page)
	assert.Zero(t, page.Total)

	resp = doReq(t, srv.URL, "", http.MethodGet, "/posts?page=abc", nil)
	expectError(t, resp, http.StatusBadRequest, "INVALID_INPUT")

	resp = doReq(t, srv.URL, bob, http.MethodPut, "/posts/"+post.ID, map[string]any{"title": "Mine now"})
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN")

	resp = doReq(t, srv.URL, ann, http.MethodPut, "/posts/"+post.ID, map[string]any{"title": "Renamed Post"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &got)
	assert.Equal(t, "renamed-post", got.Slug)

	resp = doReq(t, srv.URL, ann, http.MethodDelete, "/posts/"+post.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var del wire.DeleteResponse
	decodeJSON(t, resp, &del)
	assert.True(t, del.Deleted)

	resp = doReq(t, srv.URL, ann, http.MethodDelete, "/posts/"+post.ID, nil)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestCommentsFlow(t *testing.T) {
	srv := setupTestServer(t, Options{})
	ann := signUp(t, srv.URL, "Ann")
	bob := signUp(t, srv.URL, "Bob")

	post := createPost(t, srv.URL, ann, "Post", true)
	other := createPost(t, srv.URL, ann, "Other", true)

	resp := doReq(t, srv.URL, "", http.MethodPost, "/comments", map[string]any{"post": post.ID, "content": "anon"})
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	root := createComment(t, srv.URL, bob, post.ID, nil, "root")
	assert.True(t, root.Approved)
	assert.Equal(t, post.ID, root.Post.ID)
	reply := createComment(t, srv.URL, ann, post.ID, &root.ID, "reply")
	require.NotNil(t, reply.ParentComment)
	assert.Equal(t, root.ID, reply.ParentComment.ID)
	createComment(t, srv.URL, bob, post.ID, &reply.ID, "nested")
	foreign := createComment(t, srv.URL, bob, other.ID, nil, "elsewhere")

	resp = doReq(t, srv.URL, bob, http.MethodPost, "/comments", map[string]any{
		"post": post.ID, "content": "x", "parentComment": foreign.ID,
	})
	expectError(t, resp, http.StatusBadRequest, "PARENT_DIFFERENT_POST")

	resp = doReq(t, srv.URL, bob, http.MethodPost, "/comments", map[string]any{"post": "missing", "content": "x"})
	expectError(t, resp, http.StatusNotFound, "POST_NOT_FOUND")

	resp = doReq(t, srv.URL, bob, http.MethodPost, "/comments", map[string]any{
		"post": post.ID, "content": strings.Repeat("a", domain.MaxCommentLength+1),
	})
	expectError(t, resp, http.StatusBadRequest, "INVALID_INPUT")

	resp = doReq(t, srv.URL, "", http.MethodGet, "/comments/post/"+post.ID+"?limit=2&page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page[wire.Comment]
	decodeJSON(t, resp, &page)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	resp = doReq(t, srv.URL, "", http.MethodGet, "/comments/post/"+post.ID+"?roots=true", nil)
	decodeJSON(t, resp, &page)
	assert.Equal(t, 1, page.Total)

	// лайк и снятие лайка
	resp = doReq(t, srv.URL, ann, http.MethodPost, "/comments/"+root.ID+"/like", nil)
	var like wire.LikeResponse
	decodeJSON(t, resp, &like)
	assert.Equal(t, wire.LikeResponse{Liked: true, Likes: 1}, like)
	resp = doReq(t, srv.URL, ann, http.MethodPost, "/comments/"+root.ID+"/like", nil)
	decodeJSON(t, resp, &like)
	assert.Equal(t, wire.LikeResponse{Liked: false, Likes: 0}, like)
	resp = doReq(t, srv.URL, "", http.MethodPost, "/comments/"+root.ID+"/like", nil)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	// модерация доступна только автору поста
	resp = doReq(t, srv.URL, bob, http.MethodPut, "/comments/"+reply.ID+"/approval", map[string]any{"approved": false})
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN")
	resp = doReq(t, srv.URL, ann, http.MethodPut, "/comments/"+reply.ID+"/approval", map[string]any{})
	expectError(t, resp, http.StatusBadRequest, "INVALID_INPUT")
	resp = doReq(t, srv.URL, ann, http.MethodPut, "/comments/"+reply.ID+"/approval", map[string]any{"approved": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	var count wire.CountResponse
	resp = doReq(t, srv.URL, "", http.MethodGet, "/comments/post/"+post.ID+"/count?approved=true", nil)
	decodeJSON(t, resp, &count)
	assert.Equal(t, 2, count.Count)
	resp = doReq(t, srv.URL, ann, http.MethodGet, "/comments/post/"+post.ID+"/count", nil)
	decodeJSON(t, resp, &count)
	assert.Equal(t, 3, count.Count)
	resp = doReq(t, srv.URL, bob, http.MethodGet, "/comments/post/"+post.ID+"?approved=false", nil)
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN")
	resp = doReq(t, srv.URL, "", http.MethodGet, "/comments/post/"+post.ID+"/count?approved=false", nil)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	resp = doReq(t, srv.URL, "", http.MethodGet, "/comments/"+root.ID+"/replies", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var replies []wire.Comment
	decodeJSON(t, resp, &replies)
	assert.Empty(t, replies)

	resp = doReq(t, srv.URL, ann, http.MethodGet, "/comments/"+root.ID+"/replies", nil)
	decodeJSON(t, resp, &replies)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	resp = doReq(t, srv.URL, bob, http.MethodPut, "/comments/"+root.ID, map[string]any{"content": "edited"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edited wire.Comment
	decodeJSON(t, resp, &edited)
	assert.Equal(t, "edited", edited.Content)

	resp = doReq(t, srv.URL, ann, http.MethodDelete, "/comments/"+root.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doReq(t, srv.URL, ann, http.MethodGet, "/comments/post/"+post.ID+"/count", nil)
	decodeJSON(t, resp, &count)
	assert.Zero(t, count.Count)
}

func TestThread(t *testing.T) {
	srv := setupTestServer(t, Options{})
	ann := signUp(t, srv.URL, "Ann")

	post := createPost(t, srv.URL, ann, "Post", true)
	root := createComment(t, srv.URL, ann, post.ID, nil, "root")
	reply := createComment(t, srv.URL, ann, post.ID, &root.ID, "reply")
	createComment(t, srv.URL, ann, post.ID, &reply.ID, "nested")
	createComment(t, srv.URL, ann, post.ID, nil, "second root")

	resp := doReq(t, srv.URL, "", http.MethodGet, "/posts/"+post.ID+"/thread", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var thread wire.Thread
	decodeJSON(t, resp, &thread)

	assert.Equal(t, post.ID, thread.Post.ID)
	require.Len(t, thread.Comments, 2)
	assert.Equal(t, "root", thread.Comments[0].Content)
	require.Len(t, thread.Comments[0].Replies, 1)
	require.Len(t, thread.Comments[0].Replies[0].Replies, 1)
	assert.Equal(t, "nested", thread.Comments[0].Replies[0].Replies[0].Content)
	assert.Empty(t, thread.Comments[1].Replies)
}

func TestRateLimitOnWrites(t *testing.T) {
	srv := setupTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})

	body := map[string]string{"email": "nobody@example.com", "password": "secret1"}
	resp := doReq(t, srv.URL, "", http.MethodPost, "/auth/login", body)
	expectError(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	resp = doReq(t, srv.URL, "", http.MethodPost, "/auth/login", body)
	expectError(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")

	// чтение не ограничивается
	resp = doReq(t, srv.URL, "", http.MethodGet, "/posts", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMalformedAuthorization(t *testing.T) {
	srv := setupTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	resp = doReq(t, srv.URL, "not-a-token", http.MethodGet, "/posts", nil)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestCommentStream(t *testing.T) {
	srv := setupTestServer(t, Options{})
	ann := signUp(t, srv.URL, "Ann")
	post := createPost(t, srv.URL, ann, "Live", true)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/ws/posts/%s/comments", post.ID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = resp.Body.Close()

	require.Eventually(t, func() bool { return srv.observer.Subscribers(post.ID) == 1 }, time.Second, 10*time.Millisecond)

	created := createComment(t, srv.URL, ann, post.ID, nil, "hello live")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got wire.Comment
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hello live", got.Content)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/posts/missing/comments", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommentObserver_Unsubscribe(t *testing.T) {
	o := NewCommentObserver()
	ch, unsubscribe := o.Subscribe("p1")
	assert.Equal(t, 1, o.Subscribers("p1"))

	o.Publish(&domain.Comment{ID: "c1", PostID: "p1"})
	o.Publish(&domain.Comment{ID: "c2", PostID: "p2"})
	assert.Equal(t, "c1", (<-ch).ID)

	unsubscribe()
	unsubscribe()
	assert.Zero(t, o.Subscribers("p1"))
}
