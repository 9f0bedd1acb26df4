package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/blog-service/internal/domain"
)

func TestRef_DecodesBothShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Ref
	}{
		{"bare id", `"u1"`, Ref{ID: "u1"}},
		{"object with _id", `{"_id":"u1","name":"Ann","email":"ann@example.com"}`, Ref{ID: "u1", Name: "Ann", Email: "ann@example.com"}},
		{"object with id", `{"id":"p1","title":"Hello","slug":"hello"}`, Ref{ID: "p1", Title: "Hello", Slug: "hello"}},
		{"null", `null`, Ref{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Ref
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad Ref
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestRef_Encodes(t *testing.T) {
	b, err := json.Marshal(Ref{ID: "u1"})
	require.NoError(t, err)
	assert.JSONEq(t, `"u1"`, string(b))

	b, err = json.Marshal(Ref{ID: "u1", Name: "Ann"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"u1","name":"Ann"}`, string(b))
}

func TestRef_AuthorFallsBackToEmail(t *testing.T) {
	assert.Equal(t, domain.AuthorRef{ID: "u1", Name: "a@b.c"}, Ref{ID: "u1", Email: "a@b.c"}.Author())
}

func TestComment_DecodesPopulatedPayload(t *testing.T) {
	payload := `{
		"_id": "c2",
		"content": "reply",
		"post": {"_id": "p1", "title": "Hello", "slug": "hello"},
		"author": {"_id": "u2", "name": "Bob", "email": "bob@example.com"},
		"parentComment": "c1",
		"approved": true,
		"likes": 5,
		"likedBy": ["u1"],
		"createdAt": "2024-01-02T03:04:05Z"
	}`

	var c Comment
	require.NoError(t, json.Unmarshal([]byte(payload), &c))
	d := c.Domain()

	assert.Equal(t, "p1", d.PostID)
	require.NotNil(t, d.ParentID)
	assert.Equal(t, "c1", *d.ParentID)
	assert.Equal(t, domain.AuthorRef{ID: "u2", Name: "Bob"}, d.Author)
	// счётчик всегда пересчитывается по likedBy
	assert.Equal(t, 1, d.Likes)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), d.CreatedAt)
}

func TestComment_EncodesIDsAsStrings(t *testing.T) {
	parent := "c1"
	b, err := json.Marshal(FromComment(&domain.Comment{
		ID:       "c2",
		PostID:   "p1",
		ParentID: &parent,
		Author:   domain.AuthorRef{ID: "u1"},
		Content:  "hi",
	}))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "c2", raw["_id"])
	assert.Equal(t, "p1", raw["post"])
	assert.Equal(t, "c1", raw["parentComment"])
	assert.Equal(t, []any{}, raw["likedBy"])
}

func TestPost_RoundTripKeepsAuthor(t *testing.T) {
	p := &domain.Post{ID: "p1", Title: "T", Slug: "t", Author: domain.AuthorRef{ID: "u1", Name: "Ann"}, Tags: []string{"go"}}
	b, err := json.Marshal(FromPost(p))
	require.NoError(t, err)

	var back Post
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p.Author, back.Domain().Author)
	assert.Equal(t, p.Tags, back.Domain().Tags)
}
