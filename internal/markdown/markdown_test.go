package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTML_Headings(t *testing.T) {
	html, err := ToHTML("# Welcome to Our Blog\n\n## What to Expect")
	require.NoError(t, err)
	assert.Contains(t, html, `<h1 id="welcome-to-our-blog">Welcome to Our Blog</h1>`)
	assert.Contains(t, html, `<h2 id="what-to-expect">What to Expect</h2>`)
}

func TestToHTML_ListsAndEmphasis(t *testing.T) {
	html, err := ToHTML("- **Server-side rendering**\n- *File-based* routing")
	require.NoError(t, err)
	assert.Contains(t, html, "<ul>")
	assert.Contains(t, html, "<strong>Server-side rendering</strong>")
	assert.Contains(t, html, "<em>File-based</em>")
}

func TestToHTML_RawHTMLOmitted(t *testing.T) {
	html, err := ToHTML("<script>alert(1)</script>\n\ntext")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "<p>text</p>")
}
