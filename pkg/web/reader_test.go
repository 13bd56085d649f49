package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindURL(t *testing.T) {
	testcases := []struct {
		name string
		text string
		want string
	}{
		{"plain url", "check https://example.com/page please", "https://example.com/page"},
		{"http", "http://example.com", "http://example.com"},
		{"no url", "what is the weather", ""},
		{"first of several", "https://a.example and https://b.example", "https://a.example"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FindURL(tc.text))
		})
	}
}

func TestIsYouTubeURL(t *testing.T) {
	assert.True(t, IsYouTubeURL("https://www.youtube.com/watch?v=abc"))
	assert.True(t, IsYouTubeURL("https://youtu.be/abc"))
	assert.False(t, IsYouTubeURL("https://example.com/watch"))
}

func TestReader_ExtractsTitleAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
			<title>Example Article</title>
			<meta name="description" content="A short description.">
			<script>var junk = 1;</script>
		</head><body>
			<nav>menu</nav>
			<h1>Heading</h1>
			<p>First paragraph.</p>
		</body></html>`))
	}))
	defer srv.Close()

	content, err := NewReader().Read(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, content, "Example Article")
	assert.Contains(t, content, "A short description.")
	assert.Contains(t, content, "First paragraph.")
	assert.NotContains(t, content, "var junk")
	assert.NotContains(t, content, "menu")
}

func TestReader_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewReader().Read(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
}
