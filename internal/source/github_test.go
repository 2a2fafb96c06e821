package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "codeaudit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwnerRepo(t *testing.T) {
	testCases := []struct {
		in    string
		owner string
		repo  string
	}{
		{"https://github.com/acme/shop", "acme", "shop"},
		{"https://github.com/acme/shop.git", "acme", "shop"},
		{"https://www.github.com/acme/shop/tree/main/src", "acme", "shop"},
		{"github.com/acme/shop", "acme", "shop"},
		{"acme/shop", "acme", "shop"},
	}
	for _, tc := range testCases {
		owner, repo, err := ParseOwnerRepo(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.owner, owner, tc.in)
		assert.Equal(t, tc.repo, repo, tc.in)
	}

	for _, bad := range []string{"", "   ", "https://gitlab.com/acme/shop", "acme", "https://github.com/acme"} {
		_, _, err := ParseOwnerRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestSelectFiles(t *testing.T) {
	tree := []treeEntry{
		{Path: "README.md", Type: "blob", Size: 10},
		{Path: "src", Type: "tree"},
		{Path: "src/util.py", Type: "blob", Size: 100},
		{Path: "src/app.py", Type: "blob", Size: 100},
		{Path: "node_modules/x/index.js", Type: "blob", Size: 100},
		{Path: "src/empty.py", Type: "blob", Size: 0},
		{Path: "src/huge.py", Type: "blob", Size: 600000},
		{Path: "server.go", Type: "blob", Size: 100},
		{Path: "api.go", Type: "blob", Size: 100},
		{Path: "auth.go", Type: "blob", Size: 100},
		{Path: "db.sql", Type: "blob", Size: 100},
	}

	got := selectFiles(tree, 10)
	assert.Equal(t, []string{"src/app.py", "server.go", "api.go", "src/util.py", "auth.go", "db.sql"}, got)

	assert.Len(t, selectFiles(tree, 2), 2)
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newGitHubStub(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/repos/acme/shop":
			_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": "develop"})
		case r.URL.Path == "/repos/acme/shop/git/trees/develop":
			var tree []treeEntry
			for p, content := range files {
				tree = append(tree, treeEntry{Path: p, Type: "blob", Size: len(content)})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"tree": tree})
		case strings.HasPrefix(r.URL.Path, "/repos/acme/shop/contents/"):
			assert.Equal(t, "develop", r.URL.Query().Get("ref"))
			p := strings.TrimPrefix(r.URL.Path, "/repos/acme/shop/contents/")
			content, ok := files[p]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"content": encode(content), "encoding": "base64"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGitHubResolver_Resolve(t *testing.T) {
	srv := newGitHubStub(t, map[string]string{
		"app.py": "import os\nos.system(cmd)\n",
		"big.js": strings.Repeat("a", 60),
	})
	defer srv.Close()

	r := NewGitHubResolver(Config{APIURL: srv.URL, MaxFileChars: 50}, nil)
	code, err := r.Resolve(context.Background(), "https://github.com/acme/shop")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "# File: app.py\nimport os"), "priority file first")
	assert.Contains(t, code, "# File: big.js\n"+strings.Repeat("a", 50)+"\n... (+10 more characters)")
}

func TestGitHubResolver_Unresolvable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewGitHubResolver(Config{APIURL: srv.URL}, nil)

	_, err := r.Resolve(context.Background(), "https://github.com/acme/missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = r.Resolve(context.Background(), "not a repo")
	assert.True(t, apperrors.IsValidation(err))
}

func TestGitHubResolver_NoSourceFiles(t *testing.T) {
	srv := newGitHubStub(t, map[string]string{"README.md": "hello"})
	defer srv.Close()

	_, err := NewGitHubResolver(Config{APIURL: srv.URL}, nil).
		Resolve(context.Background(), "acme/shop")
	assert.True(t, apperrors.IsValidation(err))
}

func TestGitHubResolver_SendsToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, _ = NewGitHubResolver(Config{APIURL: srv.URL, Token: "ghp_test"}, nil).
		Resolve(context.Background(), "acme/shop")
	assert.Equal(t, "Bearer ghp_test", auth)
}
