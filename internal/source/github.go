package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	apperrors "codeaudit/internal/errors"
	"codeaudit/types"

	"go.uber.org/zap"
)

// Config controls how a repository is flattened into one code unit.
type Config struct {
	APIURL       string
	Token        string
	MaxFiles     int
	MaxFileChars int
	Timeout      time.Duration
}

const (
	maxPriorityFiles = 3
	maxBlobSize      = 500000
)

var (
	sourceExtensions = []string{
		".py", ".js", ".java", ".go", ".ts", ".jsx", ".tsx", ".php", ".rb",
		".c", ".cpp", ".cs", ".rs", ".kt", ".swift", ".m", ".h", ".scala",
		".sql", ".sh", ".bash", ".yaml", ".yml", ".json", ".xml",
	}
	skippedPaths  = []string{"node_modules/", "vendor/", "dist/", "build/", ".min.", "package-lock.json", "yarn.lock", "__pycache__/"}
	priorityNames = []string{"main", "app", "index", "server", "api", "auth", "config"}
)

// GitHubResolver fetches a bounded sample of source files through the GitHub REST API.
type GitHubResolver struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

func NewGitHubResolver(cfg Config, logger *zap.Logger) *GitHubResolver {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxFileChars <= 0 {
		cfg.MaxFileChars = 5000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubResolver{config: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// ParseOwnerRepo accepts https://github.com/owner/repo[.git][/...], github.com/owner/repo and owner/repo.
func ParseOwnerRepo(raw string) (string, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", fmt.Errorf("empty repository url")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", "", fmt.Errorf("invalid repository url: %w", err)
		}
		if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
			return "", "", fmt.Errorf("unsupported repository host %q", u.Host)
		}
		s = u.Path
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "www."), "github.com/")
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url must name owner and repository")
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// Resolve returns the concatenated sources of the repository. Any failure to
// produce at least one file is a validation error for the caller.
func (g *GitHubResolver) Resolve(ctx context.Context, repoURL string) (string, error) {
	owner, repo, err := ParseOwnerRepo(repoURL)
	if err != nil {
		return "", apperrors.NewValidationError(err.Error(), map[string]interface{}{"repo_url": repoURL})
	}

	branch, tree, err := g.fetchTree(ctx, owner, repo)
	if err != nil {
		verr := apperrors.NewValidationError(
			fmt.Sprintf("unable to read repository %s/%s", owner, repo),
			map[string]interface{}{"repo_url": repoURL})
		verr.Cause = err
		return "", verr
	}

	selected := selectFiles(tree, g.config.MaxFiles)
	g.logger.Debug("selected repository files",
		zap.String("repo", owner+"/"+repo), zap.String("branch", branch),
		zap.Int("tree_size", len(tree)), zap.Int("selected", len(selected)))

	parts := make([]string, 0, len(selected))
	for _, p := range selected {
		content, err := g.fetchFile(ctx, owner, repo, branch, p)
		if err != nil {
			g.logger.Warn("skipping repository file", zap.String("path", p), zap.Error(err))
			continue
		}
		kept, trunc := types.TruncateText(content, g.config.MaxFileChars)
		if trunc != nil {
			kept += "\n" + types.RemainderMarker(trunc.RemainingChars)
		}
		parts = append(parts, "# File: "+p+"\n"+kept)
	}

	if len(parts) == 0 {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("unable to fetch source files from repository %s/%s", owner, repo),
			map[string]interface{}{"repo_url": repoURL})
	}
	return strings.Join(parts, "\n\n"), nil
}

// selectFiles keeps source blobs, puts up to three priority names first and
// fills the rest in tree order.
func selectFiles(tree []treeEntry, maxFiles int) []string {
	var priority, other []string
	for _, e := range tree {
		if !isSource(e) {
			continue
		}
		if isPriority(e.Path) && len(priority) < maxPriorityFiles {
			priority = append(priority, e.Path)
		} else {
			other = append(other, e.Path)
		}
	}
	out := append(priority, other...)
	if len(out) > maxFiles {
		out = out[:maxFiles]
	}
	return out
}

func isSource(e treeEntry) bool {
	if e.Type != "blob" || e.Size <= 0 || e.Size >= maxBlobSize {
		return false
	}
	for _, skip := range skippedPaths {
		if strings.Contains(e.Path, skip) {
			return false
		}
	}
	ext := path.Ext(e.Path)
	for _, want := range sourceExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

func isPriority(p string) bool {
	lower := strings.ToLower(p)
	for _, name := range priorityNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func (g *GitHubResolver) fetchTree(ctx context.Context, owner, repo string) (string, []treeEntry, error) {
	branches := []string{"main", "master"}
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &info); err != nil {
		g.logger.Debug("could not read repository metadata", zap.Error(err))
	} else if info.DefaultBranch != "" && info.DefaultBranch != "main" {
		branches = append([]string{info.DefaultBranch}, branches...)
	}

	var lastErr error
	for _, branch := range branches {
		var tree struct {
			Tree []treeEntry `json:"tree"`
		}
		endpoint := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, url.PathEscape(branch))
		if err := g.getJSON(ctx, endpoint, &tree); err != nil {
			lastErr = err
			continue
		}
		return branch, tree.Tree, nil
	}
	return "", nil, lastErr
}

func (g *GitHubResolver) fetchFile(ctx context.Context, owner, repo, branch, filePath string) (string, error) {
	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, escapePath(filePath), url.QueryEscape(branch))
	if err := g.getJSON(ctx, endpoint, &file); err != nil {
		return "", err
	}
	if file.Encoding != "" && file.Encoding != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q", file.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	return strings.ToValidUTF8(string(decoded), ""), nil
}

func (g *GitHubResolver) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.APIURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned status %d for %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GitHub response: %w", err)
	}
	return nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
