// Package unipile implements the social interfaces against a
// Unipile-compatible HTTP API.
package unipile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/config"
	"github.com/dhofer/postflow-api/internal/social"
)

// Client talks to the Unipile-compatible posting API. Account linking is
// handled elsewhere; the owner's user ID doubles as the account lookup
// key on the service side.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.SocialConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "unipile_client")),
	}
}

// Ensure Client implements the social interfaces
var (
	_ social.Poster  = (*Client)(nil)
	_ social.Engager = (*Client)(nil)
)

// CreatePost implements social.Poster.CreatePost. The posts endpoint
// requires multipart form data; plain fields are sent as value parts.
func (c *Client) CreatePost(
	ctx context.Context,
	userID uuid.UUID,
	body, imageURL string,
) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("account_id", userID.String()); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if err := w.WriteField("text", body); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	if imageURL != "" {
		if err := c.attachImage(ctx, w, imageURL); err != nil {
			// Publish without the image rather than failing the post.
			c.logger.WarnContext(ctx, "image attach failed, publishing without image",
				"error", err, "image_url", imageURL)
		}
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/posts", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result struct {
		PostID string `json:"post_id"`
		ID     string `json:"id"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}

	if result.PostID != "" {
		return result.PostID, nil
	}
	return result.ID, nil
}

// SearchPosts implements social.Engager.SearchPosts
func (c *Client) SearchPosts(
	ctx context.Context,
	userID uuid.UUID,
	topics []string,
	limit int,
) ([]social.Post, error) {
	q := url.Values{}
	q.Set("account_id", userID.String())
	q.Set("keywords", strings.Join(topics, " OR "))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/posts/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var result struct {
		Items []struct {
			SocialID string `json:"social_id"`
			Text     string `json:"text"`
			ShareURL string `json:"share_url"`
			Author   struct {
				Name             string `json:"name"`
				PublicIdentifier string `json:"public_identifier"`
			} `json:"author"`
		} `json:"items"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	posts := make([]social.Post, 0, len(result.Items))
	for _, item := range result.Items {
		if item.SocialID == "" || item.Text == "" {
			continue
		}
		author := item.Author.Name
		if author == "" {
			author = item.Author.PublicIdentifier
		}
		var authorURL string
		if item.Author.PublicIdentifier != "" {
			authorURL = "https://www.linkedin.com/in/" + item.Author.PublicIdentifier
		}
		posts = append(posts, social.Post{
			Ref:       item.SocialID,
			Author:    author,
			AuthorURL: authorURL,
			Text:      item.Text,
			ShareURL:  item.ShareURL,
		})
	}

	return posts, nil
}

// CreateComment implements social.Engager.CreateComment
func (c *Client) CreateComment(ctx context.Context, userID uuid.UUID, postRef, text string) error {
	payload, err := json.Marshal(map[string]string{
		"account_id": userID.String(),
		"text":       text,
	})
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/posts/"+url.PathEscape(postRef)+"/comments",
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// AuthorPosts implements social.Engager.AuthorPosts
func (c *Client) AuthorPosts(
	ctx context.Context,
	userID uuid.UUID,
	authorRef string,
	limit int,
) ([]social.Post, error) {
	q := url.Values{}
	q.Set("account_id", userID.String())
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/users/"+url.PathEscape(authorRef)+"/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var result struct {
		Items []struct {
			SocialID string `json:"social_id"`
			Text     string `json:"text"`
			ShareURL string `json:"share_url"`
		} `json:"items"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	posts := make([]social.Post, 0, len(result.Items))
	for _, item := range result.Items {
		posts = append(posts, social.Post{
			Ref:      item.SocialID,
			Author:   authorRef,
			Text:     item.Text,
			ShareURL: item.ShareURL,
		})
	}

	return posts, nil
}

// attachImage downloads the image and adds it as a multipart attachment.
func (c *Client) attachImage(ctx context.Context, w *multipart.Writer, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	ext := contentType
	if i := strings.LastIndex(ext, "/"); i >= 0 {
		ext = ext[i+1:]
	}
	if i := strings.Index(ext, ";"); i >= 0 {
		ext = ext[:i]
	}

	part, err := w.CreateFormFile("attachments", "post_image."+ext)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, resp.Body); err != nil {
		return err
	}

	return nil
}

// do executes the request with auth headers and decodes the JSON
// response into out (when non-nil). HTTP failures are mapped to the
// social package's transient/rejected sentinels.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", social.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", social.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("social API request rejected",
			"status", resp.StatusCode,
			"path", req.URL.Path,
			"body", string(body))
		return fmt.Errorf("%w: status %d", social.ErrRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", social.ErrRejected, err)
	}

	return nil
}
