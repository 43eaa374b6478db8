// Package social is a thin client for the Moltbook HTTP API.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type createPostRequest struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type createPostResponse struct {
	Envelope
	Post struct {
		ID string `json:"id"`
	} `json:"post"`
	VerificationRequired bool       `json:"verificationRequired"`
	Challenge            *Challenge `json:"challenge"`
}

// CreatePost publishes to a submolt. The platform may demand interactive
// verification before the post goes live; the returned challenge must be
// answered within the same logical operation.
func (c *Client) CreatePost(ctx context.Context, submolt, title, content string) (PostResult, error) {
	var resp createPostResponse
	err := c.postJSON(ctx, "/posts", createPostRequest{
		Submolt: submolt,
		Title:   title,
		Content: content,
	}, &resp)
	if err != nil {
		return PostResult{}, err
	}
	if !resp.Success {
		return PostResult{}, &APIError{Message: resp.Error, RetryAfterMinutes: resp.RetryAfterMinutes}
	}
	result := PostResult{
		ID:                   resp.Post.ID,
		VerificationRequired: resp.VerificationRequired,
	}
	if resp.Challenge != nil {
		result.Challenge = *resp.Challenge
	}
	return result, nil
}

type createCommentRequest struct {
	PostID   string `json:"postId"`
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

type createCommentResponse struct {
	Envelope
	Comment struct {
		ID string `json:"id"`
	} `json:"comment"`
}

// CreateComment replies to a post, or to a comment when parentID is set.
func (c *Client) CreateComment(ctx context.Context, postID, content, parentID string) (string, error) {
	var resp createCommentResponse
	err := c.postJSON(ctx, "/comments", createCommentRequest{
		PostID:   postID,
		Content:  content,
		ParentID: parentID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &APIError{Message: resp.Error, RetryAfterMinutes: resp.RetryAfterMinutes}
	}
	return resp.Comment.ID, nil
}

func (c *Client) UpvotePost(ctx context.Context, id string) error {
	return c.vote(ctx, "/posts/"+url.PathEscape(id)+"/upvote")
}

func (c *Client) UpvoteComment(ctx context.Context, id string) error {
	return c.vote(ctx, "/comments/"+url.PathEscape(id)+"/upvote")
}

func (c *Client) vote(ctx context.Context, path string) error {
	var resp Envelope
	if err := c.postJSON(ctx, path, struct{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Message: resp.Error, RetryAfterMinutes: resp.RetryAfterMinutes}
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, submolt string) error {
	var resp Envelope
	if err := c.postJSON(ctx, "/submolts/"+url.PathEscape(submolt)+"/subscribe", struct{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Message: resp.Error, RetryAfterMinutes: resp.RetryAfterMinutes}
	}
	return nil
}

// Feed returns the most recent posts across subscribed submolts.
func (c *Client) Feed(ctx context.Context, sort string, limit int) ([]Post, error) {
	var resp struct {
		Posts []Post `json:"posts"`
	}
	path := fmt.Sprintf("/posts?sort=%s&limit=%d", url.QueryEscape(sort), limit)
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Posts, nil
}

func (c *Client) Comments(ctx context.Context, postID, sort string) ([]Comment, error) {
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	path := "/posts/" + url.PathEscape(postID) + "/comments?sort=" + url.QueryEscape(sort)
	if err := c.fetchJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

func (c *Client) Me(ctx context.Context) (Profile, error) {
	var resp struct {
		Agent Profile `json:"agent"`
	}
	if err := c.fetchJSON(ctx, "/agents/me", &resp); err != nil {
		return Profile{}, err
	}
	return resp.Agent, nil
}

type verifyRequest struct {
	Code   string `json:"code"`
	Answer string `json:"answer"`
}

// SubmitVerification answers a post challenge. The platform alone judges
// correctness; the boolean is its verdict.
func (c *Client) SubmitVerification(ctx context.Context, code, answer string) (bool, error) {
	var resp Envelope
	if err := c.postJSON(ctx, "/verify", verifyRequest{Code: code, Answer: answer}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) fetchJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func httpError(resp *http.Response) error {
	msg := "moltbook request failed"
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		trimmed := strings.TrimSpace(string(body))
		if trimmed != "" {
			msg = fmt.Sprintf("%s: %s", msg, trimmed)
		}
	}
	return fmt.Errorf("%s (status %d)", msg, resp.StatusCode)
}
