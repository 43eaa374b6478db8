package social

import "fmt"

// Envelope is the platform's uniform mutating-call response.
type Envelope struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	RetryAfterMinutes int    `json:"retryAfterMinutes,omitempty"`
}

// APIError is a success:false envelope surfaced as an error. The agent
// never retries these; the cycle is logged and abandoned.
type APIError struct {
	Message           string
	RetryAfterMinutes int
}

func (e *APIError) Error() string {
	if e.RetryAfterMinutes > 0 {
		return fmt.Sprintf("moltbook: %s (retry after %d min)", e.Message, e.RetryAfterMinutes)
	}
	return "moltbook: " + e.Message
}

// Challenge is the interactive verification puzzle attached to a newly
// created post. Consumed synchronously, never stored.
type Challenge struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type PostResult struct {
	ID                   string
	VerificationRequired bool
	Challenge            Challenge
}

type Post struct {
	ID        string `json:"id"`
	Submolt   string `json:"submolt"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Upvotes   int    `json:"upvotes"`
	CreatedAt string `json:"created_at"`
}

type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	ParentID  string `json:"parent_id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type Profile struct {
	Name  string `json:"name"`
	Karma int    `json:"karma"`
}
