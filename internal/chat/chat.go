// Package chat forwards dataset questions to a chat-completion endpoint and
// collects the streamed reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	systemPrompt   = "You are a data analyst."
	defaultTimeout = 60 * time.Second
)

var (
	ErrEmptyQuery    = errors.New("query is required")
	ErrNotConfigured = errors.New("chat client is not configured")
	ErrStreamFailed  = errors.New("chat stream failed")
	ErrChatTimeout   = errors.New("chat request timed out")
	ErrEmptyResponse = errors.New("chat returned an empty response")
)

type Message struct {
	Role    string
	Content string
}

// Turn is one answered question, replayed on follow-up requests.
type Turn struct {
	Query  string
	Answer string
}

// FragmentStream yields reply fragments in arrival order and io.EOF at the end.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// Streamer opens a streamed completion for a prompt.
type Streamer interface {
	Stream(ctx context.Context, messages []Message) (FragmentStream, error)
}

// Request carries everything a question needs; nothing is read from ambient
// session state.
type Request struct {
	Dataset []byte
	Query   string
	History []Turn
}

type Client struct {
	streamer Streamer
	timeout  time.Duration
}

func NewClient(streamer Streamer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{streamer: streamer, timeout: timeout}
}

// BuildPrompt frames the dataset and question the way the analyst prompt expects.
func BuildPrompt(dataset []byte, query string, history []Turn) []Message {
	messages := make([]Message, 0, 2+2*len(history))
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages,
			Message{Role: RoleUser, Content: turn.Query},
			Message{Role: RoleAssistant, Content: turn.Answer},
		)
	}
	messages = append(messages, Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("Here is my dataset: %s. %s", dataset, query),
	})
	return messages
}

// Ask sends the question and returns the complete reply, bounded by the
// client timeout.
func (c *Client) Ask(ctx context.Context, req Request) (string, error) {
	if c == nil || c.streamer == nil {
		return "", ErrNotConfigured
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := log.Ctx(ctx)
	start := time.Now()

	stream, err := c.streamer.Stream(ctx, BuildPrompt(req.Dataset, query, req.History))
	if err != nil {
		return "", classify(ctx, err)
	}
	defer stream.Close()

	answer, err := Accumulate(ctx, stream)
	if err != nil {
		return "", classify(ctx, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyResponse
	}

	logger.Debug().
		Int("answer_bytes", len(answer)).
		Dur("duration", time.Since(start)).
		Msg("Chat completion received")
	return answer, nil
}

// Accumulate concatenates fragments until io.EOF. A failure mid-stream
// discards the partial text and returns a single error.
func Accumulate(ctx context.Context, stream FragmentStream) (string, error) {
	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(fragment)
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrChatTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrStreamFailed, err)
}
