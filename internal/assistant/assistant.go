// Package assistant answers questions over a corpus: retrieve supporting
// chunks, assemble a prompt with recent session history, and hand it to a
// completion backend. The backend sits behind the Completer interface so
// core code never links a provider SDK.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/models"
	"github.com/opencampus/docqa/internal/querycache"
)

// Completer generates an answer from an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Retriever is the retrieval facade the assistant reads from.
type Retriever interface {
	Search(ctx context.Context, query string, k int) (*models.RetrievalResult, error)
}

// Exchange is one question/answer pair in a session history.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Answer is the assistant's reply.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources,omitempty"`
	Cached  bool     `json:"cached"`
}

// maxHistoryExchanges caps how many exchanges a session retains.
const maxHistoryExchanges = 100

// promptHistoryWindow is how many recent exchanges feed the prompt.
const promptHistoryWindow = 5

// Service is the question-answering service. All collaborators are injected
// at construction; there is no global state.
type Service struct {
	retriever Retriever
	completer Completer
	cache     *querycache.Cache
	k         int
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string][]Exchange
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetrievalK sets how many chunks are retrieved per question.
func WithRetrievalK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.k = k
		}
	}
}

// New creates a Service. cache may be nil to disable answer caching.
func New(retriever Retriever, completer Completer, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		retriever: retriever,
		completer: completer,
		cache:     cache,
		k:         5,
		logger:    zap.NewNop(),
		sessions:  make(map[string][]Exchange),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers question within session. A cached answer for the same
// normalized question in the same session is returned without retrieval or
// generation.
func (s *Service) Ask(ctx context.Context, session, question string) (*Answer, error) {
	var key string
	if s.cache != nil {
		key = s.cache.AnswerKey(session, question)
		if cached, ok := s.cache.GetAnswer(ctx, key); ok {
			s.logger.Debug("answer cache hit", zap.String("session", session))
			return &Answer{Text: cached.Text, Sources: cached.Sources, Cached: true}, nil
		}
	}

	result, err := s.retriever.Search(ctx, question, s.k)
	if err != nil {
		return nil, err
	}

	prompt := s.buildPrompt(session, question, result)
	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if s.cache != nil {
		s.cache.SetAnswer(ctx, key, &querycache.Answer{Text: text, Sources: result.Sources})
	}
	s.record(session, question, text)
	return &Answer{Text: text, Sources: result.Sources}, nil
}

func (s *Service) buildPrompt(session, question string, result *models.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the provided context. ")
	b.WriteString("If the context does not contain the answer, say so.\n\n")

	if len(result.Chunks) > 0 {
		b.WriteString("Context:\n")
		for _, sc := range result.Chunks {
			b.WriteString("- ")
			b.WriteString(sc.Chunk.Text)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	history := s.recent(session, promptHistoryWindow)
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, ex := range history {
			b.WriteString("Q: ")
			b.WriteString(ex.Question)
			b.WriteString("\nA: ")
			b.WriteString(ex.Answer)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func (s *Service) record(session, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.sessions[session], Exchange{
		Question: question,
		Answer:   answer,
		At:       time.Now().UTC(),
	})
	if len(history) > maxHistoryExchanges {
		history = history[len(history)-maxHistoryExchanges:]
	}
	s.sessions[session] = history
}

func (s *Service) recent(session string, n int) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.sessions[session]
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Exchange, len(history))
	copy(out, history)
	return out
}

// History returns a copy of the session's exchanges, oldest first.
func (s *Service) History(session string) []Exchange {
	return s.recent(session, maxHistoryExchanges)
}

// ClearSession drops a session's history.
func (s *Service) ClearSession(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
}
