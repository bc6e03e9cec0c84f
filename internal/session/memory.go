package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/store"
)

const (
	DefaultMaxTurns = 10

	summaryTurns       = 5
	summaryAnswerChars = 150
	recentSQLTurns     = 3
)

type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	SQLUsed   string    `json:"sql_used"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

type FollowUp struct {
	IsFollowUp     bool
	PriorContext   string
	Classification classify.Classification
}

type Stats struct {
	ActiveSessions         int     `json:"active_sessions"`
	TotalConversationTurns int     `json:"total_conversation_turns"`
	AvgTurnsPerSession     float64 `json:"avg_turns_per_session"`
}

type Options struct {
	MaxTurns    int
	MaxSessions int
	SessionTTL  time.Duration
	Classifier  *classify.Classifier
	Now         func() time.Time
}

type conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// Memory keeps the most recent turns of each session. Sessions are isolated from each other and an
// empty session id turns every method into a no-op.
type Memory struct {
	mu         sync.Mutex
	sessions   store.Store[*conversation]
	classifier *classify.Classifier
	maxTurns   int
	now        func() time.Time
}

func New(opts Options) *Memory {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(classify.DefaultLexicon())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{
		sessions:   store.NewLRU[*conversation](opts.MaxSessions, opts.SessionTTL, nil),
		classifier: opts.Classifier,
		maxTurns:   opts.MaxTurns,
		now:        opts.Now,
	}
}

func (m *Memory) AddTurn(sessionID, question, answer, sqlUsed string) {
	if sessionID == "" {
		return
	}
	conv := m.getOrCreate(sessionID)

	conv.mu.Lock()
	conv.turns = append(conv.turns, Turn{
		Question:  question,
		Answer:    answer,
		SQLUsed:   sqlUsed,
		Timestamp: m.now().UTC(),
		SessionID: sessionID,
	})
	if len(conv.turns) > m.maxTurns {
		conv.turns = append([]Turn(nil), conv.turns[len(conv.turns)-m.maxTurns:]...)
	}
	conv.mu.Unlock()
}

// ContextSummary renders the last turns of the session for inclusion in a prompt.
func (m *Memory) ContextSummary(sessionID string) string {
	turns := m.History(sessionID)
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > summaryTurns {
		turns = turns[len(turns)-summaryTurns:]
	}

	var b strings.Builder
	b.WriteString("CONVERSATION HISTORY (Previous questions in this session):\n")
	for i, turn := range turns {
		fmt.Fprintf(&b, "Turn %d:\n", i+1)
		fmt.Fprintf(&b, "  User asked: %s\n", turn.Question)
		fmt.Fprintf(&b, "  Response summary: %s...\n", truncate(turn.Answer, summaryAnswerChars))
		fmt.Fprintf(&b, "  SQL executed: %s\n\n", turn.SQLUsed)
	}
	b.WriteString("IMPORTANT: Only reference information that was actually mentioned in previous questions.")
	return b.String()
}

// FollowUp classifies the question against a session that already has turns. Questions in an empty or
// unknown session are never follow-ups.
func (m *Memory) FollowUp(sessionID, question string) FollowUp {
	turns := m.History(sessionID)
	if len(turns) == 0 {
		return FollowUp{}
	}
	cls := m.classifier.Classify(question)
	if cls.Category != classify.CategoryFollowUp {
		return FollowUp{Classification: cls}
	}
	previous := make([]string, 0, len(turns))
	for _, turn := range turns {
		previous = append(previous, strings.ToLower(turn.Question))
	}
	return FollowUp{
		IsFollowUp:     true,
		PriorContext:   strings.Join(previous, " "),
		Classification: cls,
	}
}

// ResolveReferent reports whether any of the terms was mentioned in an earlier question or answer.
func (m *Memory) ResolveReferent(sessionID string, terms []string) bool {
	turns := m.History(sessionID)
	for _, term := range terms {
		for _, turn := range turns {
			if classify.ContainsWord(turn.Question, term) || classify.ContainsWord(turn.Answer, term) {
				return true
			}
		}
	}
	return false
}

// History returns a copy of the retained turns in arrival order.
func (m *Memory) History(sessionID string) []Turn {
	if sessionID == "" {
		return nil
	}
	conv, ok := m.sessions.Peek(sessionID)
	if !ok {
		return nil
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Turn, len(conv.turns))
	copy(out, conv.turns)
	return out
}

func (m *Memory) RecentSQL(sessionID string) []string {
	turns := m.History(sessionID)
	if len(turns) > recentSQLTurns {
		turns = turns[len(turns)-recentSQLTurns:]
	}
	out := make([]string, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turn.SQLUsed)
	}
	return out
}

func (m *Memory) Stats() Stats {
	var stats Stats
	m.sessions.Scan(func(_ string, conv *conversation) bool {
		conv.mu.Lock()
		stats.TotalConversationTurns += len(conv.turns)
		conv.mu.Unlock()
		stats.ActiveSessions++
		return true
	})
	stats.AvgTurnsPerSession = float64(stats.TotalConversationTurns) / float64(max(1, stats.ActiveSessions))
	return stats
}

func (m *Memory) Sessions() int {
	return m.sessions.Len()
}

func (m *Memory) getOrCreate(sessionID string) *conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions.Get(sessionID)
	if !ok {
		conv = &conversation{}
	}
	m.sessions.Put(sessionID, conv)
	return conv
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
