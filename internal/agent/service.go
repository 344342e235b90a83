// Package agent implements the message pipeline: slash dispatch, the
// tool-use loop, the verification loop, and history/journal/task
// bookkeeping around a single LLM-backed turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/go-github/v68/github"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/config"
	"github.com/nugget/message-agent-host/internal/historystore"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/llm"
	"github.com/nugget/message-agent-host/internal/mcp"
	"github.com/nugget/message-agent-host/internal/skills"
	"github.com/nugget/message-agent-host/internal/taskmgr"
	"github.com/nugget/message-agent-host/internal/taskstore"
	"github.com/nugget/message-agent-host/internal/verify"
)

const defaultMaxIterations = 10

// Service owns the full per-message pipeline described by the
// specification: history, journal and task bookkeeping, the tool-use
// loop, and the verification loop, wired against the Channel Manager,
// MCP Client Manager and Skill Registry.
type Service struct {
	persona  config.PersonaConfig
	model    string
	llm      llm.Client
	history  *historystore.Store
	journal  *journal.Journal
	tasks    *taskstore.Store
	channels *channel.Manager
	mcpMgr   *mcp.Manager
	skills   *skills.Registry
	mutex    *taskmgr.ConversationMutex

	verifyCfg     verify.Config
	verifier      *verify.Composite
	maxIterations int

	githubCfg config.GitHubToolConfig
	github    *github.Client

	logger *slog.Logger

	mu           sync.Mutex
	lastResponse map[string]string // "channelId:conversationId" -> last assistant text, for /retry
}

// New creates a pipeline Service and registers its builtin skills
// (without executors — see BindBuiltins).
func New(
	persona config.PersonaConfig,
	model string,
	llmClient llm.Client,
	history *historystore.Store,
	j *journal.Journal,
	tasks *taskstore.Store,
	channels *channel.Manager,
	mcpMgr *mcp.Manager,
	registry *skills.Registry,
	verifyCfg verify.Config,
	verifier *verify.Composite,
	githubCfg config.GitHubToolConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		persona:       persona,
		model:         model,
		llm:           llmClient,
		history:       history,
		journal:       j,
		tasks:         tasks,
		channels:      channels,
		mcpMgr:        mcpMgr,
		skills:        registry,
		mutex:         taskmgr.NewConversationMutex(),
		verifyCfg:     verifyCfg,
		verifier:      verifier,
		maxIterations: defaultMaxIterations,
		githubCfg:     githubCfg,
		logger:        logger.With("component", "agent"),
		lastResponse:  make(map[string]string),
	}
	if githubCfg.Enabled {
		s.github = github.NewClient(nil).WithAuthToken(githubCfg.Token)
	}
	s.registerBuiltins()
	return s
}

// BindBuiltins installs executors for builtin skills once the Service
// itself exists — the late-binding resolution of the cyclic dependency
// between the Skill Registry (which the pipeline consults) and the
// pipeline (which builtin skills act on).
func (s *Service) BindBuiltins() error {
	if err := s.skills.Bind("clear", s.execClear); err != nil {
		return err
	}
	if err := s.skills.Bind("retry", s.execRetry); err != nil {
		return err
	}
	if s.githubCfg.Enabled {
		if err := s.skills.Bind("github", s.execGithub); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) registerBuiltins() {
	s.skills.RegisterBuiltin(skills.Skill{
		Name:          "clear",
		Description:   "Clear this conversation's history.",
		UserInvocable: true,
	})
	s.skills.RegisterBuiltin(skills.Skill{
		Name:          "retry",
		Description:   "Resend the last response.",
		UserInvocable: true,
	})
	if s.githubCfg.Enabled {
		s.skills.RegisterBuiltin(skills.Skill{
			Name:           "github",
			Description:    "List or act on issues and pull requests in the configured GitHub repository. Arguments are a short natural-language command, e.g. \"list open issues\", \"list open pull requests\", or \"create issue: <title> | <body>\".",
			ModelInvocable: true,
		})
	}
}

func convKey(channelID, conversationID string) string {
	return channelID + ":" + conversationID
}

func (s *Service) setLastResponse(channelID, conversationID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponse[convKey(channelID, conversationID)] = text
}

func (s *Service) getLastResponse(channelID, conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.lastResponse[convKey(channelID, conversationID)]
	return text, ok
}

// execClear implements the /clear builtin: empties the conversation's
// history and returns a synchronous confirmation.
func (s *Service) execClear(ctx context.Context, argsText string) (string, bool, error) {
	channelID, conversationID, ok := fromContext(ctx)
	if !ok {
		return "", false, fmt.Errorf("clear: no conversation in context")
	}
	release := s.mutex.Acquire(convKey(channelID, conversationID))
	err := s.history.Clear(channelID, conversationID)
	release.Unlock()
	if err != nil {
		return "", false, err
	}
	return "Conversation history cleared.", true, nil
}

// execRetry implements the /retry builtin: resends the last recorded
// assistant response for this conversation.
func (s *Service) execRetry(ctx context.Context, argsText string) (string, bool, error) {
	channelID, conversationID, ok := fromContext(ctx)
	if !ok {
		return "", false, fmt.Errorf("retry: no conversation in context")
	}
	text, ok := s.getLastResponse(channelID, conversationID)
	if !ok {
		return "No previous response to retry.", true, nil
	}
	return text, true, nil
}

// conversationKey is a context key carrying the (channelId,
// conversationId) pair for builtin skill executors, which are invoked
// generically through skills.Registry.Execute and so can't take it as
// a parameter.
type conversationKeyType struct{}

var conversationKey = conversationKeyType{}

type conversationRef struct {
	channelID      string
	conversationID string
}

func withConversation(ctx context.Context, channelID, conversationID string) context.Context {
	return context.WithValue(ctx, conversationKey, conversationRef{channelID, conversationID})
}

func fromContext(ctx context.Context) (channelID, conversationID string, ok bool) {
	ref, ok := ctx.Value(conversationKey).(conversationRef)
	if !ok {
		return "", "", false
	}
	return ref.channelID, ref.conversationID, true
}

// systemPrompt builds the messages array's leading system entry.
func (s *Service) systemPrompt() string {
	return s.persona.SystemPrompt
}

// slashCommand reports whether text is a slash-dispatchable command,
// returning the bare name and the remaining argument text.
func slashCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	name, args, found := strings.Cut(rest, " ")
	if !found {
		name = rest
	}
	return strings.TrimSpace(name), strings.TrimSpace(args), name != ""
}
