// Package ai is the admin assistant. Gemini decides which register tools to
// call; every tool goes through the same services the HTTP API uses, so the
// assistant obeys the same stock and locking rules as a cashier.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-pos-register/internal/catalog"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/shift"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	DefaultModel = "gemini-2.0-flash-001"
	// maxToolRounds stops a model that keeps calling tools forever.
	maxToolRounds = 6
)

var ErrNoAnswer = errors.New("ai: model returned no answer")

// Deps are the services the tools act on.
type Deps struct {
	DB        *gorm.DB
	Inventory *inventory.Ledger
	Catalog   *catalog.Service
	Shifts    *shift.Manager
}

// chatSession is the part of *genai.ChatSession the agent drives.
type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Agent struct {
	client    *genai.Client
	modelName string
	deps      Deps
	log       zerolog.Logger
	now       func() time.Time
	startChat func(tools []*genai.Tool, system string) chatSession
}

// New connects to Gemini with apiKey.
func New(ctx context.Context, apiKey, modelName string, deps Deps, log zerolog.Logger) (*Agent, error) {
	if apiKey == "" {
		return nil, errors.New("ai: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: new client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	a := newAgent(deps, log)
	a.client = client
	a.modelName = modelName
	a.startChat = func(tools []*genai.Tool, system string) chatSession {
		model := client.GenerativeModel(a.modelName)
		model.Tools = tools
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
		return model.StartChat()
	}
	return a, nil
}

func newAgent(deps Deps, log zerolog.Logger) *Agent {
	return &Agent{
		deps: deps,
		log:  log.With().Str("component", "ai").Logger(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *Agent) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Ask answers an admin question, running tool calls as the model requests
// them. actorID is recorded on any stock movement a tool makes.
func (a *Agent) Ask(ctx context.Context, message string, actorID uint) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("ai: message is required")
	}

	session := a.startChat(toolDeclarations(), a.systemPrompt())
	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("ai: send: %w", err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return replyText(resp)
		}

		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result := a.executeTool(ctx, call.Name, call.Args, actorID)
			a.log.Info().Str("tool", call.Name).Uint("actor_id", actorID).Msg("assistant tool call")
			replies = append(replies, genai.FunctionResponse{Name: call.Name, Response: result})
		}
		resp, err = session.SendMessage(ctx, replies...)
		if err != nil {
			return "", fmt.Errorf("ai: send tool results: %w", err)
		}
	}
	return "", fmt.Errorf("ai: gave up after %d tool rounds", maxToolRounds)
}

func (a *Agent) systemPrompt() string {
	today := a.now().Format("2006-01-02")
	return fmt.Sprintf(`Today is %s. You are the assistant of a store's point of sale.

RULES:
1. When the user names a product, call 'check_inventory' to find its ID. Never ask the user for IDs.
2. For price, cost or stock questions, call 'check_inventory' and read the result.
3. Stock changes go through 'adjust_stock' with a signed delta and a short note. Never set stock directly.
4. For sales or revenue, call 'get_sales_report'. Amounts are in pesos.
5. For "who is on the register" or drawer questions, call 'get_open_shift'.
6. If a tool returns an error, explain it plainly and do not retry blindly.`, today)
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if call, ok := part.(genai.FunctionCall); ok {
				calls = append(calls, call)
			}
		}
		break
	}
	return calls
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoAnswer
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "I completed the action.", nil
	}
	return b.String(), nil
}
