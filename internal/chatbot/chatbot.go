// Package chatbot answers visitor questions through a chat-completion model
// with the Greenway host persona.
package chatbot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/apperr"
)

const (
	DefaultModel     = openai.GPT4oMini
	DefaultMaxTokens = 150
	requestTimeout   = 20 * time.Second
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

const persona = `You are "Greenway-bot", the virtual host of Greenway, an eco-tourism project and native bee (Melipona) sanctuary that runs the butterfly park "EcoParque Paraiso Mariposa" on a family farm in La Esperanza, La Mesa, Cundinamarca, Colombia (RNT 204618).

Rules:
1. Be friendly, upbeat and nature-minded. Help visitors find and book an experience.
2. Always answer in the language of the question.
3. Keep answers short, like a chat, and point visitors to the section of the site where they can find what they need.
4. Never invent prices, availability, dates or booking steps. Send the visitor to the "Experiences" section, where each experience has a "Book" button.
5. Only talk about Greenway, Paraiso Mariposa and eco-tourism. Politely decline unrelated topics and offer to help with an experience instead.`

// Completer is the subset of the OpenAI client used by the bot.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures a Bot.
type Options struct {
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// Bot sends questions to the model through a circuit breaker.
type Bot struct {
	client    Completer
	cb        *gobreaker.CircuitBreaker
	model     string
	maxTokens int
	logger    *zap.Logger
}

// New creates a bot over client.
func New(client Completer, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Bot{
		client:    client,
		cb:        CircuitBreaker("chatbot", logger),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// NewOpenAI creates a bot backed by the OpenAI API.
func NewOpenAI(apiKey string, opts Options) *Bot {
	return New(openai.NewClient(apiKey), opts)
}

// CircuitBreaker opens after three consecutive failures and lets one probe
// through after ten seconds.
func CircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		Interval:    0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Ask returns the bot's answer to question. Provider failures and an open
// breaker are returned as service errors.
func (b *Bot) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     b.model,
			MaxTokens: b.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: persona},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("completion has no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.Service("the assistant is resting, try again shortly", err)
		}
		b.logger.Error("chat completion failed", zap.Error(err))
		return "", apperr.Service("the assistant could not answer, try again shortly", err)
	}
	return result.(string), nil
}
