package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/VladKovDev/subgate-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type recordingRequester struct {
	requests []tgbotapi.Chattable
	err      error
}

func (r *recordingRequester) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	r.requests = append(r.requests, c)
	if r.err != nil {
		return nil, r.err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestCommandService_RegisterCommands(t *testing.T) {
	bot := &recordingRequester{}
	svc := NewCommandService(bot, logger.Noop())

	if err := svc.RegisterCommands(context.Background(), []int64{11, 22}); err != nil {
		t.Fatalf("RegisterCommands() error = %v", err)
	}
	if len(bot.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(bot.requests))
	}

	public := bot.requests[0].(tgbotapi.SetMyCommandsConfig)
	if public.Scope == nil || public.Scope.Type != "all_private_chats" {
		t.Errorf("public scope = %+v", public.Scope)
	}
	if len(public.Commands) != 1 || public.Commands[0].Command != "start" {
		t.Errorf("public commands = %+v", public.Commands)
	}

	for i, id := range []int64{11, 22} {
		admin := bot.requests[i+1].(tgbotapi.SetMyCommandsConfig)
		if admin.Scope == nil || admin.Scope.Type != "chat" || admin.Scope.ChatID != id {
			t.Errorf("admin scope = %+v, want chat %d", admin.Scope, id)
		}
		if len(admin.Commands) != 3 {
			t.Errorf("admin commands = %+v", admin.Commands)
		}
	}
}

func TestCommandService_NoAdmins(t *testing.T) {
	bot := &recordingRequester{}
	if err := NewCommandService(bot, logger.Noop()).RegisterCommands(context.Background(), nil); err != nil {
		t.Fatalf("RegisterCommands() error = %v", err)
	}
	if len(bot.requests) != 1 {
		t.Errorf("expected only the public registration, got %d requests", len(bot.requests))
	}
}

func TestCommandService_Error(t *testing.T) {
	bot := &recordingRequester{err: errors.New("Unauthorized")}
	err := NewCommandService(bot, logger.Noop()).RegisterCommands(context.Background(), []int64{1})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandService_Cancelled(t *testing.T) {
	bot := &recordingRequester{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewCommandService(bot, logger.Noop()).RegisterCommands(ctx, []int64{1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RegisterCommands() error = %v, want context.Canceled", err)
	}
}
