package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithChatCarriesIdentity(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithChat("tenant-1", "chat-1").Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "tenant-1" || fields["chat_id"] != "chat-1" {
		t.Fatalf("fields = %v, want tenant and chat identity", fields)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("nonsense"); got != zap.InfoLevel {
		t.Fatalf("parseLevel = %v, want info", got)
	}
	if got := parseLevel("WARN"); got != zap.WarnLevel {
		t.Fatalf("parseLevel = %v, want warn", got)
	}
}
