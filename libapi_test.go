package pullflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSourceExportsPropagateErrors(t *testing.T) {
	if _, err := NewSource(nil, nil); !errors.Is(err, ErrReceiverRequired) {
		t.Fatalf("expected receiver required error, got %v", err)
	}
}

func TestReceiveModeExports(t *testing.T) {
	if ReceivePeekLock.String() != "peeklock" {
		t.Fatalf("unexpected peek-lock name %q", ReceivePeekLock.String())
	}
	if ReceiveAndDelete.String() != "receiveanddelete" {
		t.Fatalf("unexpected receive-and-delete name %q", ReceiveAndDelete.String())
	}

	mode, err := ParseReceiveMode("peeklock")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if mode != ReceivePeekLock {
		t.Fatalf("expected peek-lock, got %v", mode)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := MarshalJSON(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := UnmarshalJSON([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestIdentifierExport(t *testing.T) {
	first := CreateULID()
	second := CreateULID()
	if first == "" || first == second {
		t.Fatalf("expected distinct ULIDs, got %q and %q", first, second)
	}
}

func TestAckProviderExport(t *testing.T) {
	provider := NewSettlerAckProvider(ReceiveAndDelete)
	ack := provider.AckFor(nil)
	if err := ack.Complete(context.Background()); !errors.Is(err, ErrManualAckUnsupported) {
		t.Fatalf("expected manual ack denial, got %v", err)
	}
}

func TestConfigValidationExport(t *testing.T) {
	cfg := &Config{Transport: "channel", Entity: "orders", ReceiveTimeout: time.Second}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	if err := ValidateConfig(nil); err == nil {
		t.Fatal("expected validation error for nil config")
	}
	if err := ValidateConfig(&Config{Transport: "kafka"}); err == nil {
		t.Fatal("expected validation error for kafka without brokers")
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NopLogger()
	logger.Info("boot", LogFields{"component": "test"})
}
