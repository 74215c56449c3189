package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.WithField("domain", "player").Debug("handled")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["domain"] != "player" {
		t.Fatalf("domain field = %v", line["domain"])
	}
	if line["msg"] != "handled" {
		t.Fatalf("msg field = %v", line["msg"])
	}
}

func TestNewRejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected format error")
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("quiet")
	if strings.Contains(buf.String(), "quiet") {
		t.Fatal("expected info to be filtered at warn level")
	}
}

func TestFromContext(t *testing.T) {
	stored := logrus.New()
	ctx := WithLogger(context.Background(), stored)
	if FromContext(ctx, nil) != stored {
		t.Fatal("expected stored logger")
	}
	if FromContext(context.Background(), nil) == nil {
		t.Fatal("expected discard fallback")
	}
}
