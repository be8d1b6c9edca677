package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/docvault/internal/events"
)

func TestFromContext(t *testing.T) {
	logger := events.FromContext(context.Background())
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	logger := events.Discard()

	ctx := events.WithLogger(context.Background(), logger)
	assert.Same(t, logger, events.FromContext(ctx))
}

func TestWithDocumentID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithDocumentID(ctx, "doc-42")
	ctx = events.WithOperation(ctx, "ingest")

	assert.Equal(t, "doc-42", events.GetDocumentID(ctx))
	assert.Equal(t, "ingest", events.GetOperation(ctx))

	events.FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"document_id":"doc-42"`)
	assert.Contains(t, buf.String(), `"op":"ingest"`)
}

func TestContextGettersEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, events.GetDocumentID(ctx))
	assert.Empty(t, events.GetOperation(ctx))
}
