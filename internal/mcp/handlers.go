package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/pdfchat-server/internal/service"
)

// makeListHandler creates the list_documents tool handler.
func makeListHandler(svc DocumentService) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		ids, err := svc.List(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		if ids == nil {
			ids = []string{} // Ensure non-nil for JSON marshaling
		}

		return nil, ListDocumentsOutput{
			Documents: ids,
			Count:     len(ids),
		}, nil
	}
}

// makeAskHandler creates the ask_document tool handler.
// An unknown identifier is a normal result with Found=false rather than a tool error.
func makeAskHandler(svc DocumentService) func(
	context.Context, *mcp.CallToolRequest, AskDocumentInput,
) (*mcp.CallToolResult, AskDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentInput) (
		*mcp.CallToolResult, AskDocumentOutput, error,
	) {
		res, err := svc.Ask(ctx, input.DocumentID, input.Question)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return nil, AskDocumentOutput{
					DocumentID: input.DocumentID,
					Found:      false,
				}, nil
			}
			return nil, AskDocumentOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}

		return nil, AskDocumentOutput{
			Answer:     res.Answer,
			DocumentID: res.DocumentID,
			Found:      true,
		}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
func makeDeleteHandler(svc DocumentService) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		msg, err := svc.Delete(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return nil, DeleteDocumentOutput{
					Message: fmt.Sprintf("Document '%s' not found", input.DocumentID),
					Found:   false,
				}, nil
			}
			return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
		}

		return nil, DeleteDocumentOutput{Message: msg, Found: true}, nil
	}
}
