// Package mcp exposes the document operations as Model Context Protocol tools.
package mcp

// ListDocumentsInput defines the input parameters for the list_documents tool.
// This tool takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains every indexed document identifier.
type ListDocumentsOutput struct {
	// Documents is all document identifiers, sorted.
	Documents []string `json:"documents"`
	// Count is the number of documents.
	Count int `json:"count"`
}

// AskDocumentInput defines the input parameters for the ask_document tool.
type AskDocumentInput struct {
	// DocumentID is the identifier returned on upload (file name without .pdf).
	DocumentID string `json:"document_id" jsonschema:"identifier of an uploaded document, the file name without .pdf"`
	// Question is the natural-language question.
	Question string `json:"question" jsonschema:"question to answer from the document"`
}

// AskDocumentOutput contains the answer.
type AskDocumentOutput struct {
	Answer     string `json:"answer"`
	DocumentID string `json:"document_id"`
	// Found is false when no document has the given identifier.
	Found bool `json:"found"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"identifier of the document to delete"`
}

// DeleteDocumentOutput reports the deletion.
type DeleteDocumentOutput struct {
	Message string `json:"message"`
	// Found is false when no document has the given identifier.
	Found bool `json:"found"`
}
