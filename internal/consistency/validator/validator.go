// Package validator provides input validation for incoming chunk-set
// requests. It enforces operation, document id, and per-chunk span
// constraints and returns per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/ragplatform/chunksync/internal/consistency"
)

const maxChunksPerRequest = 10000

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateRequest checks an incoming chunk-set request. Store requests
// must carry a non-empty chunk set with valid spans; delete requests must
// carry no chunks at all.
func ValidateRequest(req *consistency.Request) error {
	errs := make(map[string]string)

	switch req.Operation {
	case consistency.OperationStore, consistency.OperationDelete:
	case "":
		errs["operation"] = "operation is required"
	default:
		errs["operation"] = fmt.Sprintf("unknown operation %q", req.Operation)
	}
	if req.DocumentID <= 0 {
		errs["document_id"] = "document id must be a positive integer"
	}

	switch req.Operation {
	case consistency.OperationDelete:
		if len(req.Chunks) > 0 {
			errs["chunks"] = "delete requests must not carry chunks"
		}
	case consistency.OperationStore:
		if len(req.Chunks) == 0 {
			errs["chunks"] = "store requests require at least one chunk"
			break
		}
		if len(req.Chunks) > maxChunksPerRequest {
			errs["chunks"] = fmt.Sprintf("at most %d chunks per request", maxChunksPerRequest)
			break
		}
		prevStart := -1
		for i, c := range req.Chunks {
			field := fmt.Sprintf("chunks[%d]", i)
			if strings.TrimSpace(c.Text) == "" {
				errs[field+".text"] = "chunk text must not be empty"
			}
			if c.StartChar < 0 {
				errs[field+".start_char"] = "start char must not be negative"
			}
			if c.EndChar <= c.StartChar {
				errs[field+".end_char"] = "end char must be greater than start char"
			}
			if c.TokenCount <= 0 {
				errs[field+".token_count"] = "token count must be positive"
			}
			if c.StartChar < prevStart {
				errs[field+".start_char"] = "chunk spans must be in non-decreasing order"
			}
			prevStart = c.StartChar
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
