package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

func TestErrorStatus(t *testing.T) {
	name := func(id string) string { return id }

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{
			name:     "unknown target",
			err:      &domainwf.TransitionError{Kind: domainwf.ErrTransitionNotAllowed, From: "new", To: "nowhere", Cause: domainwf.ErrNotFound},
			wantCode: http.StatusUnprocessableEntity,
			wantText: "cannot move from new to nowhere directly",
		},
		{
			name:     "lock wait ran out",
			err:      fmt.Errorf("%w: patient p1: %v", domainwf.ErrLocked, context.DeadlineExceeded),
			wantCode: http.StatusConflict,
			wantText: "nothing was saved",
		},
		{
			name:     "write timed out",
			err:      &domainwf.StorageError{Op: "apply transition", Err: context.DeadlineExceeded},
			wantCode: http.StatusGatewayTimeout,
			wantText: "state unknown",
		},
		{
			name:     "storage",
			err:      &domainwf.StorageError{Op: "list history", Err: errors.New("disk I/O error")},
			wantCode: http.StatusInternalServerError,
			wantText: "storage unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, text := errorStatus(tt.err, name)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, text, tt.wantText)
		})
	}
}
