package firestore

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rpattn/reiteradas/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(status.Error(codes.NotFound, "no doc")), repository.ErrNotFound)

	err := translate(status.Error(codes.FailedPrecondition, "The query requires an index"))
	assert.ErrorIs(t, err, repository.ErrIndexRequired)
	assert.Contains(t, err.Error(), "requires an index")

	plain := errors.New("unavailable")
	assert.Equal(t, plain, translate(plain))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "reinteradas", cfg.RecordsCollection)
	assert.Equal(t, "uploads", cfg.UploadsCollection)
}
