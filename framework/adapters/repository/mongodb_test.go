package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMongoConfig_Validate(t *testing.T) {
	assert.Error(t, (MongoConfig{}).Validate(), "an empty URI must be rejected")
	assert.NoError(t, (MongoConfig{URI: "mongodb://localhost"}).Validate())
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.Equal(t, "projector", cfg.Database)
	assert.Empty(t, cfg.URI)
}

func TestTimeFromUnixNano_RoundTrips(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	got := timeFromUnixNano(want.UnixNano())
	assert.True(t, want.Equal(got), "expected %v, got %v", want, got)
	assert.Equal(t, time.UTC, got.Location())
}
