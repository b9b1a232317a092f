package environments

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugPattern(t *testing.T) {
	tests := []struct {
		name  string
		slug  string
		match bool
	}{
		{"simple slug", "nim-classic", true},
		{"dotted slug", "nim.v2", true},
		{"alnum slug", "Env123", true},
		{"slash rejected", "nim/classic", false},
		{"space rejected", "nim classic", false},
		{"empty rejected", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, SlugPattern.MatchString(tt.slug))
		})
	}
}

func TestService_Create_ValidatesBeforeTouchingRepository(t *testing.T) {
	svc := &Service{
		repo:     nil,
		registry: NewRegistry(),
		log:      slog.Default(),
	}

	t.Run("rejects invalid slug", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "bad slug!", CreateRequest{EnvClass: "nimlike"})
		assert.Error(t, err)
	})

	t.Run("rejects missing env_class", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "nim-classic", CreateRequest{})
		assert.Error(t, err)
	})

	t.Run("rejects unknown env_class", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "nim-classic", CreateRequest{EnvClass: "nonexistent"})
		assert.Error(t, err)
	})
}

func TestService_Capability_RejectsInactiveEnvironment(t *testing.T) {
	svc := &Service{
		repo:     nil,
		registry: NewRegistry(),
		log:      slog.Default(),
	}

	env := &Environment{Slug: "nim-classic", Status: Status("disabled")}
	_, err := svc.Capability(context.Background(), env)
	assert.Error(t, err)
}
