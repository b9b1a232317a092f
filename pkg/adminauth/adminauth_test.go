package adminauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHash(t *testing.T) {
	h := Hash("correct horse battery staple")
	if h[:len(HashPrefix)] != HashPrefix {
		t.Fatalf("expected hash to start with %q, got %q", HashPrefix, h)
	}
	if h != Hash("correct horse battery staple") {
		t.Fatal("expected Hash to be deterministic")
	}
	if h == Hash("wrong password") {
		t.Fatal("expected different passwords to hash differently")
	}
}

func TestVerify(t *testing.T) {
	hashes := []string{Hash("pwd-one"), Hash("pwd-two")}

	tests := []struct {
		name     string
		plain    string
		expected bool
	}{
		{"matches first hash", "pwd-one", true},
		{"matches second hash", "pwd-two", true},
		{"no match", "pwd-three", false},
		{"empty password", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(hashes, tt.plain); got != tt.expected {
				t.Errorf("Verify(%q) = %v, want %v", tt.plain, got, tt.expected)
			}
		})
	}
}

func TestExtractPassword(t *testing.T) {
	t.Run("prefers basic auth", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		req.SetBasicAuth("admin", "basic-pwd")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if got := ExtractPassword(c, "body-pwd"); got != "basic-pwd" {
			t.Errorf("ExtractPassword() = %q, want %q", got, "basic-pwd")
		}
	})

	t.Run("falls back to body password", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if got := ExtractPassword(c, "  body-pwd  "); got != "body-pwd" {
			t.Errorf("ExtractPassword() = %q, want %q", got, "body-pwd")
		}
	})
}

func TestRequire(t *testing.T) {
	hashes := []string{Hash("secret")}

	tests := []struct {
		name    string
		bodyPwd string
		wantErr bool
	}{
		{"correct password", "secret", false},
		{"wrong password", "nope", true},
		{"empty password", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPut, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := Require(c, hashes, tt.bodyPwd)
			if (err != nil) != tt.wantErr {
				t.Errorf("Require() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
