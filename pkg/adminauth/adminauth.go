// Package adminauth implements the admin credential check shared by every
// admin-only route: a password supplied either as HTTP Basic or as
// the JSON body field "admin-pwd", verified against any one of the server's
// configured sha256 hashes.
package adminauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arenaeval/server/pkg/apperror"
)

// HashPrefix tags a stored admin password hash so the scheme can evolve
// without breaking existing stored values.
const HashPrefix = "sha256:"

// Hash returns the prefix-tagged sha256 hash of plain, in the form stored by
// Config.Admin.PasswordHashesRaw.
func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return HashPrefix + hex.EncodeToString(sum[:])
}

// Verify reports whether plain matches any of the configured hashes. The
// server mints admin credentials out of band, so a fast general-purpose hash
// (no salt, no work factor) is an acceptable tradeoff.
func Verify(hashes []string, plain string) bool {
	candidate := Hash(plain)
	for _, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(h)) == 1 {
			return true
		}
	}
	return false
}

// ExtractPassword returns the admin password submitted on the request,
// preferring HTTP Basic auth over the JSON body field "admin-pwd" (bodyPwd,
// already bound by the caller from the request's admin-pwd field).
func ExtractPassword(c echo.Context, bodyPwd string) string {
	if _, pass, ok := c.Request().BasicAuth(); ok {
		return pass
	}
	return strings.TrimSpace(bodyPwd)
}

// Require verifies bodyPwd (or HTTP Basic) against hashes and returns
// apperror.ErrUnauthorized when nothing matches. Handlers call this after
// binding their own request struct, since the password field name and the
// rest of the body vary per route.
func Require(c echo.Context, hashes []string, bodyPwd string) error {
	pwd := ExtractPassword(c, bodyPwd)
	if pwd == "" || !Verify(hashes, pwd) {
		return apperror.ErrUnauthorized.WithMessage("invalid admin credentials")
	}
	return nil
}
