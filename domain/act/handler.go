package act

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arenaeval/server/pkg/apperror"
)

// Handler serves PUT /act/<env>, the only entry point into the
// dispatch/lifecycle engine.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a new act handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Act normalizes the request to V1 per its declared protocol_version,
// runs it through the dispatcher, and denormalizes the response back to the
// version the caller used.
func (h *Handler) Act(c echo.Context) error {
	envSlug := c.Param("env")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("failed to read request body")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return apperror.ErrBadRequest.WithMessage("malformed JSON body")
	}

	version, err := ParseVersion(raw)
	if err != nil {
		return err
	}

	var req RequestV1
	switch version {
	case 0:
		var v0 RequestV0
		if err := json.Unmarshal(body, &v0); err != nil {
			return apperror.ErrBadRequest.WithMessage("malformed request body")
		}
		v1, err := v0.ToV1()
		if err != nil {
			return err
		}
		req = *v1
	case 1:
		if err := json.Unmarshal(body, &req); err != nil {
			return apperror.ErrBadRequest.WithMessage("malformed request body")
		}
	default:
		return apperror.ErrBadRequest.WithMessage(fmt.Sprintf("unsupported protocol_version %d", version))
	}

	resp, err := h.dispatcher.Process(c.Request().Context(), envSlug, req)
	if err != nil {
		return err
	}

	if version == 0 {
		return c.JSON(http.StatusOK, resp.FromV1())
	}
	return c.JSON(http.StatusOK, resp)
}
