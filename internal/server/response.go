package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/echo/v4"

	"steamgate/internal/core"
)

const (
	headerETag        = "ETag"
	headerIfNoneMatch = "If-None-Match"
)

// respond writes a successful envelope holding data.
func respond(c echo.Context, data ...any) error {
	if data == nil {
		data = []any{}
	}
	return writeEnvelope(c, http.StatusOK, core.Envelope{Data: data})
}

// writeEnvelope serializes env, tags it with an ETag and answers 304 when
// the caller already holds the same successful body.
func writeEnvelope(c echo.Context, status int, env core.Envelope) error {
	if env.Data == nil {
		env.Data = []any{}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	c.Response().Header().Set(headerETag, etag)
	if status == http.StatusOK && c.Request().Header.Get(headerIfNoneMatch) == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSONBlob(status, body)
}

// handleError converts gateway errors to the 500 envelope. Only the public
// message of a core.Error reaches the caller.
func handleError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	core.Logger(ctx).Error("request failed",
		"route", c.Path(),
		"kind", core.KindOf(err),
		"error", err,
	)
	return writeEnvelope(c, http.StatusInternalServerError, core.Envelope{Error: core.PublicMessage(err)})
}

// httpErrorHandler renders router and middleware errors (404, 405, 413,
// recovered panics) with the same envelope as handler errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := core.PublicMessage(err)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
	}

	if status >= http.StatusInternalServerError {
		core.Logger(c.Request().Context()).Error("unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = writeEnvelope(c, status, core.Envelope{Error: msg})
	}
	if err != nil {
		core.Logger(c.Request().Context()).Error("failed to write error response", "error", err)
	}
}
