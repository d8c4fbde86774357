package server

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"nokoroa/internal/database"
	"nokoroa/internal/middleware"
	"nokoroa/internal/models"
	"nokoroa/internal/repository"
	"nokoroa/internal/service"
	"nokoroa/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// respondError renders err with the status its code maps to. Store outages
// become 503; other unclassified failures are logged and rendered opaquely.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	if database.IsUnavailable(err) {
		slog.ErrorContext(c.UserContext(), "store unavailable",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusServiceUnavailable, models.NewUnavailableError(err))
	}

	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, status, err)
}

func badRequest(c *fiber.Ctx, msg string) error {
	_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msg))
	return errResponseWritten
}

// parsePagination reads limit and offset. Absent values take the defaults;
// malformed or out-of-range ones are rejected with a 400.
func parsePagination(c *fiber.Ctx) (service.Pagination, error) {
	limit, err := queryInt(c, "limit", repository.DefaultLimit)
	if err != nil {
		return service.Pagination{}, err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return service.Pagination{}, err
	}
	if verr := validation.ValidatePage(limit, offset, repository.MaxLimit); verr != nil {
		return service.Pagination{}, badRequest(c, verr.Error())
	}
	return service.Pagination{Limit: limit, Offset: offset}, nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(c, key+" must be an integer")
	}
	return v, nil
}

func queryFloat(c *fiber.Ctx, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, badRequest(c, key+" must be a number")
	}
	return &v, nil
}

func queryUint(c *fiber.Ctx, key string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return nil, badRequest(c, key+" must be a positive integer")
	}
	id := uint(v)
	return &id, nil
}

// splitList splits a comma-separated query value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, badRequest(c, "Invalid "+humanizeParam(param))
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "postId" -> "post ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

func currentUser(c *fiber.Ctx) (uint, error) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Authorization required"))
		return 0, errResponseWritten
	}
	return userID, nil
}
