package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/apicall/apicall/internal/client"
	"github.com/apicall/apicall/internal/errs"
)

// classify 把调用错误映射为 HTTP 状态码与错误代码。
func classify(err error) (int, string) {
	var statusErr *errs.StatusError
	switch {
	case errors.Is(err, client.ErrUnknownAction):
		return fiber.StatusNotFound, "action_unknown"
	case errs.IsValidation(err):
		return fiber.StatusBadRequest, "invalid_argument"
	case errs.IsCanceled(err):
		return fiber.StatusGatewayTimeout, "call_canceled"
	case errors.As(err, &statusErr):
		return fiber.StatusBadGateway, "upstream_status"
	case errs.IsTransport(err):
		return fiber.StatusBadGateway, "upstream_unreachable"
	case errs.IsConfig(err):
		return fiber.StatusInternalServerError, "config_error"
	default:
		return fiber.StatusInternalServerError, "call_failed"
	}
}

func renderError(c fiber.Ctx, status int, code string, err error) error {
	payload := fiber.Map{
		"error":   code,
		"message": err.Error(),
	}
	var statusErr *errs.StatusError
	if errors.As(err, &statusErr) {
		payload["upstream_status"] = statusErr.StatusCode
	}
	return c.Status(status).JSON(payload)
}
