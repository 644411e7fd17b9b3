package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/apicall/apicall/internal/action"
)

// Caller 是网关依赖的调用核心，由 client.Client 实现。
type Caller interface {
	InvokeNamed(ctx context.Context, name string, args map[string]any) (any, error)
	Actions() []action.Summary
}

// AppOptions 控制 Fiber 应用的依赖与监听端口。
type AppOptions struct {
	Logger     *logrus.Logger
	Caller     Caller
	Gatherer   prometheus.Gatherer
	ListenPort int
}

const contextKeyRequestID = "_apicall_request_id"

// NewApp 构建网关应用：恢复中间件、请求 ID、调用路由与诊断路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Caller == nil {
		return nil, errors.New("caller is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware)

	handler := &callHandler{caller: opts.Caller, logger: opts.Logger}
	app.Post("/call/:action", handler.handle)
	app.Get("/call/:action", handler.handle)

	app.Get("/-/actions", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"actions": opts.Caller.Actions()})
	})
	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route_not_found"})
	})

	return app, nil
}

func requestIDMiddleware(c fiber.Ctx) error {
	reqID := c.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Locals(contextKeyRequestID, reqID)
	c.Set("X-Request-ID", reqID)
	return c.Next()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

type callHandler struct {
	caller Caller
	logger *logrus.Logger
}

// handle 以 JSON 对象（POST）或查询参数（GET）作为具名实参执行调用。
func (h *callHandler) handle(c fiber.Ctx) error {
	name := c.Params("action")
	args, err := requestArgs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_body",
			"message": err.Error(),
		})
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	value, err := h.caller.InvokeNamed(ctx, name, args)
	fields := logrus.Fields{
		"action":     "gateway_call",
		"target":     name,
		"request_id": RequestID(c),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		status, code := classify(err)
		fields["status"] = status
		h.logger.WithFields(fields).WithError(err).Warn("gateway call failed")
		return renderError(c, status, code, err)
	}
	h.logger.WithFields(fields).Debug("gateway call completed")
	return renderResult(c, value)
}

func requestArgs(c fiber.Ctx) (map[string]any, error) {
	args := make(map[string]any)
	if c.Method() == fiber.MethodGet {
		for key, value := range c.Queries() {
			args[key] = value
		}
		return args, nil
	}
	body := c.Body()
	if len(body) == 0 {
		return args, nil
	}
	if err := c.App().Config().JSONDecoder(body, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func renderResult(c fiber.Ctx, value any) error {
	switch v := value.(type) {
	case *http.Response:
		defer v.Body.Close()
		body, err := io.ReadAll(v.Body)
		if err != nil {
			return renderError(c, fiber.StatusBadGateway, "upstream_read_failed", err)
		}
		if contentType := v.Header.Get(fiber.HeaderContentType); contentType != "" {
			c.Set(fiber.HeaderContentType, contentType)
		}
		return c.Status(v.StatusCode).Send(body)
	case []byte:
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(v)
	case string:
		return c.SendString(v)
	default:
		return c.JSON(fiber.Map{"result": v})
	}
}
