// Package server is a development chat backend speaking the same wire
// protocol as the client: POST /api/chat with a text message or a base64
// recording, answered by a language model.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vox/llm"
	"vox/transcriber"
)

const ChatPath = "/api/chat"

const maxBody = 25 << 20

// Reply texts.
const (
	msgUnexpected  = "An unexpected error occurred."
	msgNoSpeech    = "Could not recognize speech from audio."
	msgNoInput     = "No message or recognizable audio received."
	msgNoModel     = "AI model not initialized."
	msgGenerateErr = "Sorry, I encountered an error generating a response."
)

type Config struct {
	Transcriber transcriber.Transcriber // nil rejects audio
	Model       llm.Generator           // nil answers every message with msgNoModel
	Logger      zerolog.Logger
}

type Server struct {
	app *fiber.App
	cfg Config
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.app = fiber.New(fiber.Config{
		AppName:               "vox dev backend",
		BodyLimit:             maxBody,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	s.app.Use(cors.New())
	s.app.Use(s.logRequests)
	s.app.Post(ChatPath, s.handleChat)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.cfg.Logger.Info().Str("addr", addr).Msg("listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type chatRequest struct {
	Message string `json:"message"`
	Audio   string `json:"audio"`
}

func reply(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"message": message})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	logger := s.logger(c)

	var req *chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req == nil {
		logger.Error().Err(err).Msg("invalid request body")
		return reply(c, fiber.StatusInternalServerError, msgUnexpected)
	}

	text := req.Message
	inputMethod := "text"
	if req.Audio != "" {
		inputMethod = "audio"
		heard, err := s.recognize(c.UserContext(), req.Audio)
		if err != nil {
			logger.Error().Err(err).Msg("speech recognition failed")
			return reply(c, fiber.StatusBadRequest, msgNoSpeech)
		}
		text = heard
	}

	if text == "" {
		return reply(c, fiber.StatusBadRequest, msgNoInput)
	}
	if s.cfg.Model == nil {
		return reply(c, fiber.StatusInternalServerError, msgNoModel)
	}

	answer, err := s.cfg.Model.Reply(c.UserContext(), text)
	if err != nil {
		logger.Error().Err(err).Msg("generation failed")
		return reply(c, fiber.StatusInternalServerError, msgGenerateErr)
	}
	logger.Info().Str("input_method", inputMethod).Int("reply_len", len(answer)).Msg("generated response")

	return c.JSON(fiber.Map{
		"message":      answer,
		"input_method": inputMethod,
	})
}

func (s *Server) recognize(ctx context.Context, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	if s.cfg.Transcriber == nil {
		return "", errors.New("no transcriber configured")
	}
	mediaType := transcriber.DetectMediaType(data)
	res, err := s.cfg.Transcriber.Transcribe(ctx, data, mediaType)
	if err != nil {
		return "", fmt.Errorf("transcribe %s (%d bytes): %w", mediaType, len(data), err)
	}
	return res.Text, nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	switch code {
	case fiber.StatusNotFound:
		return c.Status(code).JSON(fiber.Map{
			"error":   "Endpoint not found",
			"message": "The requested endpoint does not exist.",
		})
	case fiber.StatusInternalServerError:
		s.logger(c).Error().Err(err).Msg("internal error")
		return c.Status(code).JSON(fiber.Map{
			"error":   "Internal server error",
			"message": "Something went wrong on our end.",
		})
	default:
		return c.Status(code).JSON(fiber.Map{
			"error":   fe.Message,
			"message": fe.Message,
		})
	}
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	s.logger(c).Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Int("body_bytes", len(c.Body())).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return err
}

func (s *Server) logger(c *fiber.Ctx) *zerolog.Logger {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	l := s.cfg.Logger.With().Str("request_id", id).Logger()
	return &l
}
