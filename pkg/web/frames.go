package web

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-affect/pkg/aggregate"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// handleDetectFace analyses a frame inline (sync) or queues it and answers
// with the latest cached result.
func (s *Server) handleDetectFace(c *fiber.Ctx) error {
	if s.frames == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody{
			Error:     "face analysis unavailable",
			Timestamp: s.now(),
		})
	}

	var req DetectFaceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{
			Error:     "Invalid image format: " + err.Error(),
			Timestamp: s.now(),
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{
			Error:     "No image provided: " + validationMessage(err),
			Timestamp: s.now(),
		})
	}

	s.logger.Debug("frame received", "bytes", len(req.Image), "sync", req.Sync)

	if req.Sync {
		res := s.frames.AnalyzeSync(req.Image)
		s.logger.Debug("sync analysis",
			"faces_detected", res.FacesDetected,
			"emotion", res.Emotion,
			"processing_ms", res.ProcessingMs,
		)
		return c.JSON(res)
	}

	if _, err := s.frames.Enqueue(req.Image); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody{
				Error:     "Server is busy processing frames",
				Timestamp: s.now(),
			})
		}
		return err
	}
	return c.JSON(s.latest(statusProcessing))
}

// handleEmotionStatus returns the latest worker result.
func (s *Server) handleEmotionStatus(c *fiber.Ctx) error {
	return c.JSON(s.latest(statusNoData))
}

// latest renders the cached result, or empty with the given status.
func (s *Server) latest(empty string) any {
	if s.frames != nil {
		if e, ok := s.frames.Latest(); ok {
			return frameEvent{
				Status:    statusSuccess,
				Timestamp: unixSeconds(e.At),
				Result:    e.Result,
			}
		}
	}
	return fiber.Map{"status": empty, "timestamp": s.now()}
}

// handleEmotionAggregate summarises the history over ?window=<seconds>.
func (s *Server) handleEmotionAggregate(c *fiber.Ctx) error {
	window := aggregate.DefaultWindow
	if raw := strings.TrimSpace(c.Query("window")); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			window, err = aggregate.ParseWindow(secs)
		}
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody{
				Error:     "invalid window: " + raw,
				Timestamp: s.now(),
			})
		}
	}

	now := s.clock()
	var history []pipeline.Entry
	if s.frames != nil {
		history = s.frames.History()
	}

	report := aggregate.Compute(history, now, window)
	if report.Status == aggregate.StatusNoData {
		return c.JSON(fiber.Map{"status": statusNoData, "timestamp": unixSeconds(now)})
	}
	return c.JSON(aggregateResponse{Report: report, Timestamp: unixSeconds(now)})
}

// handleSystemInfo reports the analysis backend.
func (s *Server) handleSystemInfo(c *fiber.Ctx) error {
	resp := systemInfoResponse{Status: statusReady, Timestamp: s.now()}
	if s.backend != nil {
		resp.SystemInfo = s.backend.Describe()
	}
	if s.frames == nil {
		resp.Status = statusError
	}
	return c.JSON(resp)
}
