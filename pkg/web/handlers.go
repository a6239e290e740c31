package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/hub"
)

// minConfidence gates classifier predictions; anything below is noise.
const minConfidence = 0.1

// Prediction is the payload posted by the gesture classifier.
type Prediction struct {
	Type    string  `json:"type"`
	Class   string  `json:"class"`
	Conf    float64 `json:"conf"`
	TrialID string  `json:"trial_id"`
}

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// handleTrigger accepts a classifier prediction and starts the mapped
// session. Low-confidence predictions are acknowledged but ignored.
func (s *Server) handleTrigger(c *fiber.Ctx) error {
	var pred Prediction
	if err := c.BodyParser(&pred); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid prediction payload",
		})
	}
	if pred.Type != "pred" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown message type " + pred.Type,
		})
	}
	if pred.Conf < minConfidence {
		log.Debug("prediction below confidence gate",
			"class", pred.Class, "conf", pred.Conf, "trial", pred.TrialID)
		return c.JSON(fiber.Map{
			"accepted": false,
			"reason":   "low_confidence",
		})
	}

	if s.OnTrigger == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "trigger handler not configured",
		})
	}
	if err := s.OnTrigger(pred.Class, pred.Conf, pred.TrialID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"accepted": false,
			"error":    err.Error(),
		})
	}

	log.Info("prediction accepted", "class", pred.Class, "conf", pred.Conf, "trial", pred.TrialID)
	return c.JSON(fiber.Map{
		"accepted": true,
		"class":    pred.Class,
		"trial_id": pred.TrialID,
	})
}

// handleCancel stops the running session, if any.
func (s *Server) handleCancel(c *fiber.Ctx) error {
	if s.OnCancel == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "cancel handler not configured",
		})
	}
	if err := s.OnCancel(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"cancelled": true})
}

// handleProgressWS upgrades a monitor connection and streams progress
// events until the client leaves.
func (s *Server) handleProgressWS(c *websocket.Conn) {
	// Send the current snapshot so monitors don't start blind.
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	c.WriteJSON(hub.Event{Type: "status", Data: state})

	hub.NewClient(s.progressHub, c).Run()
}
