package chatbot

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	bot *Bot
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{bot: bot}
}

// RegisterRoutes mounts the FAQ on api. Both routes are public.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/faq", h.List)
	api.POST("/faq/ask", h.Ask)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.bot.Entries())
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.bot.Answer(req.Question))
}
