package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/threadvault/threadvault/internal/sysmem"
)

// FolderView exposes the current thread-to-folder mapping cache.
type FolderView interface {
	Mappings() map[string]string
}

type StatusHandler struct {
	logger  *slog.Logger
	folders FolderView
	prober  sysmem.Prober
}

func NewStatusHandler(log *slog.Logger, folders FolderView, prober sysmem.Prober) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{
		logger:  log.With(slog.String("handler", "status")),
		folders: folders,
		prober:  prober,
	}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/api/folders", h.Folders)
	e.GET("/api/memory", h.Memory)
}

func (h *StatusHandler) Folders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"folders": h.folders.Mappings(),
	})
}

func (h *StatusHandler) Memory(c echo.Context) error {
	snap, err := h.prober.Probe(c.Request().Context())
	if err != nil {
		h.logger.Error("memory probe failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "memory probe failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]uint64{
		"total_bytes":     snap.TotalBytes,
		"available_bytes": snap.AvailableBytes,
	})
}
