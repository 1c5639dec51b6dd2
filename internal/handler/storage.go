package handler

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/storage"
)

// StorageHandler uploads and serves consultation attachments.
type StorageHandler struct {
	Disk  *storage.Disk
	Rooms RoomReader
}

func NewStorageHandler(d *storage.Disk, rooms RoomReader) *StorageHandler {
	return &StorageHandler{Disk: d, Rooms: rooms}
}

// Upload handles PUT /v1/storage/:bucket/<room>/<name> with the raw object as
// the body. Only participants of <room> may upload.
func (h *StorageHandler) Upload(c echo.Context) error {
	if c.Param("bucket") != storage.Attachments {
		return notFoundJSON(c, "bucket not found")
	}
	objectPath, err := storage.CleanPath(c.Param("*"))
	if err != nil || !strings.Contains(objectPath, "/") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid object path"})
	}
	room := strings.SplitN(objectPath, "/", 2)[0]
	if _, err := participantRoom(c, h.Rooms, room); err != nil {
		return roomError(c, err)
	}

	n, err := h.Disk.Put(storage.Attachments, objectPath, c.Request().Body)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	case errors.Is(err, storage.ErrExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "object already exists"})
	case err != nil:
		log.Printf("storage: put %s: %v", objectPath, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"path": objectPath,
		"size": n,
		"url":  h.Disk.URL(storage.Attachments, objectPath),
	})
}

// Download handles GET /storage/:bucket/* as a public read.
func (h *StorageHandler) Download(c echo.Context) error {
	f, err := h.Disk.Open(c.Param("bucket"), c.Param("*"))
	if err != nil {
		if errors.Is(err, storage.ErrBadPath) || errors.Is(err, os.ErrNotExist) {
			return notFoundJSON(c, "object not found")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "read failed"})
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		return notFoundJSON(c, "object not found")
	}
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Response(), c.Request(), path.Base(st.Name()), st.ModTime(), f)
	return nil
}
