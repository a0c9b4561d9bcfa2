package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lab-booking-backend/internal/labfiles"
)

// ListLabs returns the lab names in alphabetical order.
func (h *Handler) ListLabs(c *gin.Context) {
	names, err := h.labs.ListLabs(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

type addLabRequest struct {
	Name string `json:"name" form:"name"`
}

// AddLab creates a lab and its document folder.
func (h *Handler) AddLab(c *gin.Context) {
	var req addLabRequest
	if !bind(c, &req) {
		return
	}
	lab, err := h.labs.AddLab(c.Request.Context(), req.Name, actor(c).Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.labCache != nil {
		h.labCache.Flush()
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Success", "name": lab.Name})
}

// ListFiles returns the names of a lab's documents.
func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.labs.List(c.Request.Context(), c.Param("lab"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// DownloadFile streams a lab document.
func (h *Handler) DownloadFile(c *gin.Context) {
	path, err := h.labs.Path(c.Request.Context(), c.Param("lab"), c.Param("file"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(path, c.Param("file"))
}

// UploadFile stores the multipart "file" field as the lab's document.
func (h *Handler) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.fail(c, labfiles.ErrFileRequired)
		return
	}
	f, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	if err := h.labs.Upload(c.Request.Context(), c.Param("lab"), header.Filename, f); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "File uploaded successfully"})
}

// DeleteFile removes a lab document.
func (h *Handler) DeleteFile(c *gin.Context) {
	if err := h.labs.Delete(c.Request.Context(), c.Param("lab"), c.Param("file")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}
