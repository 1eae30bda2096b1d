package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/ics"
	"orderlyflow/internal/model"
	"orderlyflow/internal/store"
)

// maxImportBytes bounds an uploaded iCalendar file.
const maxImportBytes = 8 << 20

func badRequest(c *gin.Context, format string, args ...any) {
	writeError(c, fmt.Errorf("%w: "+format, append([]any{calendar.ErrValidation}, args...)...))
}

func (s *Server) handleListHomes(c *gin.Context) {
	homes, err := s.svc.ListHomes(c.Request.Context(), s.owner(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"homes": homes})
}

func (s *Server) handleCreateHome(c *gin.Context) {
	var req homeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	home, err := s.svc.CreateHome(c.Request.Context(), calendar.HomeInput{
		OwnerID: s.owner(c),
		Name:    req.Name,
		Address: req.Address,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, home)
}

func (s *Server) handleListTasks(c *gin.Context) {
	f := store.TaskFilter{OwnerID: s.owner(c), HomeID: c.Query("home_id")}
	if v := c.Query("completed"); v != "" {
		done, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "completed must be true or false")
			return
		}
		f.Completed = &done
	}

	tasks, err := s.svc.ListTasks(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	in, err := req.toInput(s.owner(c), s.svc.Location())
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.svc.CreateTask(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	task, err := s.svc.CompleteTask(c.Request.Context(), s.owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListEvents(c *gin.Context) {
	loc := s.svc.Location()
	from, err := parseBound(c.Query("from"), loc, false)
	if err != nil {
		writeError(c, fmt.Errorf("from: %w", err))
		return
	}
	to, err := parseBound(c.Query("to"), loc, true)
	if err != nil {
		writeError(c, fmt.Errorf("to: %w", err))
		return
	}

	events, err := s.svc.ListEvents(c.Request.Context(), s.owner(c), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) bindEvent(c *gin.Context) (calendar.EventInput, bool) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return calendar.EventInput{}, false
	}
	in, err := req.toInput(s.owner(c), s.svc.Location())
	if err != nil {
		writeError(c, err)
		return calendar.EventInput{}, false
	}
	return in, true
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	in, ok := s.bindEvent(c)
	if !ok {
		return
	}
	res, err := s.svc.CreateEvent(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handlePreview(c *gin.Context) {
	in, ok := s.bindEvent(c)
	if !ok {
		return
	}
	res, err := s.svc.PreviewExpansion(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetEvent(c *gin.Context) {
	ev, err := s.svc.GetEvent(c.Request.Context(), s.owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(c *gin.Context) {
	if err := s.svc.DeleteEvent(c.Request.Context(), s.owner(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSeries(c *gin.Context) {
	events, err := s.svc.ListSeries(c.Request.Context(), s.owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"series_id": c.Param("id"), "events": events})
}

func (s *Server) handleDeleteSeries(c *gin.Context) {
	n, err := s.svc.DeleteSeries(c.Request.Context(), s.owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// handleImport reads a raw iCalendar body. home_id and color query
// parameters apply to every imported event.
func (s *Server) handleImport(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(body) > maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errResp{Error: "calendar file too large"})
		return
	}

	src := ics.Source{ID: "upload"}
	items, err := ics.Parse(src, body, s.svc.Location())
	if err != nil {
		badRequest(c, "invalid calendar: %v", err)
		return
	}

	res, err := s.svc.ImportEvents(c.Request.Context(), calendar.ImportOptions{
		OwnerID: s.owner(c),
		HomeID:  c.Query("home_id"),
		Color:   model.Color(c.Query("color")),
		Origin:  src.ID,
	}, items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleExport(c *gin.Context) {
	loc := s.svc.Location()
	from, err := parseBound(c.Query("from"), loc, false)
	if err != nil {
		writeError(c, fmt.Errorf("from: %w", err))
		return
	}
	to, err := parseBound(c.Query("to"), loc, true)
	if err != nil {
		writeError(c, fmt.Errorf("to: %w", err))
		return
	}

	owner := s.owner(c)
	events, err := s.svc.ListEvents(c.Request.Context(), owner, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics.Export("OrderlyFlow "+owner, loc, events)))
}
