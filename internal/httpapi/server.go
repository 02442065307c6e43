// Package httpapi exposes the admin introspection and broadcast surface
// over HTTP. It reads registry snapshots and drives the same server-notice
// fan-out as the admin console; it never mutates membership.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/djwesty/rust-irc/internal/chat"
	"github.com/djwesty/rust-irc/internal/registry"
)

// Server is the Echo application.
type Server struct {
	echo *echo.Echo
	reg  *registry.Registry
}

// New constructs the Echo app with the admin routes.
func New(reg *registry.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reg: reg}
	e.GET("/health", s.handleHealth)
	e.GET("/api/state", s.handleState)
	e.POST("/api/broadcast", s.handleBroadcast)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
	Rooms  int    `json:"rooms"`
}

func (s *Server) handleHealth(c echo.Context) error {
	users, rooms := s.reg.Counts()
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Users: users, Rooms: rooms})
}

type userState struct {
	Nick  string   `json:"nick"`
	Rooms []string `json:"rooms,omitempty"`
}

type roomState struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type stateResponse struct {
	Users []userState `json:"users"`
	Rooms []roomState `json:"rooms"`
}

func (s *Server) handleState(c echo.Context) error {
	resp := stateResponse{Users: []userState{}, Rooms: []roomState{}}
	for _, nick := range s.reg.ListUsers() {
		resp.Users = append(resp.Users, userState{Nick: nick, Rooms: s.reg.RoomsOf(nick)})
	}
	for _, name := range s.reg.ListRooms() {
		members, ok := s.reg.Members(name)
		if !ok {
			continue // room emptied between snapshots
		}
		resp.Rooms = append(resp.Rooms, roomState{Name: name, Members: members})
	}
	return c.JSON(http.StatusOK, resp)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

type broadcastResponse struct {
	Sent int `json:"sent"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	sent := chat.Broadcast(s.reg, req.Message)
	return c.JSON(http.StatusOK, broadcastResponse{Sent: sent})
}
