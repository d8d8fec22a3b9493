package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

const welcomeMessage = "Welcome to the SLFS Backend API"

func Welcome(c echo.Context) error {
	return c.String(http.StatusOK, welcomeMessage)
}

// SPA serves the frontend build. Paths that match no file fall back to
// index.html so client-side routing works; /api paths never do.
type SPA struct {
	dir string
}

func NewSPA(dir string) *SPA {
	return &SPA{dir: dir}
}

func (s *SPA) Serve(c echo.Context) error {
	p := c.Request().URL.Path
	if strings.HasPrefix(p, "/api") {
		return echo.ErrNotFound
	}

	name := filepath.Join(s.dir, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return c.File(name)
	}

	return c.File(filepath.Join(s.dir, "index.html"))
}

// Module is a route group under /api owned by a collaborator package.
type Module interface {
	Name() string
	Register(g *echo.Group)
}

type placeholder string

func (p placeholder) Name() string { return string(p) }

func (p placeholder) Register(g *echo.Group) {
	g.Any("", notImplemented)
	g.Any("/*", notImplemented)
}

// NotFound answers unmatched /api routes for every method.
func NotFound(echo.Context) error {
	return echo.ErrNotFound
}

func notImplemented(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Not implemented"})
}

// DefaultModules reserves the collaborator mount points until real
// implementations are registered.
func DefaultModules() []Module {
	return []Module{
		placeholder("auth"),
		placeholder("admin"),
		placeholder("laptops"),
		placeholder("controller"),
		placeholder("applications"),
		placeholder("dashboard"),
	}
}
