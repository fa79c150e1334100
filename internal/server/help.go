package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the help document.
var Version = "2.0"

type serverSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
	Emulators int    `json:"emulators"`
}

// HelpResp describes the service and how to call it.
type HelpResp struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Port      int               `json:"port"`
	Servers   []serverSummary   `json:"servers"`
	Endpoints map[string]string `json:"endpoints"`
	Examples  map[string]string `json:"examples"`
}

func (r *Router) help() HelpResp {
	profiles := r.catalog.Profiles()
	servers := make([]serverSummary, 0, len(profiles))
	for _, p := range profiles {
		servers = append(servers, serverSummary{
			ID: p.ID, Name: p.Name, Path: p.Path, Enabled: p.Enabled, Emulators: len(p.Processes),
		})
	}
	base := fmt.Sprintf("http://localhost:%d", r.port)
	if r.catalog.Single() {
		return HelpResp{
			Service: "Emulator Control API",
			Version: Version,
			Port:    r.port,
			Servers: servers,
			Endpoints: map[string]string{
				"start":  "POST /start - start every emulator in order",
				"stop":   "POST /stop - stop every emulator in reverse order",
				"status": "GET /status - status of every emulator",
			},
			Examples: map[string]string{
				"start":  "POST " + base + "/start",
				"stop":   "POST " + base + "/stop",
				"status": "GET " + base + "/status",
			},
		}
	}
	exampleStart, exampleStop := "s1", "s2"
	if len(profiles) > 0 {
		exampleStart = profiles[0].ID
		exampleStop = profiles[len(profiles)-1].ID
	}
	return HelpResp{
		Service: "Emulator Control API - Multi Server",
		Version: Version,
		Port:    r.port,
		Servers: servers,
		Endpoints: map[string]string{
			"start_one":  "POST /start/{serverId} - start the emulators of one server",
			"start_all":  "POST /start/all - start the emulators of every enabled server",
			"stop_one":   "POST /stop/{serverId} - stop the emulators of one server",
			"stop_all":   "POST /stop/all - stop the emulators of every enabled server",
			"status_all": "GET /status - status of every server",
			"status_one": "GET /status/{serverId} - status of one server",
		},
		Examples: map[string]string{
			"start_server": "POST " + base + "/start/" + exampleStart,
			"stop_server":  "POST " + base + "/stop/" + exampleStop,
			"status":       "GET " + base + "/status",
		},
	}
}

func (r *Router) handleHelp(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.help())
}

// Endpoints lists the routes in the help document, for startup banners.
func (r *Router) Endpoints() map[string]string {
	return r.help().Endpoints
}
