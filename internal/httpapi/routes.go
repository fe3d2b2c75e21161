package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gambiarra/arena-backend/internal/auth"
	"github.com/gambiarra/arena-backend/internal/ws"
)

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)

	r.Post("/session", CreateSession(d))
	r.Get("/session", GetSession(d))

	r.Post("/rounds", CreateRound(d))
	r.Post("/rounds/start", StartRound(d))
	r.Post("/rounds/stop", StopRound(d))
	r.Get("/rounds/current", CurrentRound(d))

	r.Post("/votes", CastVote(d))
	r.Get("/scoreboard", Scoreboard(d))

	r.Get("/metrics", SessionMetrics(d))
	r.Get("/export.csv", ExportCSV(d))

	r.Post("/participants/kick", KickParticipant(d))

	r.Get("/ws", ws.Handler(ws.Deps{
		Hub:    d.Hub,
		Store:  d.Store,
		Buffer: d.Buffer,
		Verify: auth.VerifyPIN,
		Log:    d.Log,
	}))

	return r
}
