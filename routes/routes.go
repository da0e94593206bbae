package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/recleague/tracker/handlers"
	"github.com/recleague/tracker/middleware"
	"github.com/recleague/tracker/models"
)

// SetupRoutes wires every handler onto the router. Reads are public so a
// session board can be shared by link; every mutation requires an organizer
// (or admin) token.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	corsAllowedOrigins []string,
	authHandler *handlers.AuthHandler,
	teamHandler *handlers.TeamHandler,
	playerHandler *handlers.PlayerHandler,
	sessionHandler *handlers.SessionHandler,
	roundHandler *handlers.RoundHandler,
	scheduleHandler *handlers.ScheduleHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	origins := corsAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)
	organizerOnly := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	// Live session feed; read-only, so no token required.
	router.Get("/ws/sessions/{sessionID}", webSocketHandler.ServeWs)

	router.Route("/teams", func(r chi.Router) {
		r.Get("/{teamID}", teamHandler.GetTeam)
		r.Get("/{teamID}/leaderboard", playerHandler.Leaderboard)
		r.Get("/{teamID}/sessions", sessionHandler.ListSessions)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Get("/", teamHandler.ListTeams)
			r.Post("/", teamHandler.CreateTeam)
			r.Patch("/{teamID}", teamHandler.RenameTeam)
			r.Post("/{teamID}/crest", teamHandler.UploadCrest)
			r.Delete("/{teamID}", teamHandler.DeleteTeam)

			r.Post("/{teamID}/players", playerHandler.CreatePlayer)
			r.Post("/{teamID}/sessions", sessionHandler.CreateSession)
		})
	})

	router.Route("/players", func(r chi.Router) {
		r.Get("/{playerID}", playerHandler.GetPlayer)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Patch("/{playerID}", playerHandler.RenamePlayer)
			r.Post("/{playerID}/avatar", playerHandler.UploadAvatar)
			r.Delete("/{playerID}", playerHandler.DeletePlayer)
		})
	})

	router.Route("/sessions", func(r chi.Router) {
		r.Get("/{sessionID}", sessionHandler.GetSessionState)
		r.Get("/{sessionID}/games", scheduleHandler.ListQueue)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Post("/{sessionID}/close", sessionHandler.CloseSession)
			r.Delete("/{sessionID}", sessionHandler.DeleteSession)

			r.Post("/{sessionID}/attendees", sessionHandler.AddAttendee)
			r.Delete("/{sessionID}/attendees/{attendeeID}", sessionHandler.RemoveAttendee)
			r.Post("/{sessionID}/pool", roundHandler.AddPlayersToPool)

			r.Post("/{sessionID}/rounds", roundHandler.CreateRound)

			r.Post("/{sessionID}/games", scheduleHandler.AppendGame)
			r.Post("/{sessionID}/rounds/{roundID}/games/reorder", scheduleHandler.Reorder)
			r.Delete("/{sessionID}/games/{gameID}", scheduleHandler.RemoveGame)
			r.Post("/{sessionID}/games/{gameID}/complete", scheduleHandler.CompleteGame)
			r.Patch("/{sessionID}/completed-games/{gameID}", scheduleHandler.EditCompletedGame)
		})
	})

	router.Route("/rounds", func(r chi.Router) {
		r.Get("/{roundID}", roundHandler.GetRound)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)

			r.Post("/{roundID}/auto-assign", roundHandler.AutoAssign)
			r.Post("/{roundID}/squads/{squadID}/toggle", roundHandler.ToggleAssignment)
			r.Put("/{roundID}", roundHandler.EditRound)
			r.Delete("/{roundID}", roundHandler.DeleteRound)
		})
	})
}
