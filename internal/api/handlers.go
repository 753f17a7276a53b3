package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/ernie/pokearena/internal/storage"
	"github.com/ernie/pokearena/internal/videos"
)

// PokemonSource looks up Pokémon for sprite enrichment
type PokemonSource interface {
	Pokemon(ctx context.Context, id int) (*domain.Pokemon, error)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response. The site scripts read "message".
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeMessage writes a JSON success message
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// handleGetFavorites returns the user's favorites with their sprites
func (r *Router) handleGetFavorites(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	favorites, err := r.store.Favorites(req.Context(), claims.UserID)
	if err != nil {
		r.logger.Error("loading favorites", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error retrieving favorites.")
		return
	}

	views := make([]domain.FavoriteView, len(favorites))
	var wg sync.WaitGroup
	for i, f := range favorites {
		views[i] = domain.FavoriteView{PokemonID: f.PokemonID, Name: f.Name}
		if r.pokemon == nil {
			continue
		}
		wg.Add(1)
		go func(i int, id int) {
			defer wg.Done()
			p, err := r.pokemon.Pokemon(req.Context(), id)
			if err != nil {
				// One bad lookup only blanks that image.
				r.logger.Warn("fetching sprite", "pokemon_id", id, "error", err)
				return
			}
			views[i].Image = p.Sprites.FrontDefault
		}(i, f.PokemonID)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, views)
}

// AddFavoriteRequest is the request body for adding a favorite
type AddFavoriteRequest struct {
	Pokemon domain.Favorite `json:"pokemon"`
}

// handleAddFavorite appends a Pokémon to the user's favorites
func (r *Router) handleAddFavorite(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	var body AddFavoriteRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if body.Pokemon.PokemonID <= 0 || body.Pokemon.Name == "" {
		writeError(w, http.StatusBadRequest, "A Pokémon id and name are required.")
		return
	}

	err := r.store.AddFavorite(req.Context(), claims.UserID, body.Pokemon, r.favoritesLimit)
	switch {
	case errors.Is(err, storage.ErrFavoritesFull):
		writeError(w, http.StatusBadRequest, "You can only have up to "+strconv.Itoa(r.favoritesLimit)+" favorite Pokémon.")
	case errors.Is(err, storage.ErrFavoriteExists):
		writeError(w, http.StatusBadRequest, "This Pokémon is already in your favorites.")
	case err != nil:
		r.logger.Error("adding favorite", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error adding favorite.")
	default:
		writeMessage(w, http.StatusCreated, "Pokémon added to favorites successfully!")
	}
}

// handleRemoveFavorite deletes a Pokémon from the user's favorites
func (r *Router) handleRemoveFavorite(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	id, ok := parsePokemonID(req, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid Pokémon id.")
		return
	}

	err := r.store.RemoveFavorite(req.Context(), claims.UserID, id)
	switch {
	case errors.Is(err, storage.ErrFavoriteNotFound):
		writeError(w, http.StatusNotFound, "Pokémon not found in favorites.")
	case err != nil:
		r.logger.Error("removing favorite", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error removing favorite.")
	default:
		writeMessage(w, http.StatusOK, "Pokémon removed from favorites successfully!")
	}
}

// handleGetVideos proxies a YouTube highlight search
func (r *Router) handleGetVideos(w http.ResponseWriter, req *http.Request) {
	if r.videos == nil || !r.videos.Configured() {
		writeError(w, http.StatusInternalServerError, "YouTube API key is not configured.")
		return
	}

	list, err := r.videos.Highlights(req.Context(), req.PathValue("name"))
	if errors.Is(err, videos.ErrNotConfigured) {
		writeError(w, http.StatusInternalServerError, "YouTube API key is not configured.")
		return
	}
	if err != nil {
		r.logger.Error("fetching videos", "pokemon", req.PathValue("name"), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch videos from YouTube.")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetLeaderboard ranks users by battle results
func (r *Router) handleGetLeaderboard(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	rows, err := r.leaderboard.Leaderboard(req.Context())
	if err != nil {
		r.logger.Error("computing leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error.")
		return
	}
	writeJSON(w, http.StatusOK, domain.LeaderboardResponse{
		Leaderboard:   rows,
		CurrentUserID: claims.UserID,
	})
}

// handleGetRecentBattles returns the newest battles first
func (r *Router) handleGetRecentBattles(w http.ResponseWriter, req *http.Request) {
	battles, err := r.store.RecentBattles(req.Context(), parseLimit(req, 20, 100))
	if err != nil {
		r.logger.Error("loading recent battles", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error.")
		return
	}
	if battles == nil {
		battles = []domain.BattleRecord{}
	}
	writeJSON(w, http.StatusOK, battles)
}

// handleGetAuthors serves the site credits file as-is
func (r *Router) handleGetAuthors(w http.ResponseWriter, req *http.Request) {
	if r.authorsFile == "" {
		writeError(w, http.StatusNotFound, "Author data is not configured.")
		return
	}
	data, err := os.ReadFile(r.authorsFile)
	if err != nil || !json.Valid(data) {
		r.logger.Error("reading authors", "path", r.authorsFile, "error", err)
		writeError(w, http.StatusInternalServerError, "Error reading author data")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
