package domain

import "time"

// User is a registered account
type User struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"firstName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Favorite is a Pokémon saved by a user for battles
type Favorite struct {
	PokemonID int    `json:"id"`
	Name      string `json:"name"`
}

// FavoriteView is a favorite enriched with its sprite for display.
// Image is nil when the sprite lookup failed.
type FavoriteView struct {
	PokemonID int     `json:"id"`
	Name      string  `json:"name"`
	Image     *string `json:"image"`
}
