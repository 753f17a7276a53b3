package domain

// Stat names the battle score depends on
const (
	StatHP      = "hp"
	StatAttack  = "attack"
	StatDefense = "defense"
	StatSpeed   = "speed"
)

// NamedResource mirrors the PokeAPI {name, url} reference
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Stat is one base stat, in the PokeAPI wire shape
type Stat struct {
	BaseStat int           `json:"base_stat"`
	Effort   int           `json:"effort"`
	Stat     NamedResource `json:"stat"`
}

// Sprites holds the sprite URLs we use
type Sprites struct {
	FrontDefault *string `json:"front_default"`
}

// Pokemon is the subset of a PokeAPI pokemon record the arena needs
type Pokemon struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Sprites Sprites `json:"sprites"`
	Stats   []Stat  `json:"stats"`
}

// BaseStat returns the named base stat and whether it was present
func (p *Pokemon) BaseStat(name string) (int, bool) {
	for _, s := range p.Stats {
		if s.Stat.Name == name {
			return s.BaseStat, true
		}
	}
	return 0, false
}

// Card returns the display snapshot sent to battle participants
func (p *Pokemon) Card() PokemonCard {
	return PokemonCard{
		ID:    p.ID,
		Name:  p.Name,
		Image: p.Sprites.FrontDefault,
		Stats: p.Stats,
	}
}

// PokemonCard is one side's Pokémon in a battle_ready message
type PokemonCard struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
	Stats []Stat  `json:"stats"`
}
