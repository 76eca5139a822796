package domain

import (
	"strings"
)

// Supervisor defaults
const (
	SupervisorRole   = "administratif"
	SupervisorStatut = "actif"
	DefaultGenre     = "Homme"
)

// SupervisorInput describes the first administrative user of a tenant
type SupervisorInput struct {
	Prenom         string `json:"prenom" validate:"required,max=100"`
	Nom            string `json:"nom" validate:"required,max=100"`
	NomUtilisateur string `json:"nom_utilisateur,omitempty" validate:"omitempty,max=100"`
	Genre          string `json:"genre,omitempty" validate:"omitempty,max=20"`
	Email          string `json:"email" validate:"required,email"`
	Telephone      string `json:"telephone" validate:"required,max=50"`
	Password       string `json:"mot_de_passe" validate:"required,min=8,max=72"`
}

// Username returns nom_utilisateur, falling back to the e-mail local part
func (in SupervisorInput) Username() string {
	if u := strings.TrimSpace(in.NomUtilisateur); u != "" {
		return u
	}
	local, _, _ := strings.Cut(in.Email, "@")
	return local
}

// GenreOrDefault returns the given genre or "Homme"
func (in SupervisorInput) GenreOrDefault() string {
	if g := strings.TrimSpace(in.Genre); g != "" {
		return g
	}
	return DefaultGenre
}

// SupervisorRecord is the row created by the bootstrap step
type SupervisorRecord struct {
	ID             int64  `json:"id" db:"id"`
	Prenom         string `json:"prenom" db:"prenom"`
	Nom            string `json:"nom" db:"nom"`
	NomUtilisateur string `json:"nom_utilisateur" db:"nom_utilisateur"`
	Email          string `json:"email" db:"email"`
	Role           string `json:"role" db:"role"`
	IsSuperviseur  bool   `json:"is_superviseur" db:"is_superviseur"`
}
