package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	apperrors "github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseNameFromNom(t *testing.T) {
	tests := []struct {
		nom  string
		want string
	}{
		{"Acme Freight", "acme_freight"},
		{"Société Générale de Transport", "societe_generale_de_transport"},
		{"  Élan -- Logistique!! ", "elan_logistique"},
		{"3PL Partners", "org_3pl_partners"},
		{"___", "org"},
		{"Çà et là", "ca_et_la"},
	}

	for _, tt := range tests {
		t.Run(tt.nom, func(t *testing.T) {
			got := DatabaseNameFromNom(tt.nom)
			assert.Equal(t, tt.want, got)
			assert.True(t, ValidDatabaseName(got), "derived name must validate")
		})
	}
}

func TestDatabaseNameFromNom_Truncates(t *testing.T) {
	got := DatabaseNameFromNom(strings.Repeat("transport ", 20))
	assert.LessOrEqual(t, len(got), MaxDatabaseNameLength)
	assert.True(t, ValidDatabaseName(got))
}

func TestValidDatabaseName(t *testing.T) {
	assert.True(t, ValidDatabaseName("acme_freight"))
	assert.True(t, ValidDatabaseName("a1"))
	assert.False(t, ValidDatabaseName("Acme"))
	assert.False(t, ValidDatabaseName("1acme"))
	assert.False(t, ValidDatabaseName("_acme"))
	assert.False(t, ValidDatabaseName("acme-freight"))
	assert.False(t, ValidDatabaseName("acme; DROP DATABASE x"))
	assert.False(t, ValidDatabaseName(""))
	assert.False(t, ValidDatabaseName("a"+strings.Repeat("b", MaxDatabaseNameLength)))
}

func TestDatabaseNamePolicy(t *testing.T) {
	var zero DatabaseNamePolicy
	assert.True(t, zero.Reserved("postgres"), "built-ins are reserved without configuration")
	assert.ErrorIs(t, zero.Check("template1"), apperrors.ErrValidation)
	assert.NoError(t, zero.Check("acme_freight"))

	p := NewDatabaseNamePolicy("Shipnology", "")
	assert.True(t, p.Reserved("shipnology"))
	assert.False(t, p.Reserved(""))
	assert.Equal(t, "is reserved", apperrors.From(p.Check("shipnology")).Details["database_name"])
	assert.Contains(t, apperrors.From(p.Check("Bad-Name")).Details["database_name"], "lowercase")
}

func TestOrganisationStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusActive))
	assert.False(t, StatusPending.CanTransitionTo(StatusInactive))
	assert.True(t, StatusActive.CanTransitionTo(StatusInactive))
	assert.True(t, StatusInactive.CanTransitionTo(StatusActive))
	assert.False(t, StatusActive.CanTransitionTo(StatusPending))
	assert.False(t, OrganisationStatus("archived").Valid())
}

func TestOrganisation_MarkProvisioned(t *testing.T) {
	org := &Organisation{Status: StatusPending}
	require.True(t, org.Consistent())

	org.MarkProvisioned()

	assert.Equal(t, StatusActive, org.Status)
	assert.True(t, org.DatabaseCreated)
	assert.True(t, org.SetupCompleted)
	assert.True(t, org.HasUsers)
	assert.True(t, org.Consistent())

	assert.False(t, (&Organisation{Status: StatusPending, DatabaseCreated: true}).Consistent())
	assert.False(t, (&Organisation{Status: StatusActive, SetupCompleted: true}).Consistent())
}

func TestSetupToken_Check(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token SetupToken
		want  error
	}{
		{"fresh", SetupToken{ExpiresAt: now.Add(time.Hour)}, nil},
		{"used", SetupToken{ExpiresAt: now.Add(time.Hour), Used: true}, ErrTokenAlreadyUsed},
		{"expired", SetupToken{ExpiresAt: now.Add(-time.Second)}, ErrTokenExpired},
		{"expired wins over used", SetupToken{ExpiresAt: now.Add(-time.Second), Used: true}, ErrTokenExpired},
		{"expires exactly now", SetupToken{ExpiresAt: now}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.token.Check(now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSupervisorInput_Defaults(t *testing.T) {
	in := SupervisorInput{Email: "jane.doe@acme.io"}
	assert.Equal(t, "jane.doe", in.Username())
	assert.Equal(t, DefaultGenre, in.GenreOrDefault())

	in.NomUtilisateur = " jdoe "
	in.Genre = "Femme"
	assert.Equal(t, "jdoe", in.Username())
	assert.Equal(t, "Femme", in.GenreOrDefault())
}

func TestCompleteSetupRequest_SMTP(t *testing.T) {
	base := func() *CompleteSetupRequest {
		return &CompleteSetupRequest{
			SMTPEnabled:  true,
			SMTPHost:     "smtp.acme.example",
			SMTPUser:     "mailer@acme.example",
			SMTPPassword: "s3cret",
		}
	}

	t.Run("defaults", func(t *testing.T) {
		got, ok := base().SMTP("Acme Freight")
		require.True(t, ok)
		assert.Equal(t, DefaultSMTPPort, *got.SMTPPort)
		assert.Equal(t, "mailer@acme.example", *got.SMTPFromEmail)
		assert.Equal(t, "Acme Freight", *got.SMTPFromName)
		assert.True(t, got.SMTPUseTLS)
	})

	t.Run("explicit values win", func(t *testing.T) {
		req := base()
		off := false
		req.SMTPPort, req.SMTPFromEmail, req.SMTPFromName, req.SMTPUseTLS = 2525, "noreply@acme.example", "Acme", &off

		got, ok := req.SMTP("Acme Freight")
		require.True(t, ok)
		assert.Equal(t, 2525, *got.SMTPPort)
		assert.Equal(t, "noreply@acme.example", *got.SMTPFromEmail)
		assert.Equal(t, "Acme", *got.SMTPFromName)
		assert.False(t, got.SMTPUseTLS)
	})

	for name, mutate := range map[string]func(*CompleteSetupRequest){
		"disabled":    func(r *CompleteSetupRequest) { r.SMTPEnabled = false },
		"no host":     func(r *CompleteSetupRequest) { r.SMTPHost = "" },
		"no user":     func(r *CompleteSetupRequest) { r.SMTPUser = "" },
		"no password": func(r *CompleteSetupRequest) { r.SMTPPassword = "" },
	} {
		t.Run(name, func(t *testing.T) {
			req := base()
			mutate(req)
			_, ok := req.SMTP("Acme Freight")
			assert.False(t, ok)
		})
	}
}

func TestUpdateOrganisationRequest_Apply(t *testing.T) {
	org := &Organisation{Nom: "Acme", DatabaseName: "acme", EmailContact: "ops@acme.example", Plan: "premium"}
	nom, plan := " Acme Group ", "enterprise"

	(&UpdateOrganisationRequest{Nom: &nom, Plan: &plan, DatabaseName: "ignored"}).Apply(org)

	assert.Equal(t, "Acme Group", org.Nom)
	assert.Equal(t, "enterprise", org.Plan)
	assert.Equal(t, "ops@acme.example", org.EmailContact)
	assert.Equal(t, "acme", org.DatabaseName)
}

func TestTokenError_Is(t *testing.T) {
	err := fmt.Errorf("complete setup: %w", &TokenError{Kind: TokenExpired})

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenAlreadyUsed)

	appErr := apperrors.From(err)
	assert.Equal(t, http.StatusGone, appErr.StatusCode)
	assert.Equal(t, "TOKEN_EXPIRED", appErr.Code)
	assert.Equal(t, http.StatusNotFound, apperrors.From(ErrTokenNotFound).StatusCode)
	assert.Equal(t, http.StatusConflict, apperrors.From(ErrTokenAlreadyUsed).StatusCode)
}

func TestSchemaApplicationError_AppError(t *testing.T) {
	err := &SchemaApplicationError{Index: 4, Statement: "CREATE TABL x", Err: errors.New("syntax error")}

	appErr := apperrors.From(fmt.Errorf("wrap: %w", err))
	assert.Equal(t, "SCHEMA_APPLICATION_FAILED", appErr.Code)
	assert.Equal(t, "4", appErr.Details["statement_index"])
	assert.Contains(t, err.Error(), "statement 4")
}

func TestRollbackError(t *testing.T) {
	cause := &BootstrapError{Err: errors.New("duplicate email")}
	err := &RollbackError{Cause: cause, CleanupErr: errors.New("database is being accessed by other users")}

	var bootstrapErr *BootstrapError
	assert.True(t, errors.As(err, &bootstrapErr))

	appErr := apperrors.From(err)
	assert.Equal(t, "BOOTSTRAP_FAILED", appErr.Code)
	assert.Equal(t, "incomplete", appErr.Details["rollback"])
	assert.Contains(t, err.Error(), "rollback incomplete")
}
