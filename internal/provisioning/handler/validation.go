package handler

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
)

var registerOnce sync.Once

// RegisterValidators installs the dbname tag used by the request types
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		err = httputil.RegisterCustomValidation("dbname", func(fl validator.FieldLevel) bool {
			return domain.ValidDatabaseName(fl.Field().String())
		})
	})
	return err
}
