package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names in validation details
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createUserRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// validationDetails flattens validator errors into field -> messages.
func validationDetails(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fe.Field() + " is required"
		case "email":
			msg = fe.Field() + " must be a valid email address"
		case "max":
			msg = fe.Field() + " must be at most " + fe.Param() + " characters"
		default:
			msg = fe.Field() + " is invalid"
		}
		details[fe.Field()] = append(details[fe.Field()], msg)
	}
	return details
}

// NewCreateUserHandler returns an http.HandlerFunc for POST /users.
func NewCreateUserHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.DisplayName = strings.TrimSpace(req.DisplayName)

		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid user", validationDetails(err))
			return
		}

		u, err := s.CreateUser(r.Context(), store.NewUser{Email: req.Email, DisplayName: req.DisplayName})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, u)
	}
}

func NewGetUserHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		u, err := s.GetUser(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}
