package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type CreateSetRequest struct {
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members" validate:"dive,required"`
}

type AddMemberRequest struct {
	Member string `json:"member" validate:"required"`
}

type DeleteSetsView struct {
	Deleted []string `json:"deleted"`
	Skipped []string `json:"skipped"`
}

type LookupView struct {
	Set   string `json:"set"`
	Match string `json:"match"`
}

// decodeBody reads a json body into v and validates it.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body failed, err:%w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate body failed, err:%w", err)
	}
	return nil
}
