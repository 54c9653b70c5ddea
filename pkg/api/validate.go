package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cuemby/vcp/pkg/apperr"
)

// validate is shared across every handler's request DTO; go-playground's
// validator is safe for concurrent use once built, the same convention
// jordigilh-kubernaut's request DTOs rely on.
var validate = validator.New()

// decodeAndValidate reads r's JSON body into dst and runs struct tag
// validation, collapsing either failure into one INVALID_REQUEST error
// so every handler returns the same 400 shape.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.InvalidRequest, apperr.KindValidation, "malformed request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.New(apperr.InvalidRequest, apperr.KindValidation, "%s", validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
