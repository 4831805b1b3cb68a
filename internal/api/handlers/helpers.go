package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/validator"
)

const maxBodyBytes = 1 << 20

// decodeAndValidate reads a JSON body into v and validates it. An empty body
// leaves v at its zero value.
func decodeAndValidate(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.BadRequest("Invalid request body")
	}
	return validate(v)
}

func validate(v interface{}) error {
	if errs := validator.Validate(v); len(errs) > 0 {
		return errors.ValidationError(validator.Join(errs), errs)
	}
	return nil
}
