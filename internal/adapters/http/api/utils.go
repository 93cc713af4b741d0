package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/pkg/errs"
)

// bind decodes the JSON body into v. An empty body leaves v untouched.
func bind(c *fiber.Ctx, op string, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return &errs.Error{Op: op, Kind: errs.ErrValidation, Err: ErrBadRequest, Msg: "invalid JSON body"}
	}
	return nil
}

// required fails validation when any named value is blank.
func required(op string, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return &errs.Error{Op: op, Kind: errs.ErrValidation, Err: ErrMissingField, Msg: fields[i] + " is required"}
		}
	}
	return nil
}
