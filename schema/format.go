package schema

import (
	"errors"
	"net/mail"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// formats lists the string formats the compiler accepts. Any other format
// value fails compilation.
var formats = map[string]func(string) error{
	"date-time": func(s string) error {
		_, err := time.Parse(time.RFC3339, s)
		return err
	},
	"date": func(s string) error {
		_, err := time.Parse(time.DateOnly, s)
		return err
	},
	"email": func(s string) error {
		_, err := mail.ParseAddress(s)
		return err
	},
	"uri": func(s string) error {
		u, err := url.Parse(s)
		if err != nil {
			return err
		}
		if !u.IsAbs() {
			return errors.New("uri must be absolute")
		}
		return nil
	},
	"uuid": func(s string) error {
		_, err := uuid.Parse(s)
		return err
	},
}
