package middleware

import (
	"errors"
	"net/url"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/spf13/cobra"
)

// ErrLogged tells Execute the failure was already reported.
var ErrLogged = errors.New("already logged")

func Reject(code errs.Code, a ...any) error {
	logger.LogError("%s", errs.Msg(code, a...))
	return ErrLogged
}

// RequireHTTPArgs rejects positional arguments that are not absolute http(s) URLs.
func RequireHTTPArgs(cmd *cobra.Command, args []string, next func(cmd *cobra.Command, args []string) error) error {
	for _, a := range args {
		u, err := url.Parse(a)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Reject(errs.InvalidArgument, a, "expected an absolute http(s) URL")
		}
	}
	return next(cmd, args)
}
