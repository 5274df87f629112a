package helpers

import "github.com/labstack/echo/v4"

func InputError(e echo.Context, error, msg string) error {
	if error == "" {
		return e.NoContent(400)
	}

	return RunError(e, 400, error, msg, "")
}

// RunError is an error response for a failed run that also carries the log
// the run gathered before it stopped.
func RunError(e echo.Context, status int, error, msg, log string) error {
	resp := map[string]string{}
	resp["error"] = error
	if msg != "" {
		resp["message"] = msg
	}
	if log != "" {
		resp["log"] = log
	}

	return e.JSON(status, resp)
}
