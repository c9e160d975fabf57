package transport

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
)

// LogAuthBody traces auth request bodies with credentials masked.
func (s *HTTPServer) LogAuthBody(c echo.Context, reqBody, _ []byte) {
	if len(reqBody) == 0 {
		return
	}
	s.logger.Debugw("auth request",
		"path", c.Path(),
		"body", string(censorBody(reqBody)),
	)
}

func censorBody(body []byte) []byte {
	fields := map[string]interface{}{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return []byte("$unparseable")
	}
	if _, ok := fields["password"]; ok {
		fields["password"] = "$censored"
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return []byte("$unparseable")
	}
	return out
}
