package server

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/cortexlab/cortex/internal/runtime"
)

// streamQuery answers with server-sent events: "token" per screened fragment, then
// one "done" carrying the result or one "error". When the result is refused the
// client must replace the streamed text with the done event's response.
func (s *Server) streamQuery(c *gin.Context, input string, opts runtime.Options) {
	st := s.rt.Stream(c.Request.Context(), input, opts)
	defer st.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := st.Events()
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		switch ev.Kind {
		case runtime.EventToken:
			c.SSEvent("token", gin.H{"token": ev.Token})
			return true
		case runtime.EventDone:
			c.SSEvent("done", *ev.Result)
		case runtime.EventError:
			_, code := admissionError(ev.Err)
			c.SSEvent("error", APIError{Message: ev.Err.Error(), Code: code})
		}
		return false
	})
}
