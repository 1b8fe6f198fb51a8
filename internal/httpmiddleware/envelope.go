package httpmiddleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kidcheck/internal/envelope"
	"kidcheck/internal/metrics"
)

// Envelope applies the transport codec at the HTTP boundary: request
// bodies arrive as sealed envelopes and are opened before the handler
// runs; JSON response bodies are sealed on the way out. Routes that must
// stay plaintext (the health probe) are registered outside this
// middleware. Bypass is a routing decision, never inferred from the
// payload, and a client header cannot opt out of encryption here.
//
// Non-JSON responses (CSV exports, QR code PNGs) pass through unsealed,
// mirroring the client, which only opens bodies with a JSON content type.
func Envelope(codec *envelope.Codec) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			raw, err := io.ReadAll(c.Request.Body)
			c.Request.Body.Close()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
				return
			}
			if len(raw) > 0 {
				plain, err := codec.Open(strings.TrimSpace(string(raw)))
				if err != nil {
					metrics.EnvelopeFailures.Inc()
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed request envelope"})
					return
				}
				c.Request.Body = io.NopCloser(bytes.NewReader(plain))
				c.Request.ContentLength = int64(len(plain))
			}
		}

		w := &sealingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter

		body := w.body.Bytes()
		ct := w.Header().Get("Content-Type")
		if len(body) == 0 || !strings.Contains(ct, "application/json") {
			if len(body) > 0 {
				w.ResponseWriter.Write(body)
			}
			return
		}
		sealed, err := codec.Seal(body)
		if err != nil {
			w.Header().Set("Content-Length", "0")
			w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(sealed)))
		w.ResponseWriter.Write([]byte(sealed))
	}
}

// sealingWriter buffers the response body so it can be sealed after the
// handler returns. The status code set by the handler is preserved; gin
// flushes headers on the first real write.
type sealingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *sealingWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func (w *sealingWriter) WriteString(s string) (int, error) { return w.body.WriteString(s) }
