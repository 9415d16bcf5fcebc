package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliOptions tunes the compression middleware.
type BrotliOptions struct {
	Quality int
	// MinLength is the smallest body worth compressing. Shorter bodies are
	// written as-is.
	MinLength int
	// ExcludedPrefixes are path prefixes that are never compressed.
	ExcludedPrefixes []string
}

// DefaultBrotliOptions compresses JSON bodies of 1 KiB and more.
var DefaultBrotliOptions = BrotliOptions{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// Brotli compresses responses for clients that accept "br".
func Brotli(opts BrotliOptions) gin.HandlerFunc {
	if opts.Quality < brotli.BestSpeed || opts.Quality > brotli.BestCompression {
		opts.Quality = brotli.DefaultCompression
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultBrotliOptions.MinLength
	}

	return func(c *gin.Context) {
		if !compressible(c, opts.ExcludedPrefixes) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		w := &brotliResponseWriter{ResponseWriter: c.Writer, quality: opts.Quality, threshold: opts.MinLength}
		c.Writer = w
		c.Next()

		if err := w.finish(); err != nil {
			_ = c.Error(err)
		}
	}
}

// brotliResponseWriter buffers until the threshold is reached, then switches
// to streaming through a brotli encoder.
type brotliResponseWriter struct {
	gin.ResponseWriter
	quality   int
	threshold int
	pending   []byte
	enc       *brotli.Writer
}

func (w *brotliResponseWriter) Write(p []byte) (int, error) {
	if w.enc != nil {
		return w.enc.Write(p)
	}
	w.pending = append(w.pending, p...)
	if len(w.pending) < w.threshold {
		return len(p), nil
	}

	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	w.enc = brotli.NewWriterLevel(w.ResponseWriter, w.quality)
	if _, err := w.enc.Write(w.pending); err != nil {
		return 0, err
	}
	w.pending = nil
	return len(p), nil
}

func (w *brotliResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish writes a short body uncompressed or closes the encoder.
func (w *brotliResponseWriter) finish() error {
	if w.enc != nil {
		return w.enc.Close()
	}
	if len(w.pending) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.pending)
	w.pending = nil
	return err
}

func compressible(c *gin.Context, excluded []string) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return false
	}
	for _, prefix := range excluded {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			return false
		}
	}
	return acceptsBrotli(c.Request)
}

// acceptsBrotli honours q-values, so "br;q=0" disables compression.
func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "br") {
			continue
		}
		params = strings.TrimSpace(params)
		if q, ok := strings.CutPrefix(params, "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}
		return true
	}
	return false
}
