package middleware

import "net/http"

// defaultHeaderWriter adds headers to a response only where the wrapped
// handler left them unset. The defaults are applied once, when the final
// status line is written.
type defaultHeaderWriter struct {
	http.ResponseWriter
	defaults http.Header
	applied  bool
}

func newDefaultHeaderWriter(w http.ResponseWriter, defaults http.Header) *defaultHeaderWriter {
	return &defaultHeaderWriter{ResponseWriter: w, defaults: defaults}
}

func (w *defaultHeaderWriter) WriteHeader(code int) {
	if code >= http.StatusOK {
		w.apply()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *defaultHeaderWriter) Write(b []byte) (int, error) {
	w.apply()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *defaultHeaderWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *defaultHeaderWriter) apply() {
	if w.applied {
		return
	}
	w.applied = true

	h := w.ResponseWriter.Header()
	for key, values := range w.defaults {
		if key == "Vary" {
			for _, v := range values {
				h.Add(key, v)
			}
			continue
		}
		if _, ok := h[key]; !ok {
			h[key] = values
		}
	}
}
