package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const uploadField = "file"

// handleProcessVoice streams the "file" part of a multipart upload into the
// voice pipeline and returns {transcript, data}. Nothing is persisted.
func handleProcessVoice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		defer r.Body.Close()

		mr, err := r.MultipartReader()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "expected a multipart/form-data upload: %v", err)
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
				return
			}
			if err != nil {
				uploadError(w, err)
				return
			}
			if part.FormName() != uploadField {
				part.Close()
				continue
			}

			res, meta, err := deps.Voice.Process(r.Context(), part, part.FileName())
			part.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					uploadError(w, err)
					return
				}
				deps.Log.WithRequest(r).WithError(err).Error("processing voice failed")
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}

			deps.Log.WithRequest(r).WithFields(logrus.Fields{
				"temp_file":     meta.TempFile,
				"bytes":         meta.Bytes,
				"transcribe_ms": meta.TranscribeDurationMs,
				"extract_ms":    meta.ExtractDurationMs,
			}).Debug("voice processed")

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(res)
			return
		}
	}
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpError(w, http.StatusRequestEntityTooLarge, "request_too_large", "upload exceeds %d bytes", tooLarge.Limit)
		return
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
}
