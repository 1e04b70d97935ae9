package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// idempotencyKey защищает платёжный endpoint от повторной доставки
// webhook-а провайдера: повтор с тем же ключом получает сохранённый ответ
// первой обработки, тот же ключ с другим телом отклоняется.
func (s *Server) idempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if s.idempotency == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashRequest(r.Method, r.URL.Path, body)

		_, err = s.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			s.replayOrReject(w, key, err)
			return
		}

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		s.settleIdempotency(key, recorder)
	})
}

// replayOrReject обрабатывает повторный ключ: завершённый запрос
// отвечает сохранённым результатом, ещё обрабатываемый — конфликтом.
func (s *Server) replayOrReject(w http.ResponseWriter, key string, createErr error) {
	if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: createErr.Error()})
		return
	}
	if !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) {
		s.logger.WithError(createErr).Error("idempotency key registration failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		return
	}

	record, err := s.idempotency.Get(key)
	if err != nil {
		s.logger.WithError(err).Error("idempotency record lookup failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		return
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	default:
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "request with this idempotency key is being processed"})
	}
}

func (s *Server) settleIdempotency(key string, recorder *responseRecorder) {
	var err error
	if recorder.status >= http.StatusInternalServerError {
		err = s.idempotency.MarkFailed(key, recorder.body.Bytes(), recorder.status)
	} else {
		err = s.idempotency.MarkDone(key, recorder.body.Bytes(), recorder.status)
	}
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to settle idempotency record")
	}
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder дублирует ответ для сохранения в idempotency-записи.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
