package cashdeskhttp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

const (
	// IdempotencyHeader carries the client-chosen key of a write.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"

	maxKeyLength = 128
)

// idempotent wraps a write handler. With a key present, the first completed response is
// stored and replayed for retries carrying the same key and payload.
func (h *Handler) idempotent(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if h.idempotency == nil || key == "" {
			next(w, r)
			return
		}
		if len(key) > maxKeyLength {
			h.fail(w, r, fmt.Errorf("%w: %s longer than %d characters", shared.ErrValidation, IdempotencyHeader, maxKeyLength))
			return
		}
		branchID, err := branchParam(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: read body: %v", shared.ErrValidation, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := fingerprintOf(r, body)
		storeKey := shared.IdempotencyRedisKey(branchID, actorOf(r).ID, operation, key)
		stored, err := h.idempotency.Begin(r.Context(), storeKey)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if stored != nil {
			if stored.Fingerprint != fingerprint {
				h.fail(w, r, fmt.Errorf("%w: %s reused with a different request", shared.ErrValidation, IdempotencyHeader))
				return
			}
			replay(w, stored)
			return
		}

		rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithoutCancel(r.Context())
		defer func() {
			if p := recover(); p != nil {
				if err := h.idempotency.Release(ctx, storeKey); err != nil {
					h.logger.Warn("idempotency release", slog.String("operation", operation), slog.Any("error", err))
				}
				panic(p)
			}
		}()
		next(rec, r)

		if !storable(rec.status) {
			if err := h.idempotency.Release(ctx, storeKey); err != nil {
				h.logger.Warn("idempotency release", slog.String("operation", operation), slog.Any("error", err))
			}
			return
		}
		resp := shared.StoredResponse{
			Fingerprint: fingerprint,
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := h.idempotency.Complete(ctx, storeKey, resp); err != nil {
			h.logger.Warn("idempotency complete", slog.String("operation", operation), slog.Any("error", err))
		}
	}
}

// storable reports whether a response is final. Retryable outcomes release the key.
func storable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return false
	case status == http.StatusConflict, status == http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

func fingerprintOf(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{0})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

func replay(w http.ResponseWriter, stored *shared.StoredResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturingWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

