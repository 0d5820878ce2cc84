package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/internal/metrics"
	"github.com/betbot/optcalc/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeJSON 先完整序列化再写状态码，序列化失败时返回 500 而不是空的 200
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.WithField("request_id", requestIDFrom(r)).Errorf("%s %s: encode response: %v", r.Method, r.URL.Path, err)
		w.Header().Del(resultOrderHeader)
		status = http.StatusInternalServerError
		b = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		logger.WithField("request_id", requestIDFrom(r)).Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]any{"error": msg})
}

// writeAppError 按错误分类写响应；校验错误带字段明细，内部错误只返回通用信息并记日志
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.UpstreamErrors.Add(1)
		writeError(w, r, http.StatusGatewayTimeout, "market data request timed out")
		return
	}
	if errors.Is(err, context.Canceled) {
		// 客户端已断开，响应无人接收
		return
	}

	status := apperr.HTTPStatus(err)
	switch status {
	case http.StatusBadRequest:
		metrics.ValidationErrors.Add(1)
		writeJSON(w, r, status, map[string]any{
			"error":  "validation failed",
			"fields": apperr.Fields(err),
		})
	case http.StatusInternalServerError:
		logger.WithField("request_id", requestIDFrom(r)).Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, r, status, "internal server error")
	default:
		if status == http.StatusBadGateway || status == http.StatusTooManyRequests {
			metrics.UpstreamErrors.Add(1)
		}
		if status == http.StatusBadGateway {
			logger.WithField("request_id", requestIDFrom(r)).Warnf("%s %s: %v", r.Method, r.URL.Path, err)
		}
		writeError(w, r, status, err.Error())
	}
}

// decodeJSON 解码请求体；格式错误统一转为 body 字段的校验错误
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("body", nil, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("body", nil, "request body too large")
		}
		return apperr.Invalid("body", nil, "invalid json body: "+err.Error())
	}
	if dec.More() {
		return apperr.Invalid("body", nil, "request body must contain a single json object")
	}
	return nil
}
