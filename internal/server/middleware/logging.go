package middleware

import (
	"context"
	"strings"
	"time"

	"ShiftGuard/internal/biz"
	pkglog "ShiftGuard/pkg/log"

	kratoserrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Logging injects a request context, logs every request with its status
// and duration, and feeds the outcome into the alert engine's rolling
// metrics window. Auth failures count as security violations; 400s count
// as validation errors.
func Logging(engine *biz.AlertEngine, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
				clientID  string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
					clientID = biz.ClientIdentifier(maskAPIKey(extractAPIKey(httpReq)), ip)

					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, clientID)

			reply, err := handler(ctx, req)

			duration := time.Since(startTime)

			status := 200
			if err != nil {
				status = extractHTTPStatus(err)
			}

			// Server-side failures count against the failure rate; client
			// errors do not, but 400s and auth failures feed their own
			// counters.
			engine.RecordRequest(duration, status < 500)
			switch status {
			case 400:
				engine.RecordValidationError()
			case 401, 403:
				engine.RecordSecurityViolation()
				logger.Security("Unauthorized request rejected",
					"path", path,
					"client_id", clientID,
					"status", status,
				)
			}

			logger.RequestWithContext(ctx, method, path, status, duration.Milliseconds(),
				"ip", ip,
				"user_agent", userAgent,
			)

			return reply, err
		}
	}
}

// extractClientIP resolves the client IP with proxy headers taking
// precedence: X-Real-IP, then the first X-Forwarded-For hop, then
// RemoteAddr.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps an error to its HTTP status code via the Kratos
// error model. Unrecognized errors map to 500.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if se := kratoserrors.FromError(err); se != nil {
		return int(se.Code)
	}
	return 500
}
