package queue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 signature of the callback
// body, hex-encoded with a scheme prefix.
const SignatureHeader = "X-Forged-Signature"

// deliverCallback POSTs the terminal job snapshot to the callback URL.
// Delivery is best-effort: failures are logged, never retried, and
// never affect the job's recorded outcome.
func (q *Queue) deliverCallback(job *Job, cb *Callback) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	body, err := json.Marshal(job)
	if err != nil {
		q.log.Error(ctx, "callback payload marshal failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(body))
	if err != nil {
		q.log.Error(ctx, "callback request build failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if cb.Secret.IsSet() {
		req.Header.Set(SignatureHeader, "sha256="+signBody(body, cb.Secret.Value()))
	}

	resp, err := q.client.Do(req)
	if err != nil {
		q.log.Warn(ctx, "callback delivery failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		q.log.Warn(ctx, "callback rejected",
			zap.String("job_id", job.ID),
			zap.Int("status", resp.StatusCode))
		return
	}
	q.log.Debug(ctx, "callback delivered", zap.String("job_id", job.ID))
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header value against the
// body and secret. Intended for callback consumers and tests.
func VerifySignature(body []byte, secret, header string) bool {
	want := "sha256=" + signBody(body, secret)
	return hmac.Equal([]byte(want), []byte(header))
}
