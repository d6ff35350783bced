// Package httpclient sends the scripted requests of a scenario.
//
// A single [Client] is shared by every virtual user. It provides:
//   - Connection pooling and a per-request timeout
//   - A global requests-per-second limit shared by all callers
//   - Retries with exponential backoff for transport errors
//   - Optional OpenTelemetry client spans and W3C header injection
//   - Recording of every attempt into a [metrics.Collector]
//
// # Usage
//
//	client := httpclient.New(httpclient.Options{
//		Timeout:   30 * time.Second,
//		RPS:       100,
//		Retries:   2,
//		Collector: collector,
//	})
//	resp, err := client.Do(ctx, httpclient.Request{
//		Method: http.MethodPost,
//		URL:    "http://localhost:8080/team/add",
//		Header: http.Header{"Content-Type": {"application/json"}},
//		Body:   payload,
//	})
//
// A response with any status code is returned without error; callers judge
// status codes with checks. Only failures to complete the exchange are
// returned as errors.
package httpclient
