package testutils

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http/httptrace"
	"sync/atomic"
	"testing"
	"time"
)

// ConnStats counts what the HTTP client did with connections while a traced
// request ran.
type ConnStats struct {
	Got    atomic.Int64
	Reused atomic.Int64
}

// WithHTTPTrace returns a context whose requests update stats and, with
// NETDEBUG set, log each step of the exchange to the test log.
func WithHTTPTrace(tb testing.TB, ctx context.Context, stats *ConnStats) context.Context {
	tb.Helper()

	start := time.Now()
	logf := func(format string, args ...interface{}) {
		if netdebug {
			tb.Logf("[%v]: %s", time.Since(start).Round(time.Microsecond), fmt.Sprintf(format, args...))
		}
	}

	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			logf("GetConn: %s", hostPort)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			stats.Got.Add(1)
			if info.Reused {
				stats.Reused.Add(1)
			}
			logf("GotConn: reused=%v idle=%v", info.Reused, info.WasIdle)
		},
		PutIdleConn: func(err error) {
			logf("PutIdleConn: %v", err)
		},
		ConnectStart: func(network, addr string) {
			logf("ConnectStart: %s %s", network, addr)
		},
		ConnectDone: func(network, addr string, err error) {
			logf("ConnectDone: %s %s %v", network, addr, err)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			logf("TLSHandshakeDone: proto=%q %v", state.NegotiatedProtocol, err)
		},
		WroteHeaderField: func(key string, value []string) {
			logf("WroteHeaderField: %s: %v", key, value)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			logf("WroteRequest: %+v", info)
		},
		GotFirstResponseByte: func() {
			logf("GotFirstResponseByte")
		},
	}

	return httptrace.WithClientTrace(ctx, trace)
}
