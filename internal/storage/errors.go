package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
)

// ErrorClass tells the consumer whether a failed item may succeed on retry
type ErrorClass int

const (
	// ClassFatal errors are not expected to succeed on retry; the item is dropped
	ClassFatal ErrorClass = iota
	// ClassTransient errors come from an unavailable or degraded store
	ClassTransient
)

func (c ErrorClass) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "fatal"
}

// Redis error reply codes that signal a server that is temporarily unable to
// serve writes
var transientCodes = map[string]bool{
	"LOADING":     true,
	"BUSY":        true,
	"MISCONF":     true,
	"NOAUTH":      true,
	"OOM":         true,
	"NOREPLICAS":  true,
	"MASTERDOWN":  true,
	"TRYAGAIN":    true,
	"READONLY":    true,
	"CLUSTERDOWN": true,
}

var transientPrefixes = []string{
	"redis: can't parse",
	"redis: invalid reply",
	"redis: connection pool timeout",
}

// Classify sorts a storage error into transient or fatal
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}

	// redis.Nil is itself a redis.Error, test it first
	if errors.Is(err, redis.Nil) {
		return ClassFatal
	}
	if errors.Is(err, redis.ErrClosed) {
		return ClassTransient
	}

	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		if transientCodes[ReplyCode(replyErr)] {
			return ClassTransient
		}
		if !isProtocolError(replyErr.Error()) {
			return ClassFatal
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ClassTransient
	}

	if isProtocolError(err.Error()) {
		return ClassTransient
	}
	return ClassFatal
}

// ReplyCode returns the leading code word of a Redis error reply
func ReplyCode(err redis.Error) string {
	code, _, _ := strings.Cut(err.Error(), " ")
	return code
}

func isProtocolError(msg string) bool {
	for _, prefix := range transientPrefixes {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}
