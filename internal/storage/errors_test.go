package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/go-redis/redis/v8"
)

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassFatal},
		{"redis nil", redis.Nil, ClassFatal},
		{"closed", redis.ErrClosed, ClassTransient},
		{"loading", replyError("LOADING Redis is loading the dataset in memory"), ClassTransient},
		{"busy", replyError("BUSY Redis is busy running a script"), ClassTransient},
		{"misconf", replyError("MISCONF Redis is configured to save RDB snapshots"), ClassTransient},
		{"noauth", replyError("NOAUTH Authentication required."), ClassTransient},
		{"oom", replyError("OOM command not allowed when used memory > 'maxmemory'."), ClassTransient},
		{"noreplicas", replyError("NOREPLICAS Not enough good replicas to write."), ClassTransient},
		{"readonly", replyError("READONLY You can't write against a read only replica."), ClassTransient},
		{"wrongtype", replyError("WRONGTYPE Operation against a key holding the wrong kind of value"), ClassFatal},
		{"err", replyError("ERR unknown command"), ClassFatal},
		{"wrapped reply", fmt.Errorf("rotate: %w", replyError("OOM full")), ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"canceled", context.Canceled, ClassTransient},
		{"eof", io.EOF, ClassTransient},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), ClassTransient},
		{"net op", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ClassTransient},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), ClassTransient},
		{"broken pipe", syscall.EPIPE, ClassTransient},
		{"parse", errors.New("redis: can't parse \"?\""), ClassTransient},
		{"pool timeout", errors.New("redis: connection pool timeout"), ClassTransient},
		{"plain", errors.New("strconv.ParseInt: invalid syntax"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestReplyCode(t *testing.T) {
	if got := ReplyCode(replyError("MISCONF snapshot failed")); got != "MISCONF" {
		t.Errorf("ReplyCode() = %s, want MISCONF", got)
	}
	if got := ReplyCode(replyError("ERR")); got != "ERR" {
		t.Errorf("ReplyCode() = %s, want ERR", got)
	}
}

func TestErrorClassString(t *testing.T) {
	if ClassTransient.String() != "transient" || ClassFatal.String() != "fatal" {
		t.Error("ErrorClass.String() mismatch")
	}
}
