// Package analytics records login events and tags crash reports with the user.
// A sink never influences control flow: it has no error returns.
package analytics

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sink receives analytics events.
type Sink interface {
	SetUserIdentifier(id string)
	SetUserName(name string)
	LogLogin(method string, success bool, attrs map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetUserIdentifier(string)                 {}
func (Nop) SetUserName(string)                       {}
func (Nop) LogLogin(string, bool, map[string]string) {}

// ZapSink writes events as structured log lines, tagged with the current user.
type ZapSink struct {
	log *zap.Logger

	mu       sync.Mutex
	userID   string
	userName string
}

func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log.Named("analytics")}
}

func (s *ZapSink) SetUserIdentifier(id string) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
}

func (s *ZapSink) SetUserName(name string) {
	s.mu.Lock()
	s.userName = name
	s.mu.Unlock()
}

func (s *ZapSink) LogLogin(method string, success bool, attrs map[string]string) {
	s.mu.Lock()
	fields := []zap.Field{
		zap.String("event", "login"),
		zap.String("method", method),
		zap.Bool("success", success),
		zap.String("user_id", s.userID),
	}
	if s.userName != "" {
		fields = append(fields, zap.String("user_name", s.userName))
	}
	s.mu.Unlock()

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String("attr."+k, attrs[k]))
	}
	s.log.Info("analytics event", fields...)
}
