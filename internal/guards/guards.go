// Package guards validates inbound chat messages before they reach the
// retrieval and generation pipeline.
package guards

import (
	"context"
	"log"
	"regexp"
	"sync"
	"time"
)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|commands?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you\s+)?(were\s+)?(told|learned|know)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a\s+)?(different|new)`),
	regexp.MustCompile(`(?i)system\s*:\s*ignore`),
	regexp.MustCompile(`(?i)\[SYSTEM\]`),
	regexp.MustCompile(`(?i)pretend\s+(you|to\s+be)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if|though)`),
	regexp.MustCompile(`(?i)new\s+instructions?`),
	regexp.MustCompile(`(?i)override\s+(previous|system)`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)prompt\s+injection`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
}

var unethicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how\s+to\s+(hack|crack|exploit|bypass)`),
	regexp.MustCompile(`(?i)generate\s+(malware|virus|exploit)`),
	regexp.MustCompile(`(?i)illegal\s+(drugs|weapons|activities)`),
	regexp.MustCompile(`(?i)create\s+(fake|counterfeit|forged)`),
	regexp.MustCompile(`(?i)bypass\s+(security|authentication|protection)`),
}

// Rejection codes surfaced in Result.Code.
const (
	CodeEmptyMessage     = "empty_message"
	CodeMessageTooLong   = "message_too_long"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeSessionLimit     = "session_limit_reached"
	CodePromptInjection  = "prompt_injection_detected"
	CodeUnethicalContent = "unethical_content"
	CodeToxicContent     = "toxic_content"
)

// Result is the outcome of validating one message.
type Result struct {
	OK     bool
	Code   string
	Reason string
}

func reject(code, reason string) Result {
	return Result{Code: code, Reason: reason}
}

// Moderator is the AI moderation hook. A moderation failure is treated as
// safe (fail open): moderation is a best-effort layer, not a gate the whole
// pipeline depends on.
type Moderator interface {
	Moderate(ctx context.Context, message string) (safe bool, err error)
}

// Config bounds for the validator.
type Config struct {
	MaxMessageLength   int
	MaxSessionMessages int
	RateLimitPerMinute int
	ModerationEnabled  bool
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

// Validator applies the guard checks in order of increasing cost.
type Validator struct {
	cfg       Config
	moderator Moderator

	mu    sync.Mutex
	rates map[string]*rateEntry
}

func NewValidator(cfg Config, moderator Moderator) *Validator {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 500
	}
	if cfg.MaxSessionMessages <= 0 {
		cfg.MaxSessionMessages = 50
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 20
	}
	return &Validator{
		cfg:       cfg,
		moderator: moderator,
		rates:     make(map[string]*rateEntry),
	}
}

// Validate runs all checks for one message. clientID keys the rate limiter
// (the session id in practice); sessionMessageCount caps conversation length,
// pass a negative value to skip that check.
func (v *Validator) Validate(ctx context.Context, message, clientID string, sessionMessageCount int) Result {
	if r := v.checkBasicRules(message); !r.OK {
		return r
	}
	if r := v.checkRateLimit(clientID); !r.OK {
		return r
	}
	if sessionMessageCount >= 0 && sessionMessageCount >= v.cfg.MaxSessionMessages {
		return reject(CodeSessionLimit, "maximum messages per session reached, start a new conversation")
	}
	for _, p := range injectionPatterns {
		if p.MatchString(message) {
			return reject(CodePromptInjection, "detected attempt to override system instructions")
		}
	}
	for _, p := range unethicalPatterns {
		if p.MatchString(message) {
			return reject(CodeUnethicalContent, "message contains potentially harmful or illegal content")
		}
	}
	if v.cfg.ModerationEnabled && v.moderator != nil {
		safe, err := v.moderator.Moderate(ctx, message)
		if err != nil {
			log.Printf("guards: moderation check failed, allowing message: %v", err)
		} else if !safe {
			return reject(CodeToxicContent, "message contains offensive or inappropriate content")
		}
	}
	return Result{OK: true}
}

func (v *Validator) checkBasicRules(message string) Result {
	hasContent := false
	for _, r := range message {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return reject(CodeEmptyMessage, "message cannot be empty")
	}
	if len(message) > v.cfg.MaxMessageLength {
		return reject(CodeMessageTooLong, "message exceeds the maximum allowed length")
	}
	return Result{OK: true}
}

func (v *Validator) checkRateLimit(clientID string) Result {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.rates[clientID]
	if !ok || now.After(entry.resetAt) {
		v.rates[clientID] = &rateEntry{count: 1, resetAt: now.Add(time.Minute)}
		return Result{OK: true}
	}
	if entry.count >= v.cfg.RateLimitPerMinute {
		return reject(CodeRateLimited, "too many messages, wait a moment before sending another")
	}
	entry.count++
	return Result{OK: true}
}

// StartJanitor periodically drops expired rate-limit windows.
func (v *Validator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.cleanup()
			}
		}
	}()
}

func (v *Validator) cleanup() {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, entry := range v.rates {
		if now.After(entry.resetAt) {
			delete(v.rates, id)
		}
	}
}
