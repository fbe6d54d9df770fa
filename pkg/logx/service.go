package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig mirrors warnings and errors into a chat channel so operators
// see problems without tailing files. The sink is rate limited; bursts are
// dropped, not queued forever.
type ChatConfig struct {
	Enabled    bool
	ChatID     int64
	MinLevel   string
	RatePerSec int
}

// ChatSender is the narrow outbound interface the chat sink needs.
// The transport adapter implements it.
type ChatSender interface {
	SendLog(ctx context.Context, chatID int64, text string) error
}

// Service owns the sink configuration and hands out live Loggers.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender   ChatSender
	queue    chan chatItem
	workOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// guarded by mu
	chatID   int64
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type chatItem struct {
	chatID int64
	msg    string
}

// New creates the logging service, applies cfg immediately, and returns the
// Service together with a root Logger bound to it.
func New(cfg Config, sender ChatSender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		cfg:    cfg,
		sender: sender,
		queue:  make(chan chatItem, 256),
	}
	s.root.Store(newConsoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel)))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetChatTarget updates the chat sink destination, typically after the
// transport adapter has resolved its log channel.
func (s *Service) SetChatTarget(chatID int64) {
	s.mu.Lock()
	s.chatID = chatID
	s.mu.Unlock()
}

// Apply swaps sink outputs and levels at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Chat.MinLevel, zerolog.WarnLevel)
	rps := cfg.Chat.RatePerSec
	if rps < 1 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Chat.ChatID != 0 {
		s.chatID = cfg.Chat.ChatID
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./rosterbot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Chat.Enabled {
		s.workOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.chatWorker(ctx)
			}()
		})
		writers = append(writers, &chatWriter{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: chat logging enabled but no chat target is set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	mw := zerolog.MultiLevelWriter(writers...)
	s.root.Store(zerolog.New(mw).Level(lvl).With().Timestamp().Logger())
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

func (s *Service) chatWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if s.sender == nil || it.chatID == 0 {
				continue
			}
			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					return
				}
			}
			sctx, cancel := context.WithTimeout(ctx, 8*time.Second)
			_ = s.sender.SendLog(sctx, it.chatID, it.msg)
			cancel()
		}
	}
}

// chatWriter adapts the zerolog sink contract onto the chat queue.
// Enqueue is non-blocking: if the queue is full the line is dropped.
type chatWriter struct {
	svc *Service
}

func (w *chatWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	min := s.minLevel
	chatID := s.chatID
	s.mu.Unlock()
	if level < min || chatID == 0 {
		return len(p), nil
	}
	select {
	case s.queue <- chatItem{chatID: chatID, msg: strings.TrimSpace(string(p))}:
	default:
	}
	return len(p), nil
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(newConsoleWriter(os.Stdout)).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	return cw
}
