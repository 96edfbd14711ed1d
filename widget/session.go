package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
)

const (
	DefaultInactivityTimeout = 5 * time.Minute
	DefaultCheckInterval     = 10 * time.Second

	// ApologyMessage is appended when an exchange with the orchestrator fails
	ApologyMessage = "Sorry, I'm having trouble connecting right now. Please try sending your message again."
	// StartFailedMessage seeds the log when the opening exchange fails
	StartFailedMessage = "Sorry, I couldn't start our conversation. You can still type a message below and I'll pick it up."
	// InactivityMessage is appended when the session times out
	InactivityMessage = "This chat has been closed due to inactivity. Thanks for your time, we'll follow up by email."
)

var (
	ErrSessionCompleted = errors.New("session is completed")
	ErrAlreadyStarted   = errors.New("conversation already started")
	ErrExchangeInFlight = errors.New("another exchange is in flight")
	ErrEmptyMessage     = errors.New("message has no text or files")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FileDescriptor is an uploaded file: the backend id plus its display name
type FileDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one entry in the append-only session log
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Files     []FileDescriptor `json:"files,omitempty"`
	Synthetic bool             `json:"synthetic,omitempty"`
}

// LateReplyPolicy decides what happens to a reply that resolves after the
// session was already completed by another trigger.
type LateReplyPolicy int

const (
	AppendLateReplies LateReplyPolicy = iota
	DropLateReplies
)

// Snapshot is a copy of the client-visible session state
type Snapshot struct {
	ThreadID         string
	Messages         []Message
	IsLoading        bool
	IsCompleted      bool
	IsUploadingFiles bool
	LastActivity     time.Time
	MessageCount     int
}

type options struct {
	inactivityTimeout time.Duration
	checkInterval     time.Duration
	now               func() time.Time
	lateReplies       LateReplyPolicy
	onChange          func(Snapshot)
	logger            *zap.Logger
}

// Option configures a Session
type Option func(*options)

func WithInactivityTimeout(d time.Duration) Option {
	return func(o *options) { o.inactivityTimeout = d }
}

func WithCheckInterval(d time.Duration) Option {
	return func(o *options) { o.checkInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLateReplyPolicy(p LateReplyPolicy) Option {
	return func(o *options) { o.lateReplies = p }
}

// WithChangeListener registers a callback invoked after every state change.
// It runs outside the session lock and may call Snapshot.
func WithChangeListener(fn func(Snapshot)) Option {
	return func(o *options) { o.onChange = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Session owns the client-side state of one conversational intake.
//
// At most one exchange may be in flight. The inactivity watcher runs on its own
// goroutine, so state is guarded by mu; orchestrator calls happen outside it.
type Session struct {
	orchestrator Orchestrator
	form         model.FormData
	opts         options

	mu           sync.Mutex
	threadID     string
	messages     []Message
	isLoading    bool
	isCompleted  bool
	isUploading  bool
	closed       bool
	lastActivity time.Time
	messageCount int

	watchOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	watchDone chan struct{}
}

// NewSession creates an idle session for one participant
func NewSession(orchestrator Orchestrator, form model.FormData, opts ...Option) *Session {
	o := options{
		inactivityTimeout: DefaultInactivityTimeout,
		checkInterval:     DefaultCheckInterval,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = utils.OrNop(o.logger)

	return &Session{
		orchestrator: orchestrator,
		form:         form,
		opts:         o,
		lastActivity: o.now(),
		stop:         make(chan struct{}),
		watchDone:    make(chan struct{}),
	}
}

// Form returns the participant descriptor
func (s *Session) Form() model.FormData {
	return s.form
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		ThreadID:         s.threadID,
		Messages:         messages,
		IsLoading:        s.isLoading,
		IsCompleted:      s.isCompleted,
		IsUploadingFiles: s.isUploading,
		LastActivity:     s.lastActivity,
		MessageCount:     s.messageCount,
	}
}

// StartConversation sends the opening message and seeds the log with the greeting
func (s *Session) StartConversation(ctx context.Context) error {
	s.mu.Lock()
	if len(s.messages) > 0 {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if err := s.beginExchangeLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	req := s.requestLocked(model.ActionStart)
	req.Message = OpeningMessage(s.form)
	s.mu.Unlock()
	s.notify()

	reply, err := s.orchestrator.Send(ctx, req)

	s.mu.Lock()
	s.isLoading = false
	if err != nil {
		s.opts.logger.Warn("Failed to start conversation", zap.String("session_id", s.form.SessionID), zap.Error(err))
		s.appendLocked(RoleAssistant, StartFailedMessage, nil, true)
	} else {
		s.acceptReplyLocked(reply)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SendMessage appends the user's message immediately and then the assistant's
// reply once the round trip resolves. Exchange failures append an apology and
// leave the session open.
func (s *Session) SendMessage(ctx context.Context, content string, files []FileDescriptor) error {
	content = strings.TrimSpace(content)
	if content == "" && len(files) == 0 {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.isCompleted || s.closed {
		s.mu.Unlock()
		return ErrSessionCompleted
	}
	if err := s.beginExchangeLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.appendLocked(RoleUser, content, files, false)
	if now := s.opts.now(); now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.messageCount++

	req := s.requestLocked(model.ActionMessage)
	req.Message = content
	for _, f := range files {
		req.FileIDs = append(req.FileIDs, f.ID)
	}
	s.mu.Unlock()
	s.notify()

	reply, err := s.orchestrator.Send(ctx, req)

	s.mu.Lock()
	s.isLoading = false
	late := s.isCompleted
	switch {
	case late && s.opts.lateReplies == DropLateReplies:
		s.opts.logger.Info("Dropping reply that arrived after completion", zap.String("session_id", s.form.SessionID))
	case err != nil:
		s.opts.logger.Warn("Message exchange failed", zap.String("session_id", s.form.SessionID), zap.Error(err))
		s.appendLocked(RoleAssistant, ApologyMessage, nil, true)
	default:
		s.acceptReplyLocked(reply)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// HandleClose notifies the orchestrator that the user closed the chat. The
// caller is expected to discard the session afterwards.
func (s *Session) HandleClose(ctx context.Context) error {
	s.mu.Lock()
	if s.isCompleted || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	req := s.requestLocked(model.ActionClose)
	s.mu.Unlock()

	s.stopWatcher()
	if _, err := s.orchestrator.Send(ctx, req); err != nil {
		s.opts.logger.Warn("Failed to report closed session", zap.String("session_id", s.form.SessionID), zap.Error(err))
		return err
	}
	return nil
}

// HandleTimeout completes the session for inactivity. It is a no-op once the
// session is completed or closed.
func (s *Session) HandleTimeout(ctx context.Context) error {
	s.mu.Lock()
	if s.isCompleted || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.isCompleted = true
	req := s.requestLocked(model.ActionTimeout)
	s.mu.Unlock()
	s.notify()

	_, err := s.orchestrator.Send(ctx, req)
	if err != nil {
		s.opts.logger.Warn("Failed to report session timeout", zap.String("session_id", s.form.SessionID), zap.Error(err))
	}

	s.mu.Lock()
	s.appendLocked(RoleAssistant, InactivityMessage, nil, true)
	s.mu.Unlock()
	s.notify()
	return err
}

// StartWatcher begins the periodic inactivity check. It stops by itself once
// the session completes; Stop ends it early.
func (s *Session) StartWatcher() {
	s.watchOnce.Do(func() {
		go s.watch()
	})
}

// Stop ends the inactivity watcher and waits for it to exit
func (s *Session) Stop() {
	s.stopWatcher()
	started := true
	s.watchOnce.Do(func() { started = false })
	if started {
		<-s.watchDone
	}
}

func (s *Session) stopWatcher() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) watch() {
	defer close(s.watchDone)

	ticker := time.NewTicker(s.opts.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			done := s.isCompleted || s.closed
			idle := len(s.messages) > 0 && s.opts.now().Sub(s.lastActivity) >= s.opts.inactivityTimeout
			s.mu.Unlock()

			if done {
				return
			}
			if idle {
				_ = s.HandleTimeout(context.Background())
				return
			}
		}
	}
}

func (s *Session) beginExchangeLocked() error {
	if s.isLoading || s.isUploading {
		return ErrExchangeInFlight
	}
	s.isLoading = true
	return nil
}

func (s *Session) requestLocked(action model.IntakeAction) model.IntakeChatRequest {
	return model.IntakeChatRequest{
		Action:       action,
		ThreadID:     s.threadID,
		FormData:     s.form,
		MessageCount: s.messageCount,
	}
}

// acceptReplyLocked merges an assistant reply into the log. A backend-signaled
// completion is the natural-completion terminal trigger.
func (s *Session) acceptReplyLocked(reply *Reply) {
	if reply == nil {
		s.appendLocked(RoleAssistant, ApologyMessage, nil, true)
		return
	}
	if s.threadID == "" && reply.ThreadID != "" {
		s.threadID = reply.ThreadID
	}
	s.appendLocked(RoleAssistant, reply.Message, nil, false)
	if reply.Completed {
		s.isCompleted = true
	}
}

func (s *Session) appendLocked(role Role, content string, files []FileDescriptor, synthetic bool) {
	var attached []FileDescriptor
	if len(files) > 0 {
		attached = append(attached, files...)
	}
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.opts.now(),
		Files:     attached,
		Synthetic: synthetic,
	})
}

func (s *Session) notify() {
	if s.opts.onChange == nil {
		return
	}
	s.opts.onChange(s.Snapshot())
}

// OpeningMessage is the first user turn sent on start; it introduces the
// participant so the assistant can greet them by name.
func OpeningMessage(form model.FormData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi, I'm %s (%s).", form.Name, form.Email)
	switch form.Type {
	case model.InquiryTypeProjectLead:
		b.WriteString(" I'd like to discuss a project")
		if form.CompanyName != "" {
			fmt.Fprintf(&b, " for %s", form.CompanyName)
		}
		b.WriteString(".")
	default:
		b.WriteString(" I'm interested in joining your talent network.")
	}
	if form.Phone != "" {
		fmt.Fprintf(&b, " You can also reach me at %s.", form.Phone)
	}
	return b.String()
}
