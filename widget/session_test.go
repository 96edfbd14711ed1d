package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedOrchestrator answers each action from a queue of replies. A gate,
// when set for an action, blocks that action until the gate is closed.
type scriptedOrchestrator struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []model.IntakeChatRequest
	gates    map[model.IntakeAction]chan struct{}
}

type scriptedReply struct {
	reply *Reply
	err   error
}

func (o *scriptedOrchestrator) push(reply *Reply, err error) *scriptedOrchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replies = append(o.replies, scriptedReply{reply: reply, err: err})
	return o
}

func (o *scriptedOrchestrator) gate(action model.IntakeAction) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gates == nil {
		o.gates = map[model.IntakeAction]chan struct{}{}
	}
	ch := make(chan struct{})
	o.gates[action] = ch
	return ch
}

func (o *scriptedOrchestrator) Send(ctx context.Context, req model.IntakeChatRequest) (*Reply, error) {
	o.mu.Lock()
	o.requests = append(o.requests, req)
	gate := o.gates[req.Action]
	o.mu.Unlock()

	if gate != nil {
		<-gate
	}

	switch req.Action {
	case model.ActionClose, model.ActionTimeout:
		return &Reply{Success: true, Message: "Session closed"}, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := o.replies[0]
	o.replies = o.replies[1:]
	return next.reply, next.err
}

func (o *scriptedOrchestrator) actions() []model.IntakeAction {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.IntakeAction, 0, len(o.requests))
	for _, r := range o.requests {
		out = append(out, r.Action)
	}
	return out
}

func (o *scriptedOrchestrator) count(action model.IntakeAction) int {
	n := 0
	for _, a := range o.actions() {
		if a == action {
			n++
		}
	}
	return n
}

func (o *scriptedOrchestrator) lastRequest() model.IntakeChatRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[len(o.requests)-1]
}

var testForm = model.FormData{
	Name:      "Jane Doe",
	Email:     "jane@x.com",
	Type:      model.InquiryTypeCandidate,
	SessionID: "s1",
}

func contents(s Snapshot) []string {
	out := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

func TestStartConversation_SeedsGreeting(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Hi Jane!"}, nil)
	session := NewSession(orch, testForm)

	require.NoError(t, session.StartConversation(context.Background()))

	snap := session.Snapshot()
	assert.Equal(t, []string{"assistant:Hi Jane!"}, contents(snap))
	assert.Equal(t, "th_1", snap.ThreadID)
	assert.False(t, snap.IsLoading)
	assert.False(t, snap.IsCompleted)

	req := orch.lastRequest()
	assert.Equal(t, model.ActionStart, req.Action)
	assert.Empty(t, req.ThreadID)
	assert.Contains(t, req.Message, "Jane Doe")
	assert.Contains(t, req.Message, "jane@x.com")

	assert.ErrorIs(t, session.StartConversation(context.Background()), ErrAlreadyStarted)
}

func TestStartConversation_FailureIsNonFatal(t *testing.T) {
	orch := (&scriptedOrchestrator{}).
		push(nil, errors.New("502")).
		push(&Reply{ThreadID: "th_9", Message: "Hello!"}, nil)
	session := NewSession(orch, testForm)

	require.NoError(t, session.StartConversation(context.Background()))
	snap := session.Snapshot()
	assert.Equal(t, []string{"assistant:" + StartFailedMessage}, contents(snap))
	assert.True(t, snap.Messages[0].Synthetic)
	assert.Empty(t, snap.ThreadID)

	require.NoError(t, session.SendMessage(context.Background(), "Are you there?", nil))
	assert.Equal(t, "th_9", session.Snapshot().ThreadID)
}

func TestSendMessage_CreatesThreadLazily(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_2", Message: "Great, thanks!"}, nil)
	session := NewSession(orch, testForm)

	require.NoError(t, session.SendMessage(context.Background(), "I am available immediately", nil))

	snap := session.Snapshot()
	assert.Equal(t, []string{"user:I am available immediately", "assistant:Great, thanks!"}, contents(snap))
	assert.Equal(t, "th_2", snap.ThreadID)
	assert.Equal(t, 1, snap.MessageCount)

	req := orch.lastRequest()
	assert.Equal(t, model.ActionMessage, req.Action)
	assert.Empty(t, req.ThreadID)
	assert.Equal(t, 1, req.MessageCount)
}

func TestSendMessage_LogOrderAndThreadIdentity(t *testing.T) {
	orch := (&scriptedOrchestrator{}).
		push(&Reply{ThreadID: "th_1", Message: "one"}, nil).
		push(&Reply{ThreadID: "th_other", Message: "two"}, nil).
		push(&Reply{ThreadID: "", Message: "three"}, nil)
	session := NewSession(orch, testForm)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, session.SendMessage(context.Background(), text, nil))
	}

	snap := session.Snapshot()
	assert.Equal(t, []string{
		"user:a", "assistant:one",
		"user:b", "assistant:two",
		"user:c", "assistant:three",
	}, contents(snap))
	assert.Equal(t, "th_1", snap.ThreadID)
	assert.Equal(t, 3, snap.MessageCount)
	assert.Equal(t, "th_1", orch.lastRequest().ThreadID)
	assert.Equal(t, 3, orch.lastRequest().MessageCount)
}

func TestSendMessage_AttachesFiles(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Got it"}, nil)
	session := NewSession(orch, testForm)
	files := []FileDescriptor{{ID: "file_1", Name: "cv.pdf"}, {ID: "file_2", Name: "refs.txt"}}

	require.NoError(t, session.SendMessage(context.Background(), "", files))

	snap := session.Snapshot()
	assert.Equal(t, files, snap.Messages[0].Files)
	assert.Equal(t, []string{"file_1", "file_2"}, orch.lastRequest().FileIDs)

	assert.ErrorIs(t, session.SendMessage(context.Background(), "   ", nil), ErrEmptyMessage)
}

func TestSendMessage_FailureAppendsApology(t *testing.T) {
	orch := (&scriptedOrchestrator{}).
		push(nil, errors.New("504")).
		push(&Reply{ThreadID: "th_1", Message: "Back again"}, nil)
	session := NewSession(orch, testForm)

	require.NoError(t, session.SendMessage(context.Background(), "hello", nil))
	snap := session.Snapshot()
	assert.Equal(t, []string{"user:hello", "assistant:" + ApologyMessage}, contents(snap))
	assert.False(t, snap.IsCompleted)

	require.NoError(t, session.SendMessage(context.Background(), "hello?", nil))
	assert.Len(t, session.Snapshot().Messages, 4)
}

func TestSendMessage_SingleExchangeInFlight(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "ok"}, nil)
	gate := orch.gate(model.ActionMessage)
	session := NewSession(orch, testForm)

	done := make(chan error, 1)
	go func() { done <- session.SendMessage(context.Background(), "first", nil) }()

	require.Eventually(t, func() bool { return session.Snapshot().IsLoading }, time.Second, time.Millisecond)
	assert.ErrorIs(t, session.SendMessage(context.Background(), "second", nil), ErrExchangeInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"user:first", "assistant:ok"}, contents(session.Snapshot()))
}

func TestNaturalCompletion_IsSinkState(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Thank you!", Completed: true}, nil)
	session := NewSession(orch, testForm)

	require.NoError(t, session.SendMessage(context.Background(), "That's everything", nil))
	require.True(t, session.Snapshot().IsCompleted)

	assert.ErrorIs(t, session.SendMessage(context.Background(), "one more thing", nil), ErrSessionCompleted)
	require.NoError(t, session.HandleTimeout(context.Background()))
	require.NoError(t, session.HandleClose(context.Background()))

	assert.Equal(t, []string{"user:That's everything", "assistant:Thank you!"}, contents(session.Snapshot()))
	assert.Equal(t, []model.IntakeAction{model.ActionMessage}, orch.actions())
}

func TestHandleTimeout(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Hi Jane!"}, nil)
	session := NewSession(orch, testForm)
	require.NoError(t, session.StartConversation(context.Background()))

	require.NoError(t, session.HandleTimeout(context.Background()))
	require.NoError(t, session.HandleTimeout(context.Background()))

	snap := session.Snapshot()
	assert.True(t, snap.IsCompleted)
	assert.Equal(t, []string{"assistant:Hi Jane!", "assistant:" + InactivityMessage}, contents(snap))
	assert.Equal(t, 1, orch.count(model.ActionTimeout))
	assert.Equal(t, "th_1", orch.lastRequest().ThreadID)
	assert.Empty(t, orch.lastRequest().Message)
}

func TestHandleClose(t *testing.T) {
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Hi Jane!"}, nil)
	session := NewSession(orch, testForm, WithCheckInterval(time.Millisecond))
	require.NoError(t, session.StartConversation(context.Background()))
	session.StartWatcher()

	require.NoError(t, session.HandleClose(context.Background()))
	session.Stop()

	req := orch.lastRequest()
	assert.Equal(t, model.ActionClose, req.Action)
	assert.Equal(t, "th_1", req.ThreadID)
	assert.Empty(t, req.Message)

	assert.False(t, session.Snapshot().IsCompleted)
	assert.ErrorIs(t, session.SendMessage(context.Background(), "still there?", nil), ErrSessionCompleted)
	require.NoError(t, session.HandleTimeout(context.Background()))
	require.NoError(t, session.HandleClose(context.Background()))
	assert.Equal(t, 1, orch.count(model.ActionClose))
	assert.Zero(t, orch.count(model.ActionTimeout))
}

func TestInactivityWatcher_FiresOnce(t *testing.T) {
	clock := newFakeClock()
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "Hi Jane!"}, nil)
	session := NewSession(orch, testForm,
		WithClock(clock.Now),
		WithCheckInterval(time.Millisecond),
	)
	defer session.Stop()

	require.NoError(t, session.StartConversation(context.Background()))
	session.StartWatcher()

	clock.Advance(4 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, session.Snapshot().IsCompleted)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return len(session.Snapshot().Messages) == 2
	}, time.Second, time.Millisecond)

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)

	snap := session.Snapshot()
	assert.True(t, snap.IsCompleted)
	assert.Equal(t, []string{"assistant:Hi Jane!", "assistant:" + InactivityMessage}, contents(snap))
	assert.Equal(t, 1, orch.count(model.ActionTimeout))
}

func TestInactivityWatcher_IgnoresEmptyLog(t *testing.T) {
	clock := newFakeClock()
	orch := &scriptedOrchestrator{}
	session := NewSession(orch, testForm, WithClock(clock.Now), WithCheckInterval(time.Millisecond))
	session.StartWatcher()

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	session.Stop()

	assert.False(t, session.Snapshot().IsCompleted)
	assert.Empty(t, orch.actions())
}

func TestInactivityWatcher_ActivityResetsTimer(t *testing.T) {
	clock := newFakeClock()
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "noted"}, nil)
	session := NewSession(orch, testForm, WithClock(clock.Now), WithCheckInterval(time.Millisecond))
	defer session.Stop()
	session.StartWatcher()

	clock.Advance(4 * time.Minute)
	require.NoError(t, session.SendMessage(context.Background(), "still here", nil))

	clock.Advance(4 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, session.Snapshot().IsCompleted)
	assert.Equal(t, clock.Now().Add(-4*time.Minute), session.Snapshot().LastActivity)
}

func TestLateReplyPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy LateReplyPolicy
		want   []string
	}{
		{
			name:   "append",
			policy: AppendLateReplies,
			want:   []string{"user:hello", "assistant:" + InactivityMessage, "assistant:late answer"},
		},
		{
			name:   "drop",
			policy: DropLateReplies,
			want:   []string{"user:hello", "assistant:" + InactivityMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "late answer"}, nil)
			gate := orch.gate(model.ActionMessage)
			session := NewSession(orch, testForm, WithLateReplyPolicy(tt.policy))

			done := make(chan error, 1)
			go func() { done <- session.SendMessage(context.Background(), "hello", nil) }()
			require.Eventually(t, func() bool { return orch.count(model.ActionMessage) == 1 }, time.Second, time.Millisecond)

			require.NoError(t, session.HandleTimeout(context.Background()))
			close(gate)
			require.NoError(t, <-done)

			snap := session.Snapshot()
			assert.True(t, snap.IsCompleted)
			assert.Equal(t, tt.want, contents(snap))
		})
	}
}

func TestChangeListener(t *testing.T) {
	var mu sync.Mutex
	var loading []bool
	orch := (&scriptedOrchestrator{}).push(&Reply{ThreadID: "th_1", Message: "hi"}, nil)
	session := NewSession(orch, testForm, WithChangeListener(func(s Snapshot) {
		mu.Lock()
		loading = append(loading, s.IsLoading)
		mu.Unlock()
	}))

	require.NoError(t, session.SendMessage(context.Background(), "hello", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, loading)
}

func TestOpeningMessage(t *testing.T) {
	lead := model.FormData{
		Name:        "Sam Lee",
		Email:       "sam@acme.io",
		Type:        model.InquiryTypeProjectLead,
		SessionID:   "s2",
		CompanyName: "Acme",
		Phone:       "+1 555 0100",
	}
	assert.Equal(t,
		"Hi, I'm Sam Lee (sam@acme.io). I'd like to discuss a project for Acme. You can also reach me at +1 555 0100.",
		OpeningMessage(lead))

	assert.Equal(t,
		"Hi, I'm Jane Doe (jane@x.com). I'm interested in joining your talent network.",
		OpeningMessage(testForm))
}
