package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/safehaven-ng/safespeak/internal/genai"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/store"
)

// mockGenerator implements genai.ClientInterface for testing.
type mockGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	lastWin []genai.HistoryMessage
	block   chan struct{} // when set, Generate blocks until closed
}

func (m *mockGenerator) GenerateResponse(ctx context.Context, userMessage string, triggers []string, history []genai.HistoryMessage) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastWin = history
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return m.reply, m.err
}

// mockNotifier records emergency notifications.
type mockNotifier struct {
	mu       sync.Mutex
	notified [][]string
	err      error
}

func (m *mockNotifier) NotifyEmergency(ctx context.Context, userID string, triggers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, triggers)
	return m.err
}

func testUser() models.User {
	now := time.Now()
	return models.User{ID: "u_test", Role: models.RoleVictim, IsAnonymous: true, CreatedAt: now, LastLogin: now}
}

func TestOpenSessionAddsWelcomeMessage(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewConversation(st, &mockGenerator{reply: "ok"}, nil)

	sess, err := c.OpenSession(context.Background(), testUser())
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	msgs := sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected welcome message, got %d messages", len(msgs))
	}
	if msgs[0].IsUser || msgs[0].Message != WelcomeMessage {
		t.Errorf("unexpected welcome message: %+v", msgs[0])
	}

	// Welcome is persisted too.
	stored, _ := st.GetOrCreateSession("u_test")
	persisted, _ := st.ListSessionMessages(stored.ID)
	if len(persisted) != 1 {
		t.Errorf("expected 1 persisted message, got %d", len(persisted))
	}

	// Reopening returns the same session, no duplicate welcome.
	again, err := c.OpenSession(context.Background(), testUser())
	if err != nil {
		t.Fatalf("second OpenSession failed: %v", err)
	}
	if again != sess {
		t.Error("expected the same session instance on reopen")
	}
}

func TestProcessMessageTurnOrdering(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewConversation(st, &mockGenerator{reply: "I'm listening."}, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	userMsg, botMsg, err := c.ProcessMessage(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !userMsg.IsUser || botMsg.IsUser {
		t.Error("record roles wrong")
	}
	if userMsg.IsEmergency || botMsg.IsEmergency {
		t.Error("benign turn should not be emergency-flagged")
	}

	// The session ends with exactly two new entries in order: user then bot.
	msgs := sess.Messages()
	if len(msgs) != 3 { // welcome + user + bot
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if !msgs[1].IsUser || msgs[1].Message != "hello" {
		t.Errorf("second message should be the user turn: %+v", msgs[1])
	}
	if msgs[2].IsUser || msgs[2].Message != "I'm listening." {
		t.Errorf("third message should be the assistant turn: %+v", msgs[2])
	}

	// Both persisted in the same order.
	stored, _ := st.GetOrCreateSession("u_test")
	persisted, _ := st.ListSessionMessages(stored.ID)
	if len(persisted) != 3 {
		t.Errorf("expected 3 persisted messages, got %d", len(persisted))
	}
	if sess.Composing() {
		t.Error("composing flag must be cleared after a successful turn")
	}
}

func TestProcessMessageEmergencyFlagsMirrorUserTriggers(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &mockNotifier{}
	c := NewConversation(st, &mockGenerator{reply: "Stay safe."}, notifier)
	sess, _ := c.OpenSession(context.Background(), testUser())

	userMsg, botMsg, err := c.ProcessMessage(context.Background(), sess, "I need a PLAN")
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !userMsg.IsEmergency || len(userMsg.TriggerWords) != 1 || userMsg.TriggerWords[0] != "plan" {
		t.Errorf("user record should carry trigger detection: %+v", userMsg)
	}
	if !botMsg.IsEmergency {
		t.Error("assistant record mirrors the user's trigger detection")
	}
	if len(notifier.notified) != 1 {
		t.Errorf("expected one emergency notification, got %d", len(notifier.notified))
	}
}

func TestProcessMessageFallbackOnGenerationFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewConversation(st, &mockGenerator{err: errors.New("quota exceeded")}, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	before := len(sess.Messages())
	_, botMsg, err := c.ProcessMessage(context.Background(), sess, "help now")
	if err != nil {
		t.Fatalf("generation failure must not surface: %v", err)
	}
	if botMsg.Message != FallbackMessage {
		t.Errorf("expected fixed fallback text, got %q", botMsg.Message)
	}
	if !botMsg.IsEmergency {
		t.Error("fallback turn is always emergency-flagged")
	}

	msgs := sess.Messages()
	if len(msgs) != before+2 {
		t.Fatalf("expected exactly two appended records, got %d new", len(msgs)-before)
	}
	if msgs[len(msgs)-1].Message != FallbackMessage {
		t.Error("fallback must be the final appended record")
	}
	if sess.Composing() {
		t.Error("composing flag must be cleared after a failed turn")
	}
}

func TestProcessMessageFallbackEmergencyEvenWithoutTriggers(t *testing.T) {
	c := NewConversation(store.NewInMemoryStore(), &mockGenerator{err: errors.New("down")}, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	_, botMsg, err := c.ProcessMessage(context.Background(), sess, "just chatting")
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !botMsg.IsEmergency {
		t.Error("fallback is emergency-flagged regardless of user triggers")
	}
}

func TestProcessMessageRejectsConcurrentTurn(t *testing.T) {
	gen := &mockGenerator{reply: "slow", block: make(chan struct{})}
	c := NewConversation(store.NewInMemoryStore(), gen, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, _, err := c.ProcessMessage(context.Background(), sess, "first"); err != nil {
			t.Errorf("first turn failed: %v", err)
		}
	}()

	// Wait for the first turn to claim the composing flag.
	for !sess.Composing() {
		time.Sleep(time.Millisecond)
	}

	if _, _, err := c.ProcessMessage(context.Background(), sess, "second"); err != ErrTurnInFlight {
		t.Errorf("expected ErrTurnInFlight, got %v", err)
	}

	close(gen.block)
	<-done
}

func TestProcessMessageDiscardsLateReplyAfterClose(t *testing.T) {
	gen := &mockGenerator{reply: "too late", block: make(chan struct{})}
	st := store.NewInMemoryStore()
	c := NewConversation(st, gen, nil)
	user := testUser()
	sess, _ := c.OpenSession(context.Background(), user)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.ProcessMessage(context.Background(), sess, "hello")
		errCh <- err
	}()

	for !sess.Composing() {
		time.Sleep(time.Millisecond)
	}

	c.CloseSession(user.ID)
	close(gen.block)

	if err := <-errCh; err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed for late reply, got %v", err)
	}
	if len(sess.Messages()) != 0 {
		t.Error("closed session must not retain messages")
	}
}

func TestBuildContextTrimsLeadingAssistantTurns(t *testing.T) {
	// A 10-message window whose first two entries are assistant turns loses
	// exactly those two, and the result starts with a user turn.
	var msgs []models.ChatMessage
	msgs = append(msgs,
		models.ChatMessage{Message: "welcome", IsUser: false},
		models.ChatMessage{Message: "still me", IsUser: false},
	)
	for i := 0; i < 4; i++ {
		msgs = append(msgs,
			models.ChatMessage{Message: "q", IsUser: true},
			models.ChatMessage{Message: "a", IsUser: false},
		)
	}
	if len(msgs) != 10 {
		t.Fatalf("test setup expects 10 messages, got %d", len(msgs))
	}

	window := buildContext(msgs)
	if len(window) != 8 {
		t.Fatalf("expected 8 messages after trimming, got %d", len(window))
	}
	if window[0].Role != "user" {
		t.Errorf("window must start with a user turn, got %s", window[0].Role)
	}
}

func TestBuildContextBoundsWindow(t *testing.T) {
	var msgs []models.ChatMessage
	for i := 0; i < 25; i++ {
		msgs = append(msgs, models.ChatMessage{Message: "m", IsUser: i%2 == 0})
	}
	window := buildContext(msgs)
	if len(window) > HistoryWindow {
		t.Errorf("window exceeds bound: %d", len(window))
	}
}

func TestBuildContextAllAssistantIsEmpty(t *testing.T) {
	msgs := []models.ChatMessage{
		{Message: "a", IsUser: false},
		{Message: "b", IsUser: false},
	}
	if window := buildContext(msgs); len(window) != 0 {
		t.Errorf("expected empty window, got %d", len(window))
	}
}

func TestProcessMessagePersistFailureDoesNotBlockTurn(t *testing.T) {
	st := &failingStore{Store: store.NewInMemoryStore()}
	c := NewConversation(st, &mockGenerator{reply: "ok"}, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	st.failWrites = true
	_, botMsg, err := c.ProcessMessage(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("persist failure must not surface: %v", err)
	}
	if botMsg.Message != "ok" {
		t.Errorf("expected genuine reply despite persist failure, got %q", botMsg.Message)
	}
}

func TestHistoryReadFailureDegradesToEmpty(t *testing.T) {
	st := &failingStore{Store: store.NewInMemoryStore(), failReads: true}
	c := NewConversation(st, &mockGenerator{reply: "ok"}, nil)
	if got := c.History(context.Background(), "u_test"); len(got) != 0 {
		t.Errorf("expected empty history on read failure, got %d", len(got))
	}
}

func TestFallbackMessageContainsEmergencyNumbers(t *testing.T) {
	if !strings.Contains(FallbackMessage, models.EmergencyServicesNumber) {
		t.Error("fallback must name the emergency services number")
	}
	if !strings.Contains(FallbackMessage, models.HotlineNumber) {
		t.Error("fallback must name the hotline number")
	}
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	store.Store
	failWrites bool
	failReads  bool
}

func (f *failingStore) AddChatMessage(m models.ChatMessage) error {
	if f.failWrites {
		return errors.New("write failed")
	}
	return f.Store.AddChatMessage(m)
}

func (f *failingStore) ListSessionMessages(sessionID string) ([]models.ChatMessage, error) {
	if f.failReads {
		return nil, errors.New("read failed")
	}
	return f.Store.ListSessionMessages(sessionID)
}

func TestOpenSessionRejectsUnresolvedIdentity(t *testing.T) {
	c := NewConversation(store.NewInMemoryStore(), &mockGenerator{reply: "ok"}, nil)

	if _, err := c.OpenSession(context.Background(), models.User{}); !errors.Is(err, models.ErrMissingIdentity) {
		t.Errorf("expected ErrMissingIdentity for empty identity, got %v", err)
	}

	bad := testUser()
	bad.Role = models.UserRole("admin")
	if _, err := c.OpenSession(context.Background(), bad); !errors.Is(err, models.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	c := NewConversation(st, &mockGenerator{reply: "ok"}, nil)

	sess, err := c.OpenSession(context.Background(), testUser())
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	// A fresh session survives a sweep.
	if n := c.Sweep(DefaultMaxIdle); n != 0 {
		t.Fatalf("expected no evictions, got %d", n)
	}

	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	if n := c.Sweep(DefaultMaxIdle); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}

	// The evicted session is closed; a late turn is discarded.
	if _, _, err := c.ProcessMessage(context.Background(), sess, "hello"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed after eviction, got %v", err)
	}

	// Reopening builds a new session from the persisted transcript.
	again, err := c.OpenSession(context.Background(), testUser())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again == sess {
		t.Error("expected a fresh session instance after eviction")
	}
	if len(again.Messages()) != 1 {
		t.Errorf("expected the persisted welcome on reopen, got %d messages", len(again.Messages()))
	}
}

func TestSweepSkipsComposingSessions(t *testing.T) {
	c := NewConversation(store.NewInMemoryStore(), &mockGenerator{reply: "ok"}, nil)
	sess, _ := c.OpenSession(context.Background(), testUser())

	if !sess.beginTurn() {
		t.Fatal("beginTurn should succeed on a fresh session")
	}
	defer sess.endTurn()

	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	if n := c.Sweep(DefaultMaxIdle); n != 0 {
		t.Errorf("sweep must not evict a session with a turn in flight, evicted %d", n)
	}
}

func TestConcurrentFirstOpenPersistsSingleWelcome(t *testing.T) {
	st := &rendezvousStore{Store: store.NewInMemoryStore()}
	st.barrier.Add(2)
	c := NewConversation(st, &mockGenerator{reply: "ok"}, nil)

	var wg sync.WaitGroup
	results := make([]*Session, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := c.OpenSession(context.Background(), testUser())
			if err != nil {
				t.Errorf("OpenSession failed: %v", err)
				return
			}
			results[i] = sess
		}(i)
	}
	wg.Wait()

	if results[0] == nil || results[0] != results[1] {
		t.Fatal("both opens must resolve to the same session instance")
	}

	stored, _ := st.GetOrCreateSession("u_test")
	persisted, err := st.ListSessionMessages(stored.ID)
	if err != nil {
		t.Fatalf("ListSessionMessages failed: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected exactly one persisted welcome, got %d messages", len(persisted))
	}
	if persisted[0].Message != WelcomeMessage {
		t.Errorf("unexpected persisted message: %q", persisted[0].Message)
	}
}

// rendezvousStore holds the first two GetOrCreateSession callers at a barrier
// so both pass the session-cache miss before either proceeds.
type rendezvousStore struct {
	store.Store
	barrier sync.WaitGroup
	mu      sync.Mutex
	calls   int
}

func (r *rendezvousStore) GetOrCreateSession(userID string) (*models.ChatSession, error) {
	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.mu.Unlock()
	if idx < 2 {
		r.barrier.Done()
		r.barrier.Wait()
	}
	return r.Store.GetOrCreateSession(userID)
}
