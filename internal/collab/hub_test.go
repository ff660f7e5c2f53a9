package collab

import (
	"context"
	"errors"
	"fmt"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"testing"
	"time"
)

type recorder struct {
	frames map[string][]string
	total  int
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[string][]string)}
}

func (r *recorder) SendMessage(connID string, msg protocol.Message) error {
	frame := msg.Event
	if len(msg.Data) > 0 {
		frame += "=" + string(msg.Data)
	}
	r.frames[connID] = append(r.frames[connID], frame)
	r.total++
	return nil
}

func (r *recorder) take(connID string) []string {
	got := r.frames[connID]
	delete(r.frames, connID)
	return got
}

func (r *recorder) reset() {
	r.frames = make(map[string][]string)
}

// spyStore counts updates and can be told to fail them.
type spyStore struct {
	*database.MemoryStore
	updates    []database.DocumentUpdate
	failUpdate bool
	failDelete bool
}

func (s *spyStore) UpdateDocument(ctx context.Context, id string, u database.DocumentUpdate) (*database.Document, error) {
	s.updates = append(s.updates, u)
	if s.failUpdate {
		return nil, &database.OpError{Op: database.OpUpdate, ID: id, Err: errors.New("write concern timeout")}
	}
	return s.MemoryStore.UpdateDocument(ctx, id, u)
}

func (s *spyStore) DeleteDocument(ctx context.Context, id string) (*database.Document, error) {
	if s.failDelete {
		return nil, &database.OpError{Op: database.OpDelete, ID: id, Err: errors.New("not primary")}
	}
	return s.MemoryStore.DeleteDocument(ctx, id)
}

type fixture struct {
	hub   *Hub
	clock *event.Manual
	out   *recorder
	docs  *spyStore
	docID string
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	docs := &spyStore{MemoryStore: database.NewMemoryStore()}
	doc, err := docs.CreateDocument(context.Background())
	require.NoError(t, err)

	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}
	f := &fixture{clock: event.NewManual(), out: newRecorder(), docs: docs, docID: doc.PublicID}
	f.hub = NewHub(docs, f.out, f.clock, event.InlineRunner{}, opts, nil)
	return f
}

func (f *fixture) stored(t *testing.T) *database.Document {
	t.Helper()
	doc, err := f.docs.GetDocument(context.Background(), f.docID)
	require.NoError(t, err)
	return doc
}

func TestTypingScenario(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Name("a", "Alice")
	assert.Equal(t, []string{`editor_names=["Alice","Anonymous"]`}, f.out.take("b"))
	f.out.reset()

	f.hub.Input("a", FieldText, "Hello")
	assert.Equal(t, []string{
		`allow_text_input=false`,
		`text_status="Alice is typing..."`,
		`text="Hello"`,
	}, f.out.take("b"))
	assert.Equal(t, []string{`text_status="Alice is typing..."`}, f.out.take("a"))

	f.clock.Advance(999 * time.Millisecond)
	assert.Empty(t, f.out.frames)
	assert.Empty(t, f.docs.updates)

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{`allow_text_input=true`, `text_status="Saved!"`}, f.out.take("b"))
	assert.Equal(t, []string{`text_status="Saved!"`}, f.out.take("a"))
	assert.Equal(t, "Hello", f.stored(t).Text)
	assert.Equal(t, "", f.hub.sessions.Get(f.docID).Owner(FieldText))

	f.clock.Advance(1499 * time.Millisecond)
	assert.Empty(t, f.out.frames)
	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{`text_status=""`}, f.out.take("a"))
	assert.Equal(t, []string{`text_status=""`}, f.out.take("b"))
}

func TestInputFromNonOwnerIsDropped(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldTitle, "Plan")
	f.out.reset()
	before := f.out.total

	f.clock.Advance(500 * time.Millisecond)
	f.hub.Input("b", FieldTitle, "Mine")

	assert.Equal(t, before, f.out.total)
	assert.Equal(t, "a", f.hub.sessions.Get(f.docID).Owner(FieldTitle))

	// b's drop does not extend a's window.
	f.clock.Advance(500 * time.Millisecond)
	require.Len(t, f.docs.updates, 1)
	assert.Equal(t, "Plan", *f.docs.updates[0].Title)
}

func TestFieldsLockIndependently(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)

	f.hub.Input("a", FieldTitle, "T")
	f.hub.Input("b", FieldText, "body")

	sess := f.hub.sessions.Get(f.docID)
	assert.Equal(t, "a", sess.Owner(FieldTitle))
	assert.Equal(t, "b", sess.Owner(FieldText))

	f.clock.Advance(time.Second)
	doc := f.stored(t)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "body", doc.Text)
}

func TestSlidingDebounceWritesLastValueOnce(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)

	values := []string{"H", "He", "Hel", "Hell", "Hello"}
	for _, v := range values {
		f.hub.Input("a", FieldText, v)
		f.clock.Advance(900 * time.Millisecond)
	}
	assert.Empty(t, f.docs.updates)

	f.clock.Advance(100 * time.Millisecond)
	require.Len(t, f.docs.updates, 1)
	assert.Equal(t, "Hello", *f.docs.updates[0].Text)
	assert.Nil(t, f.docs.updates[0].Title)

	bFrames := f.out.take("b")
	assert.Equal(t, 1, countPrefix(bFrames, "allow_text_input=false"))
	assert.Equal(t, len(values), countPrefix(bFrames, "text="))
}

func countPrefix(frames []string, prefix string) int {
	n := 0
	for _, fr := range frames {
		if len(fr) >= len(prefix) && fr[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func TestFlushFailureReportsErrorStatus(t *testing.T) {
	f := newFixture(t)
	f.docs.failUpdate = true
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldTitle, "Draft")
	f.out.reset()

	f.clock.Advance(time.Second)
	assert.Equal(t, []string{`allow_title_input=true`, `title_status="Error while saving..."`}, f.out.take("b"))
	assert.Equal(t, "", f.hub.sessions.Get(f.docID).Owner(FieldTitle))

	// Not retried and does not block the next writer.
	f.clock.Advance(1500 * time.Millisecond)
	assert.Len(t, f.docs.updates, 1)
	f.out.reset()
	f.hub.Input("b", FieldTitle, "Other")
	assert.Equal(t, "b", f.hub.sessions.Get(f.docID).Owner(FieldTitle))
}

func TestStatusNotClearedWhileFieldHeld(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "one")
	f.clock.Advance(time.Second)

	f.clock.Advance(500 * time.Millisecond)
	f.hub.Input("b", FieldText, "two")
	f.out.reset()

	// The clear due at 2500ms finds b holding the field and stays quiet;
	// b's own flush lands at the same instant.
	f.clock.Advance(time.Second)
	assert.Equal(t, []string{`allow_text_input=true`, `text_status="Saved!"`}, f.out.take("a"))
}

func TestPresenceJoinThenDisconnect(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Name("a", "Alice")
	sess := f.hub.sessions.Get(f.docID)
	before := sess.Names()

	f.hub.Join("c", f.docID)
	f.hub.Name("c", "Carol")
	assert.Equal(t, []string{"Alice", "Carol"}, sess.Names())

	f.out.reset()
	f.hub.Disconnect("c")
	assert.Equal(t, before, sess.Names())
	assert.Equal(t, []string{`editor_names=["Alice"]`}, f.out.take("a"))
	assert.Empty(t, f.out.take("c"))
}

func TestNameDefaultsAndReset(t *testing.T) {
	f := newFixture(t)
	f.hub.Name("a", "Early")
	assert.Empty(t, f.out.frames)

	f.hub.Join("a", f.docID)
	sess := f.hub.sessions.Get(f.docID)
	assert.Equal(t, []string{AnonymousName}, sess.Names())

	f.hub.Name("a", "")
	assert.Equal(t, []string{`editor_names=["Anonymous"]`}, f.out.take("a"))
}

func TestJoinWithoutAnnounce(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	assert.Empty(t, f.out.frames)
}

func TestAnnounceOnJoin(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AnnounceOnJoin = true })
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	assert.Equal(t, []string{`editor_names=["Anonymous"]`, `editor_names=["Anonymous","Anonymous"]`}, f.out.take("a"))
	assert.Equal(t, []string{`editor_names=["Anonymous","Anonymous"]`}, f.out.take("b"))
}

func TestJoinOtherDocumentLeavesPrevious(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.out.reset()

	f.hub.Join("a", "elsewhere")
	assert.Equal(t, []string{`editor_names=["Anonymous"]`}, f.out.take("b"))
	assert.Equal(t, []string{AnonymousName}, f.hub.sessions.Get(f.docID).Names())
	assert.Equal(t, []string{AnonymousName}, f.hub.sessions.Get("elsewhere").Names())
}

func TestDisconnectedOwnerKeepsLock(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "left behind")
	f.hub.Disconnect("a")
	f.out.reset()

	f.hub.Input("b", FieldText, "blocked")
	assert.Empty(t, f.out.frames)
	assert.Equal(t, "a", f.hub.sessions.Get(f.docID).Owner(FieldText))

	f.clock.Advance(time.Second)
	assert.Equal(t, []string{`allow_text_input=true`, `text_status="Saved!"`}, f.out.take("b"))
	assert.Equal(t, "left behind", f.stored(t).Text)
}

func TestReleaseOnDisconnect(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ReleaseOnDisconnect = true })
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "partial")
	f.out.reset()

	f.hub.Disconnect("a")
	assert.Equal(t, []string{
		`allow_text_input=true`,
		`text_status="Saved!"`,
		`editor_names=["Anonymous"]`,
	}, f.out.take("b"))
	assert.Equal(t, "partial", f.stored(t).Text)

	f.hub.Input("b", FieldText, "mine now")
	assert.Equal(t, "b", f.hub.sessions.Get(f.docID).Owner(FieldText))
	require.Len(t, f.docs.updates, 1)
}

func TestDeleteCancelsTimersAndResets(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "doomed")
	f.hub.Input("b", FieldTitle, "doomed too")
	f.out.reset()

	f.hub.Delete("b")
	assert.Equal(t, []string{`deleted`}, f.out.take("a"))
	assert.Equal(t, []string{`deleted`}, f.out.take("b"))
	assert.Nil(t, f.hub.sessions.Get(f.docID))
	assert.Equal(t, 0, f.clock.Pending())

	f.clock.Advance(5 * time.Second)
	assert.Empty(t, f.docs.updates)
	assert.Empty(t, f.out.frames)

	// Inputs against a deleted session are ignored.
	f.hub.Input("a", FieldText, "ghost")
	assert.Nil(t, f.hub.sessions.Get(f.docID))

	f.hub.Join("c", f.docID)
	sess := f.hub.sessions.Get(f.docID)
	require.NotNil(t, sess)
	assert.Equal(t, []string{AnonymousName}, sess.Names())
	for _, field := range Fields {
		assert.Equal(t, "", sess.Owner(field))
	}
}

func TestInputFromConnectionOfDeletedSession(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Name("a", "Alice")
	f.hub.Delete("a")
	f.hub.Join("c", f.docID)
	f.out.reset()

	f.hub.Input("a", FieldText, "ghost")
	sess := f.hub.sessions.Get(f.docID)
	assert.Equal(t, "", sess.Owner(FieldText))
	assert.Equal(t, []string{AnonymousName}, sess.Names())
	assert.Empty(t, f.out.frames)
	assert.Equal(t, 0, f.clock.Pending())

	// Joining again makes a an editor of the new session.
	f.hub.Join("a", f.docID)
	f.hub.Name("a", "Alice")
	f.out.reset()
	f.hub.Input("a", FieldText, "back")
	assert.Equal(t, "a", sess.Owner(FieldText))
	assert.Equal(t, []string{
		`allow_text_input=false`,
		`text_status="Alice is typing..."`,
		`text="back"`,
	}, f.out.take("c"))
}

func TestFlushAllWritesHeldFields(t *testing.T) {
	f := newFixture(t)
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldTitle, "Minutes")
	f.hub.Input("b", FieldText, "first line")
	f.out.reset()

	assert.Equal(t, 2, f.hub.FlushAll())
	doc := f.stored(t)
	assert.Equal(t, "Minutes", doc.Title)
	assert.Equal(t, "first line", doc.Text)

	sess := f.hub.sessions.Get(f.docID)
	for _, field := range Fields {
		assert.Equal(t, "", sess.Owner(field))
	}
	assert.Contains(t, f.out.take("b"), `allow_title_input=true`)

	// The cancelled debounce timers do not write a second time.
	f.clock.Advance(5 * time.Second)
	assert.Len(t, f.docs.updates, 2)
	assert.Equal(t, 0, f.hub.FlushAll())
}

func TestFlushOnStopSavesBeforeLoopExits(t *testing.T) {
	docs := database.NewMemoryStore()
	doc, err := docs.CreateDocument(context.Background())
	require.NoError(t, err)

	loop := event.NewLoop(16, time.Second)
	loop.Start()
	hub := NewHub(docs, newRecorder(), loop, loop, DefaultOptions(), nil)
	require.True(t, loop.Submit(func() {
		hub.Join("a", doc.PublicID)
		hub.Input("a", FieldText, "unsaved draft")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.FlushOnStop(loop).Invoke(ctx))
	require.NoError(t, loop.Invoke(ctx))

	stored, err := docs.GetDocument(context.Background(), doc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "unsaved draft", stored.Text)
	assert.Equal(t, "", hub.Sessions().Get(doc.PublicID).Owner(FieldText))
}

func TestDeleteFailureIsSilent(t *testing.T) {
	f := newFixture(t)
	f.docs.failDelete = true
	f.hub.Join("a", f.docID)
	f.hub.Delete("a")
	assert.Empty(t, f.out.frames)
	assert.Nil(t, f.hub.sessions.Get(f.docID))

	g := newFixture(t)
	g.hub.Join("a", "never-created")
	g.hub.Delete("a")
	assert.Empty(t, g.out.frames)
}

func TestDeleteBeforeJoinIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.hub.Delete("a")
	f.hub.Input("a", FieldText, "x")
	f.hub.Disconnect("a")
	assert.Empty(t, f.out.frames)
	assert.Equal(t, 0, f.hub.sessions.Len())
}

// deferredRunner holds completions until release is called, standing in for
// a storage write that is still in flight.
type deferredRunner struct {
	pending []func()
}

func (d *deferredRunner) Go(work func(ctx context.Context) error, done func(error)) {
	err := work(context.Background())
	d.pending = append(d.pending, func() { done(err) })
}

func (d *deferredRunner) release() {
	for _, fn := range d.pending {
		fn()
	}
	d.pending = nil
}

func TestFlushResultAfterDeleteIsDropped(t *testing.T) {
	f := newFixture(t)
	runner := &deferredRunner{}
	f.hub.runner = runner
	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "in flight")
	f.clock.Advance(time.Second)
	f.hub.Delete("b")
	f.out.reset()

	runner.release()
	assert.Equal(t, []string{`deleted`}, f.out.take("a"))
	assert.Equal(t, []string{`deleted`}, f.out.take("b"))
	assert.Equal(t, 0, f.clock.Pending())
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)
	send := func(conn, event string, data any) {
		msg, err := protocol.NewMessage(event, data)
		require.NoError(t, err)
		f.hub.Dispatch(conn, msg)
	}

	send("a", protocol.EventJoin, f.docID)
	send("b", protocol.EventJoin, f.docID)
	send("a", protocol.EventName, "Alice")
	send("a", protocol.EventTitle, 17)
	send("a", "cursor", 3)
	send("a", protocol.EventTitle, "Agenda")
	assert.Equal(t, "a", f.hub.sessions.Get(f.docID).Owner(FieldTitle))

	f.clock.Advance(time.Second)
	assert.Equal(t, "Agenda", f.stored(t).Title)

	send("a", protocol.EventDelete, nil)
	assert.Contains(t, f.out.take("b"), "deleted")
}

func TestSessionStore(t *testing.T) {
	st := NewSessionStore()
	assert.Nil(t, st.Get("x"))

	s1, created := st.GetOrCreate("x")
	assert.True(t, created)
	s2, created := st.GetOrCreate("x")
	assert.False(t, created)
	assert.Same(t, s1, s2)

	clock := event.NewManual()
	fs := s1.field(FieldText)
	fs.owner = "a"
	fs.pending = clock.Schedule(time.Second, func() { t.Fatal("timer survived delete") })
	fs.clear = clock.Schedule(2*time.Second, func() { t.Fatal("status timer survived delete") })

	assert.True(t, st.Delete("x"))
	assert.False(t, st.Delete("x"))
	assert.Equal(t, 0, clock.Pending())
	clock.Advance(3 * time.Second)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t)
	f.hub.metrics = NewMetrics(reg)

	f.hub.Join("a", f.docID)
	f.hub.Join("b", f.docID)
	f.hub.Input("a", FieldText, "x")
	f.hub.Input("b", FieldText, "y")
	f.clock.Advance(time.Second)

	m := f.hub.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inputs.WithLabelValues("text", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inputs.WithLabelValues("text", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("text", "saved")))

	f.hub.Delete("a")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletes.WithLabelValues("deleted")))
}

// Random interleavings of joins, inputs, renames, disconnects and clock
// advances must never produce two owners, an owner without a timer, or a
// reply to a dropped input.
func TestRandomInterleavingsKeepSingleWriter(t *testing.T) {
	conns := []string{"a", "b", "c"}
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		f := newFixture(t)
		for _, c := range conns {
			f.hub.Join(c, f.docID)
		}

		for step := 0; step < 300; step++ {
			conn := conns[rng.Intn(len(conns))]
			field := Fields[rng.Intn(len(Fields))]
			switch op := rng.Intn(10); {
			case op < 5:
				sess := f.hub.sessions.Get(f.docID)
				m := f.hub.members[conn]
				joined := m != nil && m.docID != ""
				holder := sess.Owner(field)
				before := f.out.total
				f.hub.Input(conn, field, fmt.Sprintf("%s-%d", conn, step))
				if !joined || (holder != "" && holder != conn) {
					require.Equal(t, before, f.out.total, "seed %d step %d: dropped input produced frames", seed, step)
					require.Equal(t, holder, sess.Owner(field), "seed %d step %d: owner changed", seed, step)
				} else {
					require.Equal(t, conn, sess.Owner(field))
				}
			case op < 7:
				f.clock.Advance(time.Duration(rng.Intn(1200)) * time.Millisecond)
			case op < 8:
				f.hub.Name(conn, fmt.Sprintf("user-%d", rng.Intn(5)))
			case op < 9:
				f.hub.Disconnect(conn)
			default:
				f.hub.Join(conn, f.docID)
			}

			sess := f.hub.sessions.Get(f.docID)
			for _, fld := range Fields {
				fs := sess.field(fld)
				require.Equal(t, fs.owner != "", fs.pending != nil,
					"seed %d step %d: field %s owner=%q pending=%v", seed, step, fld, fs.owner, fs.pending != nil)
			}
		}
	}
}
