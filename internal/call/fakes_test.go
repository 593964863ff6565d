package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/adapters/media"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Party{ID: "alice", Name: "Alice"}
	bob   = domain.Party{ID: "bob", Name: "Bob"}
	carol = domain.Party{ID: "carol", Name: "Carol"}
)

type sentEvent struct {
	event string
	raw   json.RawMessage
}

// fakeSignal records outbound events and lets tests inject inbound ones.
type fakeSignal struct {
	*signal.Bus
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func newFakeSignal() *fakeSignal { return &fakeSignal{Bus: signal.NewBus()} }

func (f *fakeSignal) Send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEvent{event, raw})
	return nil
}

func (f *fakeSignal) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.Emit(event, raw)
}

func (f *fakeSignal) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.sent {
		if e.event == event {
			n++
		}
	}
	return n
}

// waitSent waits for the n-th (1-based) send of event and decodes it into v.
func (f *fakeSignal) waitSent(t *testing.T, event string, n int, v any) {
	t.Helper()
	var raw json.RawMessage
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		i := 0
		for _, e := range f.sent {
			if e.event == event {
				i++
				if i == n {
					raw = e.raw
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s #%d", event, n)
	if v != nil {
		require.NoError(t, json.Unmarshal(raw, v))
	}
}

type fakeTransport struct {
	mu          sync.Mutex
	offers      int
	answers     int
	applied     []webrtc.SessionDescription
	attached    map[string]bool
	attachCalls int
	// refused counts answers asked for while a local offer was pending
	refused int
	// answeredWithTracks records whether tracks were attached before the first answer
	answeredWithTracks bool
	pendingLocal       bool
	closed             bool
	failOffer          error

	onTrack  func(core.RemoteStream)
	onNego   func()
	onClosed func()
}

func (f *fakeTransport) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOffer != nil {
		return webrtc.SessionDescription{}, f.failOffer
	}
	f.offers++
	f.pendingLocal = true
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakeTransport) CreateAnswer(_ context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return webrtc.SessionDescription{}, domain.ErrMediaNegotiation
	}
	if f.pendingLocal {
		f.refused++
		return webrtc.SessionDescription{}, fmt.Errorf("%w: local offer pending", domain.ErrMediaNegotiation)
	}
	if f.answers == 0 {
		f.answeredWithTracks = f.attachCalls > 0
	}
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakeTransport) SetRemoteAnswer(ans webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pendingLocal {
		return domain.ErrNoPendingOffer
	}
	f.pendingLocal = false
	f.applied = append(f.applied, ans)
	return nil
}

func (f *fakeTransport) AttachLocalTracks(s core.LocalStream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached == nil {
		f.attached = map[string]bool{}
	}
	f.attachCalls++
	for _, tr := range s.Tracks() {
		f.attached[tr.ID()] = true
	}
	return nil
}

func (f *fakeTransport) OnRemoteTrack(fn func(core.RemoteStream)) {
	f.mu.Lock()
	f.onTrack = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnRenegotiationNeeded(fn func()) { f.mu.Lock(); f.onNego = fn; f.mu.Unlock() }
func (f *fakeTransport) OnClosed(fn func())              { f.mu.Lock(); f.onClosed = fn; f.mu.Unlock() }

// Close mirrors pion: the closed callback fires synchronously.
func (f *fakeTransport) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	fn := f.onClosed
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (f *fakeTransport) fireTrack(id string, kinds ...core.TrackKind) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	fn(stubRemote{id: id, kinds: kinds})
}

func (f *fakeTransport) fireNego() {
	f.mu.Lock()
	fn := f.onNego
	f.mu.Unlock()
	fn()
}

func (f *fakeTransport) fireClosed() {
	f.mu.Lock()
	fn := f.onClosed
	f.mu.Unlock()
	fn()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) stats() (offers, answers, applied, refused, attachCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers, f.answers, len(f.applied), f.refused, f.attachCalls
}

type stubRemote struct {
	id    string
	kinds []core.TrackKind
}

func (s stubRemote) ID() string              { return s.id }
func (s stubRemote) Kinds() []core.TrackKind { return s.kinds }

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) NewTransport(context.Context) (core.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last(t *testing.T) *fakeTransport {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.transports)
	return f.transports[len(f.transports)-1]
}

// fakeDevices hands out two-track streams. When gate is set, acquisition
// blocks until it is closed.
type fakeDevices struct {
	mu      sync.Mutex
	calls   int
	err     error
	gate    chan struct{}
	streams []*media.Stream
}

func (f *fakeDevices) GetUserMedia(ctx context.Context, _ core.MediaConstraints) (core.LocalStream, error) {
	f.mu.Lock()
	f.calls++
	gate, err := f.gate, f.err
	n := f.calls
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	s := media.NewStream(fmt.Sprintf("local-%d", n),
		media.NewTrack(fmt.Sprintf("mic-%d", n), core.KindAudio, nil, nil),
		media.NewTrack(fmt.Sprintf("cam-%d", n), core.KindVideo, nil, nil),
	)
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeDevices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDevices) stream(t *testing.T, i int) *media.Stream {
	t.Helper()
	var s *media.Stream
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.streams) > i {
			s = f.streams[i]
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

type harness struct {
	m       *Machine
	sig     *fakeSignal
	factory *fakeFactory
	devices *fakeDevices
}

func newHarness(t *testing.T, self domain.Party, cfg Config) *harness {
	t.Helper()
	h := &harness{sig: newFakeSignal(), factory: &fakeFactory{}, devices: &fakeDevices{}}
	h.m = New(self, h.sig, h.factory, h.devices, cfg)
	startMachine(t, h.m)
	return h
}

func startMachine(t *testing.T, m *Machine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitState(t *testing.T, m *Machine, want domain.CallState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Snapshot().State == want },
		2*time.Second, 5*time.Millisecond, "waiting for state %s, have %s", want, m.Snapshot().State)
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
