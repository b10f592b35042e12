package syncclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/realtime"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  int
	states map[string]SubjectState
	err    error
}

func (f *stubFetcher) Fetch(_ context.Context, ref SubjectRef) (SubjectState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return SubjectState{}, f.err
	}
	st, ok := f.states[ref.ID]
	if !ok {
		return SubjectState{}, errors.New("not found")
	}
	return st.clone(), nil
}

func (f *stubFetcher) set(st SubjectState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = map[string]SubjectState{}
	}
	f.states[st.ID] = st
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runStore(t *testing.T, fetcher Fetcher) (*Store, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := NewStore(fetcher, nil)
	go store.Run(ctx) //nolint:errcheck
	t.Cleanup(cancel)
	return store, ctx
}

func partnerState(seq int64, status domain.GroupStatus, overall domain.OverallStatus) SubjectState {
	return SubjectState{
		ID:            "p-1",
		Kind:          domain.SubjectKindPartner,
		OverallStatus: overall,
		Groups: []GroupState{{
			Kind:      domain.GroupKindIdentity,
			Status:    status,
			Artifacts: map[string]string{"front": "a", "back": "b", "profile": "c"},
		}},
		LastSequence: seq,
	}
}

func partnerPush(seq int64, approved bool, reason string) realtime.Push {
	p := realtime.Push{
		Type:        realtime.PushPartnerApproved,
		SubjectID:   "p-1",
		SubjectKind: "partner",
		GroupKind:   "identity",
		Kind:        "approved",
		Status:      "verified",
		Sequence:    seq,
	}
	if !approved {
		p.Type = realtime.PushPartnerRejected
		p.Kind = "rejected"
		p.Status = "rejected"
		p.Reason = reason
	}
	return p
}

func TestBackoffDelays(t *testing.T) {
	b := DefaultBackoff
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 5*time.Second, b.Delay(4))
	assert.Equal(t, 5*time.Second, b.Delay(50))
	assert.Equal(t, time.Second, b.Delay(0))
}

func TestConnMachineTransitions(t *testing.T) {
	m := NewConnMachine(Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 2})
	assert.Equal(t, StateDisconnected, m.State())

	_, err := m.Lost()
	assert.ErrorIs(t, err, ErrIllegalConnTransition)
	assert.ErrorIs(t, m.DialSucceeded(), ErrIllegalConnTransition)
	assert.ErrorIs(t, m.Stable(), ErrIllegalConnTransition)

	require.NoError(t, m.BeginDial())
	assert.ErrorIs(t, m.BeginDial(), ErrIllegalConnTransition)
	delay, err := m.DialFailed()
	require.NoError(t, err)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, StateBackingOff, m.State())

	require.NoError(t, m.BeginDial())
	_, err = m.DialFailed()
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.BeginDial())
	require.NoError(t, m.DialSucceeded())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, m.Attempts())

	delay, err = m.Lost()
	require.NoError(t, err)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, StateBackingOff, m.State())
}

func TestConnMachineShortLivedConnectionsSpendBudget(t *testing.T) {
	m := NewConnMachine(Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 2})

	require.NoError(t, m.BeginDial())
	require.NoError(t, m.DialSucceeded())
	_, err := m.Lost()
	require.NoError(t, err)

	require.NoError(t, m.BeginDial())
	require.NoError(t, m.DialSucceeded())
	_, err = m.Lost()
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 0, m.Attempts())
}

func TestConnMachineStableConnectionRestoresBudget(t *testing.T) {
	m := NewConnMachine(Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 2})

	for i := 0; i < 5; i++ {
		require.NoError(t, m.BeginDial())
		require.NoError(t, m.DialSucceeded())
		require.NoError(t, m.Stable())
		assert.Equal(t, 0, m.Attempts())
		delay, err := m.Lost()
		require.NoError(t, err)
		assert.Equal(t, time.Second, delay)
	}
}

func TestStoreIgnoresReplayedSequences(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(partnerState(6, domain.GroupStatusApproved, domain.OverallVerified))
	store, ctx := runStore(t, fetcher)
	require.NoError(t, store.Replace(ctx, partnerState(5, domain.GroupStatusPending, domain.OverallPending)))

	var results []bool
	for _, seq := range []int64{5, 5, 6} {
		applied, err := store.Apply(ctx, partnerPush(seq, true, ""))
		require.NoError(t, err)
		results = append(results, applied)
	}
	assert.Equal(t, []bool{false, false, true}, results)

	notice := <-store.Notices()
	assert.Equal(t, int64(6), notice.Sequence)
	select {
	case extra := <-store.Notices():
		t.Fatalf("unexpected notice %+v", extra)
	default:
	}

	state, ok, err := store.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), state.LastSequence)
	assert.Equal(t, domain.GroupStatusApproved, state.Group(domain.GroupKindIdentity).Status)
	assert.False(t, state.Group(domain.GroupKindIdentity).CanEdit)

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStoreRejectionKeepsReasonVerbatim(t *testing.T) {
	reason := "  Photo blurry.\nRetake in daylight  "
	fetcher := &stubFetcher{}
	store, ctx := runStore(t, fetcher)
	require.NoError(t, store.Replace(ctx, partnerState(1, domain.GroupStatusPending, domain.OverallPending)))

	applied, err := store.Apply(ctx, partnerPush(2, false, reason))
	require.NoError(t, err)
	require.True(t, applied)

	state, _, err := store.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	identity := state.Group(domain.GroupKindIdentity)
	assert.Equal(t, domain.GroupStatusRejected, identity.Status)
	assert.Equal(t, reason, identity.Reason)
	assert.True(t, identity.CanEdit)
	assert.Equal(t, domain.OverallRejected, state.OverallStatus)

	notice := <-store.Notices()
	assert.Equal(t, reason, notice.Reason)
	assert.Contains(t, notice.Message, reason)
}

func TestStoreRejectsUnknownValues(t *testing.T) {
	store, ctx := runStore(t, &stubFetcher{})
	require.NoError(t, store.Replace(ctx, partnerState(1, domain.GroupStatusPending, domain.OverallPending)))

	bad := []realtime.Push{
		{Type: "SOMETHING_ELSE", SubjectID: "p-1", Kind: "approved", Status: "verified", Sequence: 2},
		{Type: realtime.PushPartnerApproved, SubjectID: "p-1", Kind: "approved", Status: "kinda_verified", Sequence: 2},
		{Type: realtime.PushPartnerApproved, SubjectID: "p-1", Kind: "rejected", Status: "verified", Sequence: 2},
		{Type: realtime.PushPropertyDocApproved, SubjectID: "h-1", GroupKind: "identity_card", Kind: "approved", Status: "pending", Sequence: 2},
		{Type: realtime.PushPropertyStatusChanged, SubjectID: "h-1", Kind: "not_submitted", Status: "pending", Sequence: 2},
	}
	for _, push := range bad {
		applied, err := store.Apply(ctx, push)
		assert.ErrorIs(t, err, domain.ErrUnknownValue, "push %+v", push)
		assert.False(t, applied)
	}

	state, _, err := store.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.LastSequence)
	assert.Equal(t, domain.GroupStatusPending, state.Group(domain.GroupKindIdentity).Status)
}

func TestStoreMarksStaleWhenPushSkipsLocalView(t *testing.T) {
	store, ctx := runStore(t, &stubFetcher{err: errors.New("offline")})
	require.NoError(t, store.Replace(ctx, partnerState(1, domain.GroupStatusNotSubmitted, domain.OverallNotSubmitted)))

	applied, err := store.Apply(ctx, partnerPush(3, true, ""))
	require.NoError(t, err)
	require.True(t, applied)

	state, _, err := store.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, state.Stale)
	assert.Equal(t, domain.GroupStatusApproved, state.Group(domain.GroupKindIdentity).Status)
}

func TestStoreDiscardsOutdatedRefetch(t *testing.T) {
	store, ctx := runStore(t, nil)
	require.NoError(t, store.Replace(ctx, partnerState(4, domain.GroupStatusApproved, domain.OverallVerified)))
	require.NoError(t, store.Replace(ctx, partnerState(3, domain.GroupStatusPending, domain.OverallPending)))

	state, _, err := store.Snapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), state.LastSequence)
	assert.Equal(t, domain.OverallVerified, state.OverallStatus)
}

func TestRefetchAllCoversTrackedSubjects(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(partnerState(2, domain.GroupStatusPending, domain.OverallPending))
	fetcher.set(SubjectState{ID: "h-1", Kind: domain.SubjectKindProperty, OverallStatus: domain.OverallPending, LastSequence: 7})
	store, ctx := runStore(t, fetcher)

	require.NoError(t, store.Track(ctx, SubjectRef{ID: "p-1", Kind: domain.SubjectKindPartner}))
	require.NoError(t, store.Track(ctx, SubjectRef{ID: "h-1", Kind: domain.SubjectKindProperty}))
	require.NoError(t, store.RefetchAll(ctx))

	property, ok, err := store.Snapshot(ctx, "h-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), property.LastSequence)
	assert.False(t, property.Stale)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestParseSubjectRejectsUnknownStatus(t *testing.T) {
	_, err := parseSubject(remoteSubject{ID: "p-1", Kind: "partner", OverallStatus: "verified",
		Groups: []remoteGroup{{Kind: "identity", Status: "approved-ish"}}}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownValue)

	_, err = parseSubject(remoteSubject{ID: "h-1", Kind: "property", OverallStatus: "not_submitted"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownValue)

	st, err := parseSubject(remoteSubject{ID: "h-1", Kind: "property", OverallStatus: "suspended", Sequence: 9,
		Groups: []remoteGroup{{Kind: "tax", Status: "rejected", RejectionReason: "expired", CanEdit: true}}}, []string{"PENDING_REVERIFICATION"})
	require.NoError(t, err)
	assert.Equal(t, domain.OverallSuspended, st.OverallStatus)
	assert.Equal(t, "expired", st.Group(domain.GroupKindTax).Reason)
	assert.Equal(t, []string{"PENDING_REVERIFICATION"}, st.Warnings)
}

type fakeConn struct {
	frames chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeConn(frames ...[]byte) *fakeConn {
	c := &fakeConn{frames: make(chan []byte, len(frames)), closed: make(chan struct{})}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, f, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type scriptedDialer struct {
	mu    sync.Mutex
	conns []MessageConn
	dials int
}

func (d *scriptedDialer) Dial(_ context.Context, _ string, header http.Header) (MessageConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if header.Get("Authorization") != "Bearer tok" {
		return nil, errors.New("unauthorized")
	}
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func TestChannelGivesUpAfterBudget(t *testing.T) {
	store, ctx := runStore(t, &stubFetcher{})
	dialer := &scriptedDialer{}
	ch := NewChannel(store, ChannelOptions{URL: "ws://test", Token: "tok", Dialer: dialer, Backoff: DefaultBackoff})
	var delays []time.Duration
	ch.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := ch.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, 5, dialer.dialCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, delays)
	assert.Equal(t, StateDisconnected, ch.State())
}

func closedConns(n int) []MessageConn {
	conns := make([]MessageConn, 0, n)
	for i := 0; i < n; i++ {
		c := newFakeConn()
		c.Close()
		conns = append(conns, c)
	}
	return conns
}

func TestChannelGivesUpWhenConnectionsKeepDropping(t *testing.T) {
	store, ctx := runStore(t, &stubFetcher{})
	dialer := &scriptedDialer{conns: closedConns(10)}
	ch := NewChannel(store, ChannelOptions{URL: "ws://test", Token: "tok", Dialer: dialer, Backoff: DefaultBackoff})
	var delays []time.Duration
	ch.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := ch.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, 5, dialer.dialCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, delays)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestChannelLongLivedConnectionRestoresBudget(t *testing.T) {
	store, ctx := runStore(t, &stubFetcher{})
	dialer := &scriptedDialer{conns: closedConns(6)}
	ch := NewChannel(store, ChannelOptions{
		URL:     "ws://test",
		Token:   "tok",
		Dialer:  dialer,
		Backoff: Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 2},
	})
	var delays []time.Duration
	ch.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	clock := time.Unix(0, 0)
	ch.now = func() time.Time {
		clock = clock.Add(stableUptime)
		return clock
	}

	err := ch.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, 8, dialer.dialCount())
	assert.Len(t, delays, 7)
	for _, d := range delays {
		assert.Equal(t, time.Second, d)
	}
}

func TestChannelResyncsOnEveryConnect(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(partnerState(1, domain.GroupStatusPending, domain.OverallPending))
	store, storeCtx := runStore(t, fetcher)
	require.NoError(t, store.Track(storeCtx, SubjectRef{ID: "p-1", Kind: domain.SubjectKindPartner}))

	first := newFakeConn()
	first.Close()
	second := newFakeConn([]byte(`{"type":"PARTNER_VERIFICATION_APPROVED","subject_id":"p-1","subject_kind":"partner","group_kind":"identity","kind":"approved","sequence":2,"status":"verified"}`))
	dialer := &scriptedDialer{conns: []MessageConn{first, second}}

	ch := NewChannel(store, ChannelOptions{URL: "ws://test", Token: "tok", Dialer: dialer})
	var delays []time.Duration
	ch.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	ctx, cancel := context.WithCancel(storeCtx)
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, _, err := store.Snapshot(storeCtx, "p-1")
		return err == nil && st.LastSequence == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, fetcher.callCount(), 2)
	assert.Equal(t, StateConnected, ch.State())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []time.Duration{time.Second}, delays)
	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, StateDisconnected, ch.State())
}
