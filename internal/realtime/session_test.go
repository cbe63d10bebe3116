package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/leowzhang/fundwatch/internal/model"
	"github.com/leowzhang/fundwatch/internal/transport"
)

func startSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	cfg := DefaultSessionConfig()
	cfg.Supervisor = fastConfig()
	s := NewSession(cfg, tr, nil, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s, tr
}

// connectSession drives the session to Connected through the transport
// status stream, the same path a real connection takes.
func connectSession(t *testing.T, s *Session, tr *fakeTransport) {
	t.Helper()
	tr.status <- transport.StatusConnected
	waitFor(t, time.Second, func() bool { return s.Status().Connected }, "session connected")
}

func TestInitialStatus(t *testing.T) {
	s, _ := startSession(t)

	st := s.Status()
	if st.Connected {
		t.Error("Connected = true, want false")
	}
	if st.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want 0", st.MessageCount)
	}
	if len(st.ActiveSubscriptions) != 0 {
		t.Errorf("ActiveSubscriptions = %v, want empty", st.ActiveSubscriptions)
	}
	if st.RetriesExhausted {
		t.Error("RetriesExhausted = true, want false")
	}
	if !st.LastUpdate.IsZero() {
		t.Errorf("LastUpdate = %v, want zero before any event", st.LastUpdate)
	}
}

func TestSubscriptionAccounting(t *testing.T) {
	s, _ := startSession(t)

	s.SubscribeFunds([]string{"000001", "110022"})
	st := s.Status()
	if st.MessageCount != 1 {
		t.Errorf("MessageCount after subscribe = %d, want 1", st.MessageCount)
	}
	if len(st.ActiveSubscriptions) != 2 {
		t.Errorf("ActiveSubscriptions = %v, want 2 entries", st.ActiveSubscriptions)
	}

	// Repeating the same subscription changes nothing and counts nothing.
	s.SubscribeFunds([]string{"000001", "110022"})
	if got := s.Status().MessageCount; got != 1 {
		t.Errorf("MessageCount after repeat subscribe = %d, want 1", got)
	}

	s.UnsubscribeFunds([]string{"000001"})
	st = s.Status()
	if st.MessageCount != 2 {
		t.Errorf("MessageCount after unsubscribe = %d, want 2", st.MessageCount)
	}
	if len(st.ActiveSubscriptions) != 1 || st.ActiveSubscriptions[0] != "fund:110022" {
		t.Errorf("ActiveSubscriptions = %v, want [fund:110022]", st.ActiveSubscriptions)
	}

	// Removing an absent key is a no-op.
	s.UnsubscribeFunds([]string{"000001"})
	if got := s.Status().MessageCount; got != 2 {
		t.Errorf("MessageCount after no-op unsubscribe = %d, want 2", got)
	}

	s.SubscribeMarket([]string{"SH000001"})
	s.SubscribeNotifications()
	st = s.Status()
	if st.MessageCount != 4 {
		t.Errorf("MessageCount = %d, want 4", st.MessageCount)
	}
}

func TestSubscribeIssuesOnlyWhenConnected(t *testing.T) {
	s, tr := startSession(t)

	// Disconnected: the desired set updates but no transport call goes out.
	s.SubscribeFunds([]string{"000001"})
	if got := tr.fundSubscribes(); got != 0 {
		t.Errorf("fund subscribe calls while disconnected = %d, want 0", got)
	}

	// On connect the supervisor re-issues the registry.
	connectSession(t, s, tr)
	waitFor(t, time.Second, func() bool { return tr.fundSubscribes() == 1 }, "resubscribe on connect")

	// Connected: new subscriptions go straight to the transport.
	s.SubscribeFunds([]string{"110022"})
	waitFor(t, time.Second, func() bool { return tr.fundSubscribes() == 2 }, "live subscribe")
}

func TestFundUpdateFlowsToStream(t *testing.T) {
	s, tr := startSession(t)
	connectSession(t, s, tr)

	ch, cancel := s.FundUpdateStream()
	defer cancel()

	tr.funds <- rawMsg(`{"fund_code":"000001","nav":1.5,"daily_change":0.01}`)

	select {
	case u := <-ch:
		if u.Code != "000001" {
			t.Errorf("Code = %q, want %q", u.Code, "000001")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fund update")
	}

	st := s.Status()
	if st.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", st.MessageCount)
	}
	if st.LastUpdate.IsZero() {
		t.Error("LastUpdate is zero after an inbound event")
	}
}

func TestAlertReachesFeedAndStream(t *testing.T) {
	s, tr := startSession(t)
	connectSession(t, s, tr)

	ch, cancel := s.NotificationStream()
	defer cancel()

	tr.funds <- rawMsg(`{"fund_code":"000001","nav":1.5,"daily_change":0.09}`)

	select {
	case n := <-ch:
		if n.Level != model.LevelError {
			t.Errorf("Level = %v, want %v", n.Level, model.LevelError)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alert")
	}

	notifs := s.Notifications()
	if len(notifs) != 1 {
		t.Fatalf("Notifications() = %d items, want 1", len(notifs))
	}
	if got := s.UnreadCount(); got != 1 {
		t.Errorf("UnreadCount() = %d, want 1", got)
	}

	s.MarkRead(notifs[0].ID)
	if got := s.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount() after MarkRead = %d, want 0", got)
	}
}

func TestSystemNotificationPassThrough(t *testing.T) {
	s, tr := startSession(t)
	connectSession(t, s, tr)

	ch, cancel := s.NotificationStream()
	defer cancel()

	tr.notifs <- rawMsg(`{"id":"srv-1","title":"Maintenance","content":"tonight","level":"warning"}`)

	select {
	case n := <-ch:
		if n.ID != "srv-1" {
			t.Errorf("ID = %q, want %q", n.ID, "srv-1")
		}
		if n.Level != model.LevelWarning {
			t.Errorf("Level = %v, want %v", n.Level, model.LevelWarning)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	if got := s.Notifications(); len(got) != 1 {
		t.Errorf("Notifications() = %d items, want 1", len(got))
	}
}

func TestStatusStreamSeesTransitions(t *testing.T) {
	s, tr := startSession(t)

	ch, cancel := s.StatusStream()
	defer cancel()

	connectSession(t, s, tr)

	// At least one snapshot on the stream must report connected.
	deadline := time.After(time.Second)
	for {
		select {
		case st := <-ch:
			if st.Connected {
				return
			}
		case <-deadline:
			t.Fatal("no connected snapshot on the status stream")
		}
	}
}

func TestShutdownFreezesState(t *testing.T) {
	s, tr := startSession(t)
	connectSession(t, s, tr)

	s.SubscribeFunds([]string{"000001"})
	statusCh, _ := s.StatusStream()
	fundCh, _ := s.FundUpdateStream()
	before := s.Status()

	s.Shutdown()
	s.Shutdown() // Idempotent

	// All streams closed.
	waitFor(t, time.Second, func() bool {
		select {
		case _, ok := <-fundCh:
			return !ok
		default:
			return false
		}
	}, "fund stream close")
	for {
		if _, ok := <-statusCh; !ok {
			break
		}
	}

	// Mutations after shutdown are silent no-ops.
	s.SubscribeFunds([]string{"110022"})
	s.UnsubscribeFunds([]string{"000001"})
	s.Connect()
	s.MarkAllRead()
	s.ClearNotifications()

	after := s.Status()
	if after.MessageCount != before.MessageCount {
		t.Errorf("MessageCount = %d, want frozen at %d", after.MessageCount, before.MessageCount)
	}
	if len(after.ActiveSubscriptions) != len(before.ActiveSubscriptions) {
		t.Errorf("ActiveSubscriptions = %v, want frozen at %v", after.ActiveSubscriptions, before.ActiveSubscriptions)
	}
	if after.Connected {
		t.Error("Connected = true after shutdown, want false")
	}
}

func TestStreamAfterShutdownIsClosed(t *testing.T) {
	s, _ := startSession(t)
	s.Shutdown()

	ch, cancel := s.NotificationStream()
	defer cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a value from a post-shutdown stream, want closed")
		}
	case <-time.After(time.Second):
		t.Fatal("post-shutdown stream not closed")
	}
}

func TestStreamCancelUnregisters(t *testing.T) {
	s, tr := startSession(t)
	connectSession(t, s, tr)

	ch, cancel := s.FundUpdateStream()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("cancelled stream still open, want closed")
	}

	// Events after cancellation must not panic or block the router.
	tr.funds <- rawMsg(`{"fund_code":"000001","nav":1.5,"daily_change":0.01}`)
	waitFor(t, time.Second, func() bool { return s.Status().MessageCount == 1 }, "event processed")
}
