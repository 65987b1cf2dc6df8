package runtime

import (
	"iter"
	"log/slog"
	"slices"
	"support-chat/domain"
	"support-chat/errors"
	"support-chat/runtime/workers"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestTracker(retention time.Duration) (*Registry, *Tracker) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, false)
	tracker := NewTracker(log, registry, retention, time.Second)
	registry.Subscribe(tracker)
	return registry, tracker
}

func draft(conversationID domain.ConversationID, sender domain.UserID, payload string) domain.Message {
	return domain.Message{ID: uuid.New(), ConversationID: conversationID, SenderID: sender, Payload: payload}
}

func collect(seq iter.Seq[domain.Message]) []uint64 {
	var res []uint64
	for msg := range seq {
		res = append(res, msg.Seq)
	}
	return res
}

func TestTracker_Sequences_Are_Gapless_Per_Conversation(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	first := domain.NewConversationID(domain.KindRoom)
	second := domain.NewConversationID(domain.KindRoom)

	// When messages are enqueued in two conversations
	m1 := tracker.Enqueue(draft(first, "u1", "a"), nil)
	m2 := tracker.Enqueue(draft(first, "u1", "b"), nil)
	m3 := tracker.Enqueue(draft(second, "u1", "c"), nil)
	m4 := tracker.Enqueue(draft(first, "u1", "d"), nil)

	// Then each conversation counts on its own, from 1
	req.Equal([]uint64{1, 2, 3}, []uint64{m1.Seq, m2.Seq, m4.Seq})
	req.Equal(uint64(1), m3.Seq)
	req.Equal(uint64(3), tracker.LastSeq(first))
	req.Equal(uint64(0), tracker.LastSeq(domain.NewConversationID(domain.KindRoom)))
}

func TestTracker_Pushes_To_Live_Connections(t *testing.T) {
	req := require.New(t)
	registry, tracker := newTestTracker(time.Hour)
	defer tracker.Close()
	conversationID := domain.NewConversationID(domain.KindRoom)
	phone, laptop := &recordingHandle{}, &recordingHandle{}

	// Given a recipient with two connections and one offline recipient
	_, err := registry.Register("u2", phone)
	req.NoError(err)
	_, err = registry.Register("u2", laptop)
	req.NoError(err)

	// When three messages are enqueued
	var last domain.Message
	for _, payload := range []string{"one", "two", "three"} {
		last = tracker.Enqueue(draft(conversationID, "u1", payload), []domain.UserID{"u2", "u3"})
	}

	// Then every connection receives them once, in order
	for _, handle := range []*recordingHandle{phone, laptop} {
		req.Eventually(func() bool { return len(handle.Messages()) == 3 }, time.Second, 5*time.Millisecond)
		seqs := collect(slices.Values(handle.Messages()))
		req.Equal([]uint64{1, 2, 3}, seqs)
	}

	// And the online recipient is delivered while the offline one stays pending
	req.Eventually(func() bool {
		receipts, err := tracker.Receipts(last.ID)
		return err == nil && receipts["u2"].State == domain.Delivered
	}, time.Second, 5*time.Millisecond)
	receipts, err := tracker.Receipts(last.ID)
	req.NoError(err)
	req.Equal(domain.Pending, receipts["u3"].State)
	req.NotContains(receipts, domain.UserID("u1"))
}

func TestTracker_Failed_Push_Stays_Pending(t *testing.T) {
	req := require.New(t)
	registry, tracker := newTestTracker(time.Hour)
	defer tracker.Close()
	conversationID := domain.NewConversationID(domain.KindRoom)
	broken := &recordingHandle{failWith: errors.ErrTransportClosed}

	_, err := registry.Register("u2", broken)
	req.NoError(err)

	// When the push fails
	msg := tracker.Enqueue(draft(conversationID, "u1", "hello"), []domain.UserID{"u2"})

	// Then the connection is dropped
	req.Eventually(func() bool { return len(registry.Lookup("u2")) == 0 }, time.Second, 5*time.Millisecond)

	// And the message is still pending for the recipient
	receipts, err := tracker.Receipts(msg.ID)
	req.NoError(err)
	req.Equal(domain.Pending, receipts["u2"].State)
}

func TestTracker_Ack(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindSession)
	msg := tracker.Enqueue(draft(conversationID, "c1", "hello"), []domain.UserID{"a1"})

	// Unknown message
	_, err := tracker.Ack("a1", uuid.New(), nil)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	// Not a recipient
	_, err = tracker.Ack("c1", msg.ID, nil)
	req.ErrorIs(err, errors.ErrNotAuthorized)

	// Recipient
	acked, err := tracker.Ack("a1", msg.ID, nil)
	req.NoError(err)
	req.Equal(msg.ID, acked.ID)

	// A late push success never moves the receipt backwards
	tracker.delivered(workers.Delivery{Recipient: "a1", Message: msg})
	receipts, err := tracker.Receipts(msg.ID)
	req.NoError(err)
	req.Equal(domain.Acked, receipts["a1"].State)
}

func TestTracker_Messages_Is_Lazy_And_Restartable(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindRoom)
	for _, payload := range []string{"a", "b", "c", "d"} {
		tracker.Enqueue(draft(conversationID, "u1", payload), []domain.UserID{"u2"})
	}

	replay := tracker.Messages(conversationID, 1)

	// Then the same sequence can be walked twice
	req.Equal([]uint64{2, 3, 4}, collect(replay))
	req.Equal([]uint64{2, 3, 4}, collect(replay))

	// And stopping early is honoured
	var firstOnly []uint64
	for msg := range replay {
		firstOnly = append(firstOnly, msg.Seq)
		break
	}
	req.Equal([]uint64{2}, firstOnly)

	// And nothing lies past the end
	req.Empty(collect(tracker.Messages(conversationID, 4)))
	req.Empty(collect(tracker.Messages(domain.NewConversationID(domain.KindRoom), 0)))
}

func TestTracker_Sweep_Evicts_Contiguous_Head(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindRoom)
	now := time.Now().UTC()

	m1 := tracker.Enqueue(draft(conversationID, "u1", "a"), []domain.UserID{"u2"})
	m2 := tracker.Enqueue(draft(conversationID, "u1", "b"), []domain.UserID{"u2"})
	m3 := tracker.Enqueue(draft(conversationID, "u1", "c"), []domain.UserID{"u2"})

	// Given the first and third messages acked
	_, err := tracker.Ack("u2", m1.ID, nil)
	req.NoError(err)
	_, err = tracker.Ack("u2", m3.ID, nil)
	req.NoError(err)

	// When sweeping
	evicted := tracker.Sweep(now)

	// Then only the head is evicted, the unacked message protects what follows
	req.Equal(1, evicted)
	req.Equal([]uint64{2, 3}, collect(tracker.Messages(conversationID, 0)))
	_, err = tracker.Receipts(m1.ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	// When the retention window has passed
	evicted = tracker.Sweep(now.Add(2 * time.Hour))

	// Then everything goes
	req.Equal(2, evicted)
	req.Empty(collect(tracker.Messages(conversationID, 0)))
	_, err = tracker.Ack("u2", m2.ID, nil)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	// And the counter keeps going
	next := tracker.Enqueue(draft(conversationID, "u1", "d"), nil)
	req.Equal(uint64(4), next.Seq)
}

func TestTracker_Sweep_Keeps_Messages_Without_Recipients(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindSession)

	// A message written before an agent was assigned
	tracker.Enqueue(draft(conversationID, "c1", "anyone?"), nil)

	req.Zero(tracker.Sweep(time.Now().UTC()))
	req.Equal([]uint64{1}, collect(tracker.Messages(conversationID, 0)))
}

func TestTracker_AddRecipient_For_Late_Participant(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindSession)

	// Given two customer messages written while nobody was assigned, and one by the agent
	m1 := tracker.Enqueue(draft(conversationID, "c1", "hello"), nil)
	m2 := tracker.Enqueue(draft(conversationID, "c1", "anyone?"), nil)
	m3 := tracker.Enqueue(draft(conversationID, "a1", "here"), []domain.UserID{"c1"})

	// When the agent becomes a recipient
	added := tracker.AddRecipient(conversationID, "a1")

	// Then only the customer messages get a pending receipt
	req.Equal(2, added)
	for _, id := range []uuid.UUID{m1.ID, m2.ID} {
		receipts, err := tracker.Receipts(id)
		req.NoError(err)
		req.Equal(domain.Pending, receipts["a1"].State)
	}
	receipts, err := tracker.Receipts(m3.ID)
	req.NoError(err)
	req.NotContains(receipts, domain.UserID("a1"))

	// And adding twice changes nothing
	req.Zero(tracker.AddRecipient(conversationID, "a1"))
	req.Zero(tracker.AddRecipient(domain.NewConversationID(domain.KindSession), "a1"))

	// And once acked, the head can be swept
	_, err = tracker.Ack("a1", m1.ID, nil)
	req.NoError(err)
	req.Equal(1, tracker.Sweep(time.Now().UTC()))
}

func TestTracker_Ack_Admits_Late_Recipient(t *testing.T) {
	req := require.New(t)
	_, tracker := newTestTracker(time.Hour)
	conversationID := domain.NewConversationID(domain.KindSession)
	msg := tracker.Enqueue(draft(conversationID, "c1", "hello"), nil)
	allow := func(domain.Message) bool { return true }
	deny := func(domain.Message) bool { return false }

	// Refused when admission is denied, and always for the sender
	_, err := tracker.Ack("a1", msg.ID, deny)
	req.ErrorIs(err, errors.ErrNotAuthorized)
	_, err = tracker.Ack("c1", msg.ID, allow)
	req.ErrorIs(err, errors.ErrNotAuthorized)

	// Accepted when admitted
	acked, err := tracker.Ack("a1", msg.ID, allow)
	req.NoError(err)
	req.Equal(msg.ID, acked.ID)
	receipts, err := tracker.Receipts(msg.ID)
	req.NoError(err)
	req.Equal(domain.Acked, receipts["a1"].State)
	req.NotContains(receipts, domain.UserID("c1"))
}
