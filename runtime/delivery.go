package runtime

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
	"support-chat/observability"
	"support-chat/runtime/workers"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ contract.ConnectionListener = (*Tracker)(nil)

type trackedMessage struct {
	msg      domain.Message
	receipts map[domain.UserID]*domain.Receipt
}

// fullyAcked is false for a message nobody was meant to receive yet.
func (m *trackedMessage) fullyAcked() bool {
	if len(m.receipts) == 0 {
		return false
	}
	for _, r := range m.receipts {
		if r.State != domain.Acked {
			return false
		}
	}
	return true
}

// conversationLog holds the retained messages of one conversation.
// entries[i].msg.Seq == entries[0].msg.Seq + i and lastSeq never decreases.
type conversationLog struct {
	mu      sync.Mutex
	lastSeq uint64
	entries []*trackedMessage
}

func (l *conversationLog) find(seq uint64) *trackedMessage {
	if len(l.entries) == 0 {
		return nil
	}
	first := l.entries[0].msg.Seq
	if seq < first || seq-first >= uint64(len(l.entries)) {
		return nil
	}
	return l.entries[seq-first]
}

type messageRef struct {
	conversationID domain.ConversationID
	seq            uint64
}

// Tracker sequences messages per conversation, pushes them to live
// connections and records per-recipient receipts.
// Lock order: conversation log, then index, then pushers.
type Tracker struct {
	mu          sync.RWMutex
	log         *slog.Logger
	registry    contract.IRegistry
	retention   time.Duration
	pushTimeout time.Duration
	logs        map[domain.ConversationID]*conversationLog

	indexMu sync.Mutex
	index   map[uuid.UUID]messageRef

	pushersMu sync.Mutex
	pushers   map[domain.ConnectionID]*workers.Pusher

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

func NewTracker(log *slog.Logger, registry contract.IRegistry, retention, pushTimeout time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		log:         log,
		registry:    registry,
		retention:   retention,
		pushTimeout: pushTimeout,
		logs:        make(map[domain.ConversationID]*conversationLog),
		index:       make(map[uuid.UUID]messageRef),
		pushers:     make(map[domain.ConnectionID]*workers.Pusher),
		ctx:         ctx,
		cancel:      cancel,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue assigns the next sequence number of the conversation, records a
// pending receipt per recipient and queues one push per live recipient connection.
// Callers serialise Enqueue per conversation when order across callers matters.
func (t *Tracker) Enqueue(draft domain.Message, recipients []domain.UserID) domain.Message {
	lg := t.logFor(draft.ConversationID)
	// Connections are resolved before taking the log lock: the registry notifies
	// its listeners, which may write to the log, while holding its own locks.
	connIDs := make(map[domain.UserID][]domain.ConnectionID, len(recipients))
	for _, userID := range recipients {
		connIDs[userID] = t.registry.Lookup(userID)
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.lastSeq++
	msg := draft
	msg.Seq = lg.lastSeq
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now()
	}

	tracked := &trackedMessage{msg: msg, receipts: make(map[domain.UserID]*domain.Receipt, len(recipients))}
	for _, userID := range recipients {
		tracked.receipts[userID] = &domain.Receipt{UserID: userID, State: domain.Pending, UpdatedAt: msg.CreatedAt}
	}
	lg.entries = append(lg.entries, tracked)

	t.indexMu.Lock()
	t.index[msg.ID] = messageRef{conversationID: msg.ConversationID, seq: msg.Seq}
	t.indexMu.Unlock()

	// Pushes are queued under the conversation lock so every connection sees this conversation in seq order.
	for _, userID := range recipients {
		for _, connID := range connIDs[userID] {
			t.dispatch(connID, workers.Delivery{Recipient: userID, Message: msg})
		}
	}

	observability.RetainedMessages.Inc()
	return msg
}

// AddRecipient gives a user who joined a conversation late a pending receipt on
// every retained message written by someone else. The user catches up through replay.
// It returns how many receipts were added.
func (t *Tracker) AddRecipient(conversationID domain.ConversationID, userID domain.UserID) int {
	t.mu.RLock()
	lg, ok := t.logs[conversationID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()
	added := 0
	for _, entry := range lg.entries {
		if entry.msg.SenderID == userID {
			continue
		}
		if _, ok := entry.receipts[userID]; ok {
			continue
		}
		entry.receipts[userID] = &domain.Receipt{UserID: userID, State: domain.Pending, UpdatedAt: t.now()}
		added++
	}
	return added
}

// Redeliver queues a retained message to one connection, as replay does.
func (t *Tracker) Redeliver(connID domain.ConnectionID, userID domain.UserID, msg domain.Message) {
	t.dispatch(connID, workers.Delivery{Recipient: userID, Message: msg})
}

// Messages yields the retained messages of a conversation with seq > afterSeq, in order.
// The sequence is lazy and stops at the last message present when iteration starts.
func (t *Tracker) Messages(conversationID domain.ConversationID, afterSeq uint64) iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		t.mu.RLock()
		lg, ok := t.logs[conversationID]
		t.mu.RUnlock()
		if !ok {
			return
		}

		lg.mu.Lock()
		upTo := lg.lastSeq
		lg.mu.Unlock()

		cursor := afterSeq
		for cursor < upTo {
			msg, ok := t.next(lg, cursor)
			if !ok || msg.Seq > upTo {
				return
			}
			cursor = msg.Seq
			if !yield(msg) {
				return
			}
		}
	}
}

// next returns the first retained message with seq > cursor.
func (t *Tracker) next(lg *conversationLog, cursor uint64) (domain.Message, bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if len(lg.entries) == 0 {
		return domain.Message{}, false
	}
	first := lg.entries[0].msg.Seq
	if cursor < first {
		return lg.entries[0].msg, true
	}
	if entry := lg.find(cursor + 1); entry != nil {
		return entry.msg, true
	}
	return domain.Message{}, false
}

// Ack marks a message as acknowledged by one of its recipients.
// A user without a receipt is accepted as a late recipient when admit allows it,
// never for their own message.
func (t *Tracker) Ack(userID domain.UserID, messageID uuid.UUID, admit func(domain.Message) bool) (domain.Message, error) {
	entry, lg, err := t.lookup(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()

	receipt, ok := entry.receipts[userID]
	if !ok {
		if admit == nil || entry.msg.SenderID == userID || !admit(entry.msg) {
			return domain.Message{}, fmt.Errorf("%w: %s is not a recipient of %s", errors.ErrNotAuthorized, userID, messageID)
		}
		receipt = &domain.Receipt{UserID: userID, State: domain.Pending, UpdatedAt: t.now()}
		entry.receipts[userID] = receipt
	}
	t.advance(receipt, domain.Acked)
	return entry.msg, nil
}

// Receipts returns a copy of the receipts of a retained message.
func (t *Tracker) Receipts(messageID uuid.UUID) (map[domain.UserID]domain.Receipt, error) {
	entry, lg, err := t.lookup(messageID)
	if err != nil {
		return nil, err
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	res := make(map[domain.UserID]domain.Receipt, len(entry.receipts))
	for userID, receipt := range entry.receipts {
		res[userID] = *receipt
	}
	return res, nil
}

// LastSeq returns the highest sequence number ever assigned in a conversation.
func (t *Tracker) LastSeq(conversationID domain.ConversationID) uint64 {
	t.mu.RLock()
	lg, ok := t.logs[conversationID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return lg.lastSeq
}

// Sweep evicts, from the head of every log, the messages that are past
// the retention window or acked by all recipients. It stops at the first
// message that must be kept so retained sequences stay contiguous.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.RLock()
	logs := make([]*conversationLog, 0, len(t.logs))
	for _, lg := range t.logs {
		logs = append(logs, lg)
	}
	t.mu.RUnlock()

	evicted := 0
	for _, lg := range logs {
		evicted += t.sweepLog(lg, now)
	}
	if evicted > 0 {
		observability.EvictedMessages.Add(float64(evicted))
		observability.RetainedMessages.Sub(float64(evicted))
		t.log.Debug("Retention sweep", "evicted", evicted)
	}
	return evicted
}

func (t *Tracker) sweepLog(lg *conversationLog, now time.Time) int {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	cut := 0
	for cut < len(lg.entries) {
		entry := lg.entries[cut]
		expired := t.retention > 0 && now.Sub(entry.msg.CreatedAt) >= t.retention
		if !expired && !entry.fullyAcked() {
			break
		}
		cut++
	}
	if cut == 0 {
		return 0
	}

	t.indexMu.Lock()
	for _, entry := range lg.entries[:cut] {
		delete(t.index, entry.msg.ID)
	}
	t.indexMu.Unlock()

	lg.entries = append([]*trackedMessage(nil), lg.entries[cut:]...)
	return cut
}

// OnConnectionEvent stops the pusher of a closed connection.
// Deliveries it still held stay pending and come back through replay.
func (t *Tracker) OnConnectionEvent(evt contract.ConnectionEvent) {
	if evt.Type != contract.Disconnected {
		return
	}
	t.pushersMu.Lock()
	pusher, ok := t.pushers[evt.Connection.ID]
	delete(t.pushers, evt.Connection.ID)
	t.pushersMu.Unlock()
	if ok {
		pusher.Stop()
	}
}

// Close stops every pusher.
func (t *Tracker) Close() {
	t.cancel()
	t.pushersMu.Lock()
	pushers := maps.Clone(t.pushers)
	clear(t.pushers)
	t.pushersMu.Unlock()
	for _, pusher := range pushers {
		pusher.Stop()
	}
}

func (t *Tracker) logFor(conversationID domain.ConversationID) *conversationLog {
	t.mu.RLock()
	lg, ok := t.logs[conversationID]
	t.mu.RUnlock()
	if ok {
		return lg
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if lg, ok = t.logs[conversationID]; !ok {
		lg = &conversationLog{}
		t.logs[conversationID] = lg
	}
	return lg
}

func (t *Tracker) lookup(messageID uuid.UUID) (*trackedMessage, *conversationLog, error) {
	t.indexMu.Lock()
	ref, ok := t.index[messageID]
	t.indexMu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, messageID)
	}

	t.mu.RLock()
	lg := t.logs[ref.conversationID]
	t.mu.RUnlock()

	lg.mu.Lock()
	entry := lg.find(ref.seq)
	lg.mu.Unlock()
	if entry == nil {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, messageID)
	}
	return entry, lg, nil
}

func (t *Tracker) dispatch(connID domain.ConnectionID, d workers.Delivery) {
	if t.ctx.Err() != nil {
		return
	}
	t.pushersMu.Lock()
	pusher, ok := t.pushers[connID]
	if !ok {
		pusher = workers.NewPusher(t.log, connID, t.registry, t.delivered, t.pushTimeout)
		t.pushers[connID] = pusher
		go func() {
			_ = pusher.Run(t.ctx)
			t.dropPusher(connID, pusher)
		}()
	}
	t.pushersMu.Unlock()

	if !pusher.Enqueue(d) {
		t.log.Debug("Connection closing, delivery stays pending", "connection_id", connID, "message_id", d.Message.ID)
	}
}

func (t *Tracker) dropPusher(connID domain.ConnectionID, pusher *workers.Pusher) {
	t.pushersMu.Lock()
	defer t.pushersMu.Unlock()
	if t.pushers[connID] == pusher {
		delete(t.pushers, connID)
	}
}

// delivered upgrades a pending receipt after a successful push.
func (t *Tracker) delivered(d workers.Delivery) {
	t.mu.RLock()
	lg, ok := t.logs[d.Message.ConversationID]
	t.mu.RUnlock()
	if !ok {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	entry := lg.find(d.Message.Seq)
	if entry == nil || entry.msg.ID != d.Message.ID {
		return
	}
	if receipt, ok := entry.receipts[d.Recipient]; ok {
		t.advance(receipt, domain.Delivered)
	}
}

// advance never moves a receipt backwards.
func (t *Tracker) advance(receipt *domain.Receipt, next domain.DeliveryState) {
	if receipt.State.Advances(next) {
		receipt.State = next
		receipt.UpdatedAt = t.now()
	}
}
